package infrastructure

import (
	"github.com/skip2/go-qrcode"
)

// PNGQREncoder 生成 PNG 格式的二维码
type PNGQREncoder struct{}

func (PNGQREncoder) EncodePNG(content string, size int) ([]byte, error) {
	return qrcode.Encode(content, qrcode.Medium, size)
}
