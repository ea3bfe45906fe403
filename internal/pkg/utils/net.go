// internal/pkg/utils/net.go
package utils

import (
	"net"
)

// GetOutboundIP 返回本机对外通信使用的 IP（用于服务注册）。
// UDP Dial 不会真正发包，只用来让内核选择出口地址。
func GetOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
