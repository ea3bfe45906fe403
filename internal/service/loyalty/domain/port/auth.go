// internal/service/loyalty/domain/port/auth.go
package port

// TokenIssuer 签发和校验商户的访问令牌
type TokenIssuer interface {
	Issue(businessID string) (string, error)
	// Parse 校验令牌并返回其中的商户 ID
	Parse(token string) (string, error)
}

// PasswordHasher 负责密码的单向哈希
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) bool
}

// QREncoder 把内容编码为 PNG 二维码
type QREncoder interface {
	EncodePNG(content string, size int) ([]byte, error)
}
