package auth

import (
	"errors"
	"fmt"
)

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrCredentialsRejected 凭证不匹配
	ErrCredentialsRejected = errors.New("auth: credentials rejected")

	// ErrMalformedHash 密码哈希格式错误
	ErrMalformedHash = errors.New("auth: malformed password hash")

	// ErrInvalidKey CURVE 公钥长度或编码错误
	ErrInvalidKey = errors.New("auth: invalid curve public key")

	// ErrMalformedEntry 凭证文件行格式错误
	ErrMalformedEntry = errors.New("auth: malformed credentials entry")
)

// Rejection 策略拒绝，对应状态 400
type Rejection struct {
	Reason string
}

// Error 实现 error
func (r *Rejection) Error() string {
	return r.Reason
}

// reject 构造 "<what> for <identity> (<address>): <value>" 形式的拒绝
func reject(what string, req Request, value string) *Rejection {
	return &Rejection{Reason: fmt.Sprintf("%s for %s (%s): %s", what, req.Identity, req.Address, value)}
}
