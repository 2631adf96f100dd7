package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized 对外的唯一认证失败错误
// 具体原因只记录日志，不向调用方区分，避免泄露是哪一步校验失败
var ErrUnauthorized = errors.New("unauthorized")

// Role 用户角色
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
)

// Identity 认证通过后的身份信息
type Identity struct {
	UserID    string
	Role      Role
	TenantID  string // 可为空，用户可能不属于任何租户
	ExpiresAt time.Time
}

// Claims JWT 声明
type Claims struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	TenantID string `json:"tenant_id,omitempty"`
	jwt.RegisteredClaims
}

// Blacklist 已吊销凭证黑名单（外部共享存储，只读）
type Blacklist interface {
	IsTokenBlacklisted(ctx context.Context, token string) (bool, error)
}

// Verifier 凭证校验器
type Verifier struct {
	secretKey []byte
	blacklist Blacklist
	logger    *slog.Logger
}

// NewVerifier 创建凭证校验器
func NewVerifier(secretKey string, blacklist Blacklist, logger *slog.Logger) *Verifier {
	return &Verifier{
		secretKey: []byte(secretKey),
		blacklist: blacklist,
		logger:    logger.With("component", "auth"),
	}
}

// Verify 校验握手凭证
// 依次检查：凭证非空、不在黑名单（存储不可用视为校验失败，绝不隐式放行）、
// 签名与过期时间有效。任何一步失败统一返回 ErrUnauthorized。
func (v *Verifier) Verify(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		v.logger.Warn("Auth rejected: empty token")
		return nil, ErrUnauthorized
	}

	blacklisted, err := v.blacklist.IsTokenBlacklisted(ctx, token)
	if err != nil {
		// 黑名单存储不可用时拒绝连接（fail closed）
		v.logger.Error("Auth rejected: blacklist lookup failed", "error", err)
		return nil, ErrUnauthorized
	}
	if blacklisted {
		v.logger.Warn("Auth rejected: token blacklisted")
		return nil, ErrUnauthorized
	}

	claims, err := v.parseToken(token)
	if err != nil {
		v.logger.Warn("Auth rejected: token validation failed", "error", err)
		return nil, ErrUnauthorized
	}

	role := Role(claims.Role)
	if role != RoleAdmin && role != RoleEmployee {
		v.logger.Warn("Auth rejected: unknown role", "role", claims.Role)
		return nil, ErrUnauthorized
	}

	identity := &Identity{
		UserID:   claims.UserID,
		Role:     role,
		TenantID: claims.TenantID,
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}

	return identity, nil
}

// parseToken 解析并校验 Token
func (v *Verifier) parseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secretKey, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid claims")
	}

	if claims.UserID == "" {
		return nil, errors.New("missing user id")
	}

	return claims, nil
}
