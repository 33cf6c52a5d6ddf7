package sso

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TGC 相关错误
var (
	ErrInvalidTGC = errors.New("无效的票据授予 Cookie")
	ErrExpiredTGC = errors.New("票据授予 Cookie 已过期")
)

// TGCCookieName 票据授予 Cookie 名称
const TGCCookieName = "TGC"

// tgcClaims 票据授予 Cookie 的 JWT 声明
type tgcClaims struct {
	jwt.RegisteredClaims
	TGT string `json:"tgt"`
}

// TGCSigner 票据授予 Cookie 签名器
// Cookie 值为 HS256 签名的 JWT，仅包裹 TGT 的 ID；
// Cookie 只在本系统往返，不对外分发公钥
type TGCSigner struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewTGCSigner 创建票据授予 Cookie 签名器
func NewTGCSigner(secret []byte, issuer string, ttl time.Duration) *TGCSigner {
	return &TGCSigner{secret: secret, issuer: issuer, ttl: ttl}
}

// Sign 为 TGT 生成签名 Cookie 值
func (s *TGCSigner) Sign(tgtID string) (string, error) {
	now := time.Now()
	claims := tgcClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		TGT: tgtID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Parse 验证 Cookie 并取出 TGT 的 ID
func (s *TGCSigner) Parse(value string) (string, error) {
	token, err := jwt.ParseWithClaims(value, &tgcClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidTGC
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredTGC
		}
		return "", ErrInvalidTGC
	}

	claims, ok := token.Claims.(*tgcClaims)
	if !ok || !token.Valid || claims.TGT == "" {
		return "", ErrInvalidTGC
	}
	if claims.Issuer != s.issuer {
		return "", ErrInvalidTGC
	}
	return claims.TGT, nil
}
