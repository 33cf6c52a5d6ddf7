package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/pu-ac-cn/sso-center/internal/sso"
	"github.com/pu-ac-cn/sso-center/pkg/response"
)

// ContextKeyTGT 上下文中 TGT ID 的键名
const ContextKeyTGT = "tgt_id"

// TGCAuth 票据授予 Cookie 认证中间件
// 从 Cookie 中取出签名的 TGC，验签后把 TGT 的 ID 放入上下文；
// Cookie 缺失或无效时拒绝请求，由调用方引导重新登录
func TGCAuth(signer *sso.TGCSigner) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, err := c.Cookie(sso.TGCCookieName)
		if err != nil || value == "" {
			response.ErrorWithMsg(c, response.CodeInvalidTGC, "未提供登录凭证")
			c.Abort()
			return
		}

		tgtID, err := signer.Parse(value)
		if err != nil {
			if errors.Is(err, sso.ErrExpiredTGC) {
				response.ErrorWithMsg(c, response.CodeInvalidTGC, "登录态已过期，请重新登录")
			} else {
				response.Error(c, response.CodeInvalidTGC)
			}
			c.Abort()
			return
		}

		c.Set(ContextKeyTGT, tgtID)
		c.Next()
	}
}

// OptionalTGCAuth 可选的票据授予 Cookie 认证中间件
// Cookie 有效时把 TGT 的 ID 放入上下文，无效时不阻断请求
func OptionalTGCAuth(signer *sso.TGCSigner) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, err := c.Cookie(sso.TGCCookieName)
		if err == nil && value != "" {
			if tgtID, err := signer.Parse(value); err == nil {
				c.Set(ContextKeyTGT, tgtID)
			}
		}
		c.Next()
	}
}
