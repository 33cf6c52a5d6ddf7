// Package handler HTTP 处理器
package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/pu-ac-cn/sso-center/internal/authn"
	"github.com/pu-ac-cn/sso-center/internal/middleware"
	"github.com/pu-ac-cn/sso-center/internal/sso"
	"github.com/pu-ac-cn/sso-center/pkg/response"
)

// SSOHandler 单点登录处理器
type SSOHandler struct {
	sso       *sso.CentralSSOService
	tgcSigner *sso.TGCSigner
	tgcMaxAge int
}

// NewSSOHandler 创建单点登录处理器
func NewSSOHandler(center *sso.CentralSSOService, signer *sso.TGCSigner, tgcMaxAgeSeconds int) *SSOHandler {
	return &SSOHandler{
		sso:       center,
		tgcSigner: signer,
		tgcMaxAge: tgcMaxAgeSeconds,
	}
}

// LoginRequest 登录请求
// 至少提供一种凭据；可同时提交口令与令牌凭据
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Subject  string `json:"subject"` // 令牌凭据的主体
	Token    string `json:"token"`   // 静态令牌
	Service  string `json:"service"` // 可选：登录同时为该服务授票
}

// GrantRequest 授票请求
type GrantRequest struct {
	Service string `json:"service" binding:"required"`
}

// ValidateRequest 验票请求
type ValidateRequest struct {
	Ticket  string `json:"ticket" binding:"required"`
	Service string `json:"service" binding:"required"`
}

// Login 凭据登录，签发 TGT 并写入票据授予 Cookie
// POST /api/v1/sso/login
func (h *SSOHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, response.CodeInvalidRequest, "参数错误: "+err.Error())
		return
	}

	credentials := make([]authn.Credential, 0, 2)
	if req.Username != "" || req.Password != "" {
		credentials = append(credentials, &authn.UsernamePasswordCredential{
			Username: req.Username,
			Password: req.Password,
		})
	}
	if req.Token != "" {
		credentials = append(credentials, &authn.TokenCredential{
			Subject: req.Subject,
			Token:   req.Token,
		})
	}
	if len(credentials) == 0 {
		response.ErrorWithMsg(c, response.CodeMissingParam, "请提供至少一种凭据")
		return
	}

	tgt, st, err := h.sso.Login(c.Request.Context(), req.Service, credentials...)
	if err != nil {
		h.writeAuthnError(c, err)
		return
	}

	cookie, err := h.tgcSigner.Sign(tgt.ID)
	if err != nil {
		response.Error(c, response.CodeServerError)
		return
	}
	c.SetCookie(sso.TGCCookieName, cookie, h.tgcMaxAge, "/", "", false, true)

	data := gin.H{
		"principal": tgt.Authentication.Principal.ID,
	}
	if st != nil {
		data["ticket"] = st.ID
		data["service"] = st.Service
	}
	response.SuccessWithMsg(c, "登录成功", data)
}

// Grant 基于既有登录态为服务授票
// POST /api/v1/sso/tickets （需 TGC 认证）
func (h *SSOHandler) Grant(c *gin.Context) {
	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, response.CodeInvalidRequest, "参数错误: "+err.Error())
		return
	}

	tgtID := c.GetString(middleware.ContextKeyTGT)
	st, err := h.sso.GrantServiceTicket(c.Request.Context(), tgtID, req.Service)
	if err != nil {
		h.writeTicketError(c, err)
		return
	}

	response.Success(c, gin.H{
		"ticket":  st.ID,
		"service": st.Service,
	})
}

// Validate 校验服务票据并返回断言
// POST /api/v1/sso/validate
func (h *SSOHandler) Validate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, response.CodeInvalidRequest, "参数错误: "+err.Error())
		return
	}

	assertion, err := h.sso.ValidateServiceTicket(c.Request.Context(), req.Ticket, req.Service)
	if err != nil {
		h.writeTicketError(c, err)
		return
	}

	response.Success(c, assertion)
}

// Logout 登出：销毁 TGT 及其全部子孙票据，清除 Cookie
// POST /api/v1/sso/logout （需 TGC 认证）
func (h *SSOHandler) Logout(c *gin.Context) {
	tgtID := c.GetString(middleware.ContextKeyTGT)

	count, err := h.sso.Logout(c.Request.Context(), tgtID)
	if err != nil {
		response.Error(c, response.CodeServerError)
		return
	}

	c.SetCookie(sso.TGCCookieName, "", -1, "/", "", false, true)
	response.SuccessWithMsg(c, "登出成功", gin.H{"destroyed": count})
}

// writeAuthnError 认证错误转响应
func (h *SSOHandler) writeAuthnError(c *gin.Context, err error) {
	var aggErr *authn.Error
	if errors.As(err, &aggErr) {
		switch aggErr.Primary() {
		case authn.ErrAccountDisabled:
			response.Error(c, response.CodeAccountDisabled)
		case authn.ErrAccountLocked:
			response.Error(c, response.CodeAccountLocked)
		case authn.ErrAccountExpired:
			response.Error(c, response.CodeAccountExpired)
		case authn.ErrUserNotFound, authn.ErrInvalidCredentials:
			response.Error(c, response.CodeInvalidCredentials)
		default:
			response.Error(c, response.CodeAuthnFailed)
		}
		return
	}
	if errors.Is(err, authn.ErrNoSupportedHandler) {
		response.Error(c, response.CodeAuthnFailed)
		return
	}
	h.writeTicketError(c, err)
}

// writeTicketError 票据与服务错误转响应
func (h *SSOHandler) writeTicketError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, sso.ErrInvalidTicket):
		response.Error(c, response.CodeInvalidTicket)
	case errors.Is(err, sso.ErrServiceMismatch):
		response.Error(c, response.CodeServiceMismatch)
	case errors.Is(err, sso.ErrUnauthorizedService):
		response.Error(c, response.CodeUnauthorizedService)
	case errors.Is(err, sso.ErrSSONotParticipating):
		response.Error(c, response.CodeSSONotParticipating)
	default:
		response.Error(c, response.CodeServerError)
	}
}
