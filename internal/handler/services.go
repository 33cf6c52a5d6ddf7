package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pu-ac-cn/sso-center/internal/services"
	"github.com/pu-ac-cn/sso-center/pkg/response"
)

// ServiceHandler 注册服务管理处理器
type ServiceHandler struct {
	registry services.ServiceRegistry
}

// NewServiceHandler 创建注册服务管理处理器
func NewServiceHandler(registry services.ServiceRegistry) *ServiceHandler {
	return &ServiceHandler{registry: registry}
}

// SaveServiceRequest 保存注册服务请求
type SaveServiceRequest struct {
	ID              int64  `json:"id"`
	Name            string `json:"name" binding:"required"`
	Description     string `json:"description"`
	ServiceID       string `json:"service_id" binding:"required"`
	EvaluationOrder int    `json:"evaluation_order"`

	Enabled            bool                `json:"enabled"`
	SSOEnabled         bool                `json:"sso_enabled"`
	RequiredAttributes map[string][]string `json:"required_attributes"`

	ReleaseAll        bool     `json:"release_all"`
	AllowedAttributes []string `json:"allowed_attributes"`

	AllowProxy      bool   `json:"allow_proxy"`
	CallbackPattern string `json:"callback_pattern"`
}

// Save 创建或更新注册服务
// POST /api/v1/services
func (h *ServiceHandler) Save(c *gin.Context) {
	var req SaveServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, response.CodeInvalidRequest, "参数错误: "+err.Error())
		return
	}

	svc := &services.RegisteredService{
		ID:              req.ID,
		Name:            req.Name,
		Description:     req.Description,
		ServiceID:       req.ServiceID,
		EvaluationOrder: req.EvaluationOrder,
		AccessStrategy: services.AccessStrategy{
			Enabled:            req.Enabled,
			SSOEnabled:         req.SSOEnabled,
			RequiredAttributes: req.RequiredAttributes,
		},
		AttributeReleasePolicy: services.AttributeReleasePolicy{
			ReleaseAll:        req.ReleaseAll,
			AllowedAttributes: req.AllowedAttributes,
		},
		ProxyPolicy: services.ProxyPolicy{
			AllowProxy:      req.AllowProxy,
			CallbackPattern: req.CallbackPattern,
		},
	}

	saved, err := h.registry.Save(c.Request.Context(), svc)
	if err != nil {
		response.Error(c, response.CodeServerError)
		return
	}
	response.Success(c, saved)
}

// Get 按 ID 查询注册服务
// GET /api/v1/services/:id
func (h *ServiceHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ErrorWithMsg(c, response.CodeInvalidFormat, "服务 ID 必须为数字")
		return
	}

	svc, err := h.registry.FindServiceByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, response.CodeServerError)
		return
	}
	if svc == nil {
		response.Error(c, response.CodeServiceNotFound)
		return
	}
	response.Success(c, svc)
}

// List 列出全部注册服务
// GET /api/v1/services
func (h *ServiceHandler) List(c *gin.Context) {
	all, err := h.registry.Load(c.Request.Context())
	if err != nil {
		response.Error(c, response.CodeServerError)
		return
	}
	response.Success(c, gin.H{
		"total":    len(all),
		"services": all,
	})
}

// Delete 删除注册服务
// DELETE /api/v1/services/:id
func (h *ServiceHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ErrorWithMsg(c, response.CodeInvalidFormat, "服务 ID 必须为数字")
		return
	}

	deleted, err := h.registry.Delete(c.Request.Context(), id)
	if err != nil {
		response.Error(c, response.CodeServerError)
		return
	}
	if !deleted {
		response.Error(c, response.CodeServiceNotFound)
		return
	}
	response.SuccessWithMsg(c, "删除成功", nil)
}

// Match 按服务标识做模式匹配查询（调试用）
// GET /api/v1/services/match?service=...
func (h *ServiceHandler) Match(c *gin.Context) {
	serviceID := c.Query("service")
	if serviceID == "" {
		response.ErrorWithMsg(c, response.CodeMissingParam, "缺少 service 参数")
		return
	}

	svc, err := h.registry.FindServiceBy(c.Request.Context(), serviceID)
	if err != nil {
		response.Error(c, response.CodeServerError)
		return
	}
	if svc == nil {
		response.Error(c, response.CodeServiceNotFound)
		return
	}
	response.Success(c, svc)
}
