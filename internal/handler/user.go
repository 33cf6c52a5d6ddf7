package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/pu-ac-cn/sso-center/internal/model"
	"github.com/pu-ac-cn/sso-center/internal/repository"
	"github.com/pu-ac-cn/sso-center/pkg/response"
)

// UserHandler 用户管理处理器
type UserHandler struct {
	users repository.UserRepository
}

// NewUserHandler 创建用户管理处理器
func NewUserHandler(users repository.UserRepository) *UserHandler {
	return &UserHandler{users: users}
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Username    string `json:"username" binding:"required,min=3,max=50"`
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"display_name"`
}

// Register 用户注册
// POST /api/v1/users/register
func (h *UserHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, response.CodeInvalidRequest, "参数错误: "+err.Error())
		return
	}

	user := &model.User{
		Username:    req.Username,
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Status:      model.StatusActive,
	}
	if err := user.SetPassword(req.Password); err != nil {
		response.Error(c, response.CodeServerError)
		return
	}

	if err := h.users.Create(c.Request.Context(), user); err != nil {
		switch {
		case errors.Is(err, repository.ErrUserUsernameExists):
			response.ErrorWithMsg(c, response.CodeInvalidRequest, "该用户名已被注册")
		case errors.Is(err, repository.ErrUserEmailExists):
			response.ErrorWithMsg(c, response.CodeInvalidRequest, "该邮箱已被注册")
		default:
			response.Error(c, response.CodeServerError)
		}
		return
	}

	response.Success(c, gin.H{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
	})
}

// Get 查询用户
// GET /api/v1/users/:id
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.users.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			response.Error(c, response.CodeUserNotFound)
			return
		}
		response.Error(c, response.CodeServerError)
		return
	}
	response.Success(c, user)
}
