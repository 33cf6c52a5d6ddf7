package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 标准响应结构
// 字段顺序：code -> msg -> data
type Response struct {
	Code int         `json:"code"` // 业务状态码，0 表示成功
	Msg  string      `json:"msg"`  // 响应消息（中文）
	Data interface{} `json:"data"` // 响应数据
}

// 业务错误码
const (
	CodeSuccess = 0 // 操作成功

	// 参数错误 10xxx
	CodeInvalidRequest = 10001 // 请求参数无效
	CodeInvalidFormat  = 10002 // 参数格式错误
	CodeMissingParam   = 10003 // 必填参数缺失

	// 认证错误 20xxx
	CodeInvalidCredentials = 20001 // 用户名或密码错误
	CodeAccountLocked      = 20002 // 账户已被锁定
	CodeAccountDisabled    = 20003 // 账户已被禁用
	CodeAccountExpired     = 20004 // 账户已过期
	CodeAuthnFailed        = 20005 // 认证失败
	CodeInvalidTGC         = 20006 // 登录态无效或已过期

	// 票据错误 30xxx
	CodeInvalidTicket   = 30001 // 票据无效
	CodeServiceMismatch = 30002 // 票据与服务不匹配

	// 服务错误 40xxx
	CodeUnauthorizedService = 40001 // 服务未注册或禁止访问
	CodeSSONotParticipating = 40002 // 该服务不参与单点登录
	CodeServiceNotFound     = 40003 // 注册服务不存在

	// 资源不存在 50xxx
	CodeUserNotFound = 50001 // 用户不存在

	// 服务器错误 90xxx
	CodeServerError = 90001 // 服务器内部错误
	CodeUnavailable = 90002 // 服务暂时不可用
)

// 错误码对应的消息
var codeMessages = map[int]string{
	CodeSuccess:             "操作成功",
	CodeInvalidRequest:      "请求参数无效",
	CodeInvalidFormat:       "参数格式错误",
	CodeMissingParam:        "必填参数缺失",
	CodeInvalidCredentials:  "用户名或密码错误",
	CodeAccountLocked:       "账户已被锁定，请稍后重试",
	CodeAccountDisabled:     "账户已被禁用",
	CodeAccountExpired:      "账户已过期",
	CodeAuthnFailed:         "认证失败",
	CodeInvalidTGC:          "登录态无效或已过期，请重新登录",
	CodeInvalidTicket:       "票据无效",
	CodeServiceMismatch:     "票据与服务不匹配",
	CodeUnauthorizedService: "服务未注册或禁止访问",
	CodeSSONotParticipating: "该服务不参与单点登录，请重新认证",
	CodeServiceNotFound:     "注册服务不存在",
	CodeUserNotFound:        "用户不存在",
	CodeServerError:         "服务器内部错误，请稍后重试",
	CodeUnavailable:         "服务暂时不可用",
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code: CodeSuccess,
		Msg:  codeMessages[CodeSuccess],
		Data: data,
	})
}

// SuccessWithMsg 成功响应（自定义消息）
func SuccessWithMsg(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code: CodeSuccess,
		Msg:  msg,
		Data: data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int) {
	msg, ok := codeMessages[code]
	if !ok {
		msg = "未知错误"
	}
	c.JSON(codeToHTTPStatus(code), Response{
		Code: code,
		Msg:  msg,
		Data: nil,
	})
}

// ErrorWithMsg 错误响应（自定义消息）
func ErrorWithMsg(c *gin.Context, code int, msg string) {
	c.JSON(codeToHTTPStatus(code), Response{
		Code: code,
		Msg:  msg,
		Data: nil,
	})
}

// codeToHTTPStatus 业务错误码转 HTTP 状态码
func codeToHTTPStatus(code int) int {
	switch {
	case code == CodeSuccess:
		return http.StatusOK
	case code >= 10000 && code < 20000:
		return http.StatusBadRequest
	case code >= 20000 && code < 30000:
		return http.StatusUnauthorized
	case code >= 30000 && code < 40000:
		return http.StatusUnauthorized
	case code >= 40000 && code < 50000:
		return http.StatusForbidden
	case code >= 50000 && code < 60000:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
