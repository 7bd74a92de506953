package dto

// Response 统一响应封装
// Key 为业务错误的 i18n key，前端据此展示本地化文案
type Response struct {
	Code    int         `json:"code"`
	Key     string      `json:"key,omitempty"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}
