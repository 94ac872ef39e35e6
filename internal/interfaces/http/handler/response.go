package handler

import "github.com/gin-gonic/gin"

// ErrorInfo carries a machine-readable error code and a human message
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIResponse is the standard response wrapper
type APIResponse[T any] struct {
	Success bool       `json:"success"`
	Data    T          `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// respondOK writes a success response with data
func respondOK[T any](c *gin.Context, status int, data T) {
	c.JSON(status, APIResponse[T]{Success: true, Data: data})
}

// respondError writes an error response
func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, APIResponse[struct{}]{
		Success: false,
		Error:   &ErrorInfo{Code: code, Message: message},
	})
}
