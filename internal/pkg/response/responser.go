package response

import (
	"time"

	"battle-tracker/internal/pkg/xerrors"
)

// EmptyData 成功但无数据
type EmptyData struct{}

// ResponseResult 通用的API响应结构体
type ResponseResult[T any] struct {
	Code      int    `json:"code"`               // 业务响应码
	Message   string `json:"message"`            // 响应消息
	Data      *T     `json:"data,omitempty"`     // 响应数据，成功时返回
	Error     string `json:"error,omitempty"`    // 错误详情，失败时返回
	Timestamp int64  `json:"timestamp"`          // Unix时间戳
	TraceId   string `json:"trace_id,omitempty"` // 请求追踪ID
}

// Success 创建一个成功的响应
func Success[T any](data *T) *ResponseResult[T] {
	return &ResponseResult[T]{
		Code:      int(xerrors.CodeSuccess),
		Message:   xerrors.CodeSuccess.Message(),
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
}

// Error 创建一个失败的响应
func Error[T any](code int, message string, err string) *ResponseResult[T] {
	return &ResponseResult[T]{
		Code:      code,
		Message:   message,
		Error:     err,
		Timestamp: time.Now().Unix(),
	}
}
