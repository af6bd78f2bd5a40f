// File: internal/pkg/xerrors/codes.go
package xerrors

import (
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型（类型安全）
type ErrorCode int

// IsValid 检查错误码是否在预定义列表中
func (c ErrorCode) IsValid() bool {
	_, exists := codeMessages[c]
	return exists
}

// String 返回错误码的字符串表示
func (c ErrorCode) String() string {
	if msg, ok := codeMessages[c]; ok {
		return fmt.Sprintf("%d (%s)", c, msg)
	}
	return fmt.Sprintf("%d (未定义的错误码)", c)
}

// Message 返回错误码对应的消息
func (c ErrorCode) Message() string {
	if msg, ok := codeMessages[c]; ok {
		return msg
	}
	return "未知错误"
}

// -----------------------------------------------------------------------------
// 错误码按领域分段
// -----------------------------------------------------------------------------
const (
	// 1xxxxx: 通用错误码
	CodeSuccess           ErrorCode = 100000 // 操作成功
	CodeInternalError     ErrorCode = 100001 // 内部服务错误
	CodeInvalidParams     ErrorCode = 100002 // 参数错误
	CodeInvalidRequest    ErrorCode = 100003 // 请求格式错误
	CodeResourceNotFound  ErrorCode = 100404 // 资源不存在
	CodeRateLimitExceeded ErrorCode = 100429 // 请求频率限制

	// 2xxxxx: 认证
	CodeAuthenticationFailed ErrorCode = 200001 // 认证失败

	// 6xxxxx: 业务逻辑错误码
	CodeDataIntegrityError ErrorCode = 600002 // 数据完整性错误

	// 7xxxxx: 存储错误码
	CodeDatabaseError   ErrorCode = 700003 // 数据库错误
	CodeFileSystemError ErrorCode = 700006 // 原始日志目录读写错误

	// 8xxxxx: 战斗追踪业务错误码
	// 战斗 (80xxxx)
	CodeBattleNotFound     ErrorCode = 800001 // 战斗不存在
	CodeBattleArchiveError ErrorCode = 800003 // 战斗归档数据损坏

	// 回合跟随 (81xxxx)
	CodeTurnEvicted       ErrorCode = 810001 // 回合已移出历史窗口
	CodeInvalidTurnIndex  ErrorCode = 810002 // 回合序号无效
	CodeFollowWaitTimeout ErrorCode = 810003 // 等待新回合超时

	// 摄取 (82xxxx)
	CodeIngestQueueFull  ErrorCode = 820001 // 摄取队列已满
	CodeIngestEmptyBatch ErrorCode = 820002 // 提交内容为空
	CodeIngestStopped    ErrorCode = 820003 // 摄取服务已停止

	// 报告 (83xxxx)
	CodeReportCorrupted ErrorCode = 830001 // 报告数据损坏
)

var codeMessages = map[ErrorCode]string{
	CodeSuccess:           "操作成功",
	CodeInternalError:     "内部服务错误",
	CodeInvalidParams:     "参数错误",
	CodeInvalidRequest:    "请求格式错误",
	CodeResourceNotFound:  "资源不存在",
	CodeRateLimitExceeded: "请求频率限制",

	CodeAuthenticationFailed: "认证失败",

	CodeDataIntegrityError: "数据完整性错误",

	CodeDatabaseError:   "数据库错误",
	CodeFileSystemError: "文件系统错误",

	CodeBattleNotFound:     "战斗不存在",
	CodeBattleArchiveError: "战斗归档数据损坏",

	CodeTurnEvicted:       "回合已移出历史窗口",
	CodeInvalidTurnIndex:  "回合序号无效",
	CodeFollowWaitTimeout: "等待新回合超时",

	CodeIngestQueueFull:  "摄取队列已满",
	CodeIngestEmptyBatch: "提交内容为空",
	CodeIngestStopped:    "摄取服务已停止",

	CodeReportCorrupted: "报告数据损坏",
}

// GetHTTPStatus 根据业务错误码获取HTTP状态码
func GetHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParams, CodeInvalidRequest, CodeInvalidTurnIndex, CodeIngestEmptyBatch:
		return http.StatusBadRequest
	case CodeAuthenticationFailed:
		return http.StatusUnauthorized
	case CodeResourceNotFound, CodeBattleNotFound:
		return http.StatusNotFound
	case CodeTurnEvicted:
		return http.StatusGone
	case CodeFollowWaitTimeout:
		return http.StatusRequestTimeout
	case CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case CodeIngestQueueFull, CodeIngestStopped:
		return http.StatusServiceUnavailable
	}

	switch {
	case code >= 600000 && code < 700000:
		return http.StatusBadRequest
	case code >= 700000 && code < 800000:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func getCategoryByCode(code ErrorCode) string {
	switch {
	case code >= 100000 && code < 200000:
		return "system"
	case code >= 200000 && code < 300000:
		return "authentication"
	case code >= 600000 && code < 700000:
		return "business"
	case code >= 700000 && code < 800000:
		return "external"
	case code >= 800000 && code < 810000:
		return "battle"
	case code >= 810000 && code < 820000:
		return "follow"
	case code >= 820000 && code < 830000:
		return "ingest"
	case code >= 830000 && code < 840000:
		return "report"
	default:
		return "unknown"
	}
}

func getLevelByCode(code ErrorCode) ErrorLevel {
	switch {
	case code == CodeSuccess:
		return LevelInfo
	case code >= 100002 && code <= 100429:
		return LevelWarn
	case code >= 810000 && code < 830000: // 跟随/摄取属于调用方可处理的状态
		return LevelWarn
	case code >= 700001 && code < 800000:
		return LevelCritical
	default:
		return LevelError
	}
}

func isRetryableByCode(code ErrorCode) bool {
	switch code {
	case CodeInternalError, CodeDatabaseError, CodeFileSystemError,
		CodeRateLimitExceeded, CodeIngestQueueFull, CodeFollowWaitTimeout:
		return true
	}
	return false
}
