// File: internal/pkg/i18n/error_messages.go
package i18n

import (
	"golang.org/x/text/language"

	"battle-tracker/internal/pkg/xerrors"
)

// ErrorMessages 错误消息的多语言映射
var ErrorMessages = map[xerrors.ErrorCode]map[language.Tag]string{
	// 1xxxxx: 通用错误码
	xerrors.CodeSuccess:           {language.Chinese: "操作成功", language.English: "Operation successful"},
	xerrors.CodeInternalError:     {language.Chinese: "内部服务错误", language.English: "Internal server error"},
	xerrors.CodeInvalidParams:     {language.Chinese: "参数错误", language.English: "Invalid parameters"},
	xerrors.CodeInvalidRequest:    {language.Chinese: "请求格式错误", language.English: "Invalid request format"},
	xerrors.CodeResourceNotFound:  {language.Chinese: "资源不存在", language.English: "Resource not found"},
	xerrors.CodeRateLimitExceeded: {language.Chinese: "请求频率限制", language.English: "Rate limit exceeded"},

	xerrors.CodeAuthenticationFailed: {language.Chinese: "认证失败", language.English: "Authentication failed"},

	// 6xxxxx / 7xxxxx
	xerrors.CodeDataIntegrityError: {language.Chinese: "数据完整性错误", language.English: "Data integrity error"},
	xerrors.CodeDatabaseError:      {language.Chinese: "数据库错误", language.English: "Database error"},
	xerrors.CodeFileSystemError:    {language.Chinese: "文件系统错误", language.English: "File system error"},

	// 8xxxxx: 战斗追踪
	xerrors.CodeBattleNotFound:     {language.Chinese: "战斗不存在", language.English: "Battle not found"},
	xerrors.CodeBattleArchiveError: {language.Chinese: "战斗归档数据损坏", language.English: "Battle archive is corrupted"},

	xerrors.CodeTurnEvicted:       {language.Chinese: "回合已移出历史窗口", language.English: "Turn is no longer retained"},
	xerrors.CodeInvalidTurnIndex:  {language.Chinese: "回合序号无效", language.English: "Invalid turn index"},
	xerrors.CodeFollowWaitTimeout: {language.Chinese: "等待新回合超时", language.English: "Timed out waiting for the next turn"},

	xerrors.CodeIngestQueueFull:  {language.Chinese: "摄取队列已满", language.English: "Ingest queue is full"},
	xerrors.CodeIngestEmptyBatch: {language.Chinese: "提交内容为空", language.English: "Submission is empty"},
	xerrors.CodeIngestStopped:    {language.Chinese: "摄取服务已停止", language.English: "Ingest service stopped"},

	xerrors.CodeReportCorrupted: {language.Chinese: "报告数据损坏", language.English: "Report data is corrupted"},
}

// GetErrorMessage 获取错误码对应语言的消息, 缺失翻译时回退中文
func GetErrorMessage(code xerrors.ErrorCode, lang language.Tag) string {
	lang = normalize(lang)
	if messages, ok := ErrorMessages[code]; ok {
		if msg, ok := messages[lang]; ok {
			return msg
		}
		if msg, ok := messages[language.Chinese]; ok {
			return msg
		}
	}
	if lang == language.English {
		return "Unknown error"
	}
	return "未知错误"
}
