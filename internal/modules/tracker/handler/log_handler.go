package handler

import (
	"context"
	"crypto/subtle"
	"strconv"

	"github.com/labstack/echo/v4"

	"battle-tracker/internal/domain/battle"
	"battle-tracker/internal/modules/tracker/service"
	"battle-tracker/internal/pkg/response"
	"battle-tracker/internal/pkg/xerrors"
)

// IngestTokenHeader 提交口令请求头
const IngestTokenHeader = "X-Ingest-Token"

// LogHandler 接收浏览器脚本上传的战斗日志
type LogHandler struct {
	ingest     *service.IngestService
	worker     *service.IngestWorker
	respWriter response.Writer
	token      string
}

// NewLogHandler token 为空时不校验口令
func NewLogHandler(sc *service.ServiceContainer, respWriter response.Writer, token string) *LogHandler {
	return &LogHandler{
		ingest:     sc.Ingest,
		worker:     sc.IngestWorker,
		respWriter: respWriter,
		token:      token,
	}
}

// ==================== HTTP Request/Response Models ====================

// SubmissionRequest 一个回合的原始日志
type SubmissionRequest struct {
	Lines []string `json:"lines" validate:"dive,log_line"`
	Time  *float64 `json:"time" validate:"required,gte=0"`
}

// SubmitLogsRequest 请求体为提交数组
type SubmitLogsRequest struct {
	Submissions []SubmissionRequest `validate:"required,min=1,max=1000,dive"`
}

// QueuedResponse 异步提交的应答
type QueuedResponse struct {
	Queued int `json:"queued"`
	Depth  int `json:"depth"`
}

// ==================== HTTP Handlers ====================

// SubmitLogs 提交日志
// @Summary 提交战斗日志
// @Tags 日志
// @Accept json
// @Produce json
// @Param sync query bool false "同步处理并返回结果"
// @Success 200 {object} response.Response{data=service.SubmitResult}
// @Failure 400 {object} response.Response "请求参数错误"
// @Failure 503 {object} response.Response "摄取队列已满"
// @Router /logs [post]
func (h *LogHandler) SubmitLogs(c echo.Context) error {
	if !h.authorized(c) {
		return response.EchoError(c, h.respWriter, xerrors.New(xerrors.CodeAuthenticationFailed, "ingest token invalid"))
	}

	var req SubmitLogsRequest
	// 请求体是数组, 只绑定 body
	if err := (&echo.DefaultBinder{}).BindBody(c, &req.Submissions); err != nil {
		return response.EchoBadRequest(c, h.respWriter, "请求格式错误")
	}
	if err := c.Validate(&req); err != nil {
		return response.EchoError(c, h.respWriter, err)
	}

	subs := make([]battle.RawSubmission, len(req.Submissions))
	for i, s := range req.Submissions {
		subs[i] = battle.RawSubmission{Lines: s.Lines, Time: *s.Time}
	}

	ctx := c.Request().Context()
	if sync, _ := strconv.ParseBool(c.QueryParam("sync")); sync || h.worker == nil {
		res, err := h.submitSync(ctx, subs)
		if err != nil {
			return response.EchoError(c, h.respWriter, err)
		}
		return response.EchoOK(c, h.respWriter, res)
	}

	if err := h.worker.Enqueue(ctx, subs); err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	return response.EchoOK(c, h.respWriter, QueuedResponse{Queued: len(subs), Depth: h.worker.Depth()})
}

// submitSync 有队列时排队等待结果, 保持与异步提交的到达顺序一致
func (h *LogHandler) submitSync(ctx context.Context, subs []battle.RawSubmission) (*service.SubmitResult, error) {
	if h.worker != nil {
		return h.worker.SubmitAndWait(ctx, subs)
	}
	return h.ingest.Submit(ctx, subs)
}

func (h *LogHandler) authorized(c echo.Context) bool {
	if h.token == "" {
		return true
	}
	got := c.Request().Header.Get(IngestTokenHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) == 1
}
