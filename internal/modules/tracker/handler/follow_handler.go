package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"golang.org/x/text/language"

	"battle-tracker/internal/domain/battle"
	"battle-tracker/internal/modules/tracker/broadcast"
	"battle-tracker/internal/modules/tracker/service"
	"battle-tracker/internal/pkg/ctxkey"
	"battle-tracker/internal/pkg/i18n"
	"battle-tracker/internal/pkg/log"
	"battle-tracker/internal/pkg/response"
	"battle-tracker/internal/pkg/xerrors"
)

// WebSocket 帧类型
const (
	FrameNextIndex = "NEXT_INDEX"
	FrameEvent     = "EVENT"
	FrameError     = "ERROR"
)

const (
	wsWriteWait      = 10 * time.Second
	wsMaxMessageSize = 1024
)

// FollowHandler 实时跟随新回合: 长轮询与 WebSocket
type FollowHandler struct {
	tracker    *broadcast.TurnTracker
	respWriter response.Writer
	maxWait    time.Duration
	upgrader   websocket.Upgrader
	logger     log.Logger
}

// NewFollowHandler maxWait 为长轮询单次等待上限
func NewFollowHandler(sc *service.ServiceContainer, respWriter response.Writer, maxWait time.Duration, logger log.Logger) *FollowHandler {
	if maxWait <= 0 {
		maxWait = 30 * time.Second
	}
	if logger == nil {
		logger = log.GetLogger()
	}
	return &FollowHandler{
		tracker:    sc.Tracker,
		respWriter: respWriter,
		maxWait:    maxWait,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// 浏览器脚本运行在游戏站点域名下
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.With("component", "follow"),
	}
}

// NextIndexResponse 下一个将被分配的序号
type NextIndexResponse struct {
	NextIndex int64 `json:"next_index"`
	Oldest    int64 `json:"oldest_index"`
	Window    int   `json:"window"`
}

// TurnPayload 一个广播回合
type TurnPayload struct {
	Index    int64               `json:"index"`
	BattleID string              `json:"battle_id"`
	Seq      int                 `json:"seq"`
	Turn     battle.ArchivedTurn `json:"turn"`
}

type wsRequest struct {
	Index *int64 `json:"index"`
}

type wsFrame struct {
	Type      string       `json:"type"`
	Index     *int64       `json:"index,omitempty"`
	Data      *TurnPayload `json:"data,omitempty"`
	NextIndex *int64       `json:"next_index,omitempty"`
	Code      int          `json:"code,omitempty"`
	Message   string       `json:"message,omitempty"`
}

// NextIndex 当前下一个序号
// @Summary 下一个回合序号
// @Tags 跟随
// @Produce json
// @Success 200 {object} response.Response{data=NextIndexResponse}
// @Router /turns/next [get]
func (h *FollowHandler) NextIndex(c echo.Context) error {
	return response.EchoOK(c, h.respWriter, NextIndexResponse{
		NextIndex: h.tracker.NextIndex(),
		Oldest:    h.tracker.Oldest(),
		Window:    h.tracker.Window(),
	})
}

// GetTurn 按序号获取回合, 尚未产生时最多等待 wait
// @Summary 长轮询获取回合
// @Tags 跟随
// @Produce json
// @Param index path int true "回合序号"
// @Param wait query string false "等待时长, 如 10s"
// @Success 200 {object} response.Response{data=TurnPayload}
// @Failure 408 {object} response.Response "等待超时"
// @Failure 410 {object} response.Response "回合已移出窗口"
// @Router /turns/{index} [get]
func (h *FollowHandler) GetTurn(c echo.Context) error {
	index, err := strconv.ParseInt(c.Param("index"), 10, 64)
	if err != nil || index < 0 {
		return response.EchoError(c, h.respWriter, xerrors.FromCode(xerrors.CodeInvalidTurnIndex))
	}

	wait := h.maxWait
	if raw := c.QueryParam("wait"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			return response.EchoBadRequest(c, h.respWriter, "wait must be a duration")
		}
		wait = min(d, h.maxWait)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), wait)
	defer cancel()

	tt, err := h.tracker.Get(ctx, index)
	if err != nil {
		return response.EchoError(c, h.respWriter, h.followError(err, index))
	}
	return response.EchoOK(c, h.respWriter, toPayload(tt))
}

// Events WebSocket 跟随
// 连接后先收到 NEXT_INDEX; 客户端发送 {index}, 服务端回复 EVENT 或 ERROR
func (h *FollowHandler) Events(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.WarnContext(c.Request().Context(), "websocket 握手失败", log.Any("error", err))
		return nil
	}
	defer conn.Close()

	followerID := uuid.NewString()
	ctx, cancel := context.WithCancel(ctxkey.WithValue(context.WithoutCancel(c.Request().Context()), ctxkey.FollowerID, followerID))
	defer cancel()
	lang := i18n.GetLanguage(c.Request().Context())

	next := h.tracker.NextIndex()
	if err := h.writeFrame(conn, wsFrame{Type: FrameNextIndex, Index: &next}); err != nil {
		return nil
	}

	// 单读协程, 断开时取消正在等待的请求
	requests := make(chan wsRequest)
	go func() {
		defer cancel()
		defer close(requests)
		conn.SetReadLimit(wsMaxMessageSize)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req wsRequest
			if err := json.Unmarshal(data, &req); err != nil || req.Index == nil {
				req = wsRequest{}
			}
			select {
			case requests <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	h.logger.DebugContext(ctx, "跟随连接建立", log.String("follower_id", followerID), log.Int64("next_index", next))
	for req := range requests {
		frame := h.answer(ctx, req, lang)
		if frame == nil {
			return nil
		}
		if err := h.writeFrame(conn, *frame); err != nil {
			return nil
		}
	}
	return nil
}

// answer 返回 nil 表示连接已关闭
func (h *FollowHandler) answer(ctx context.Context, req wsRequest, lang language.Tag) *wsFrame {
	if req.Index == nil {
		next := h.tracker.NextIndex()
		return errorFrame(xerrors.FromCode(xerrors.CodeInvalidTurnIndex), lang, next)
	}

	tt, err := h.tracker.Get(ctx, *req.Index)
	switch {
	case err == nil:
		payload := toPayload(tt)
		next := tt.Index + 1
		return &wsFrame{Type: FrameEvent, Data: &payload, NextIndex: &next}
	case errors.Is(err, broadcast.ErrTurnEvicted):
		oldest := h.tracker.Oldest()
		return errorFrame(xerrors.NewTurnEvictedError(*req.Index, oldest), lang, oldest)
	case errors.Is(err, broadcast.ErrInvalidIndex):
		next := h.tracker.NextIndex()
		return errorFrame(xerrors.FromCode(xerrors.CodeInvalidTurnIndex), lang, next)
	default:
		return nil
	}
}

func errorFrame(appErr *xerrors.AppError, lang language.Tag, next int64) *wsFrame {
	return &wsFrame{
		Type:      FrameError,
		Code:      int(appErr.Code),
		Message:   i18n.GetErrorMessage(appErr.Code, lang),
		NextIndex: &next,
	}
}

func (h *FollowHandler) writeFrame(conn *websocket.Conn, frame wsFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (h *FollowHandler) followError(err error, index int64) error {
	switch {
	case errors.Is(err, broadcast.ErrTurnEvicted):
		return xerrors.NewTurnEvictedError(index, h.tracker.Oldest())
	case errors.Is(err, broadcast.ErrInvalidIndex):
		return xerrors.FromCode(xerrors.CodeInvalidTurnIndex)
	case errors.Is(err, context.DeadlineExceeded):
		return xerrors.NewFollowWaitTimeoutError(h.tracker.NextIndex())
	default:
		return xerrors.Wrap(err, xerrors.CodeInternalError, "等待回合失败")
	}
}

func toPayload(tt broadcast.TrackedTurn) TurnPayload {
	return TurnPayload{Index: tt.Index, BattleID: tt.BattleID, Seq: tt.Seq, Turn: tt.Turn}
}
