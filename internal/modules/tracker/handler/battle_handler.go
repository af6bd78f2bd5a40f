package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"battle-tracker/internal/modules/tracker/service"
	"battle-tracker/internal/pkg/ctxkey"
	"battle-tracker/internal/pkg/response"
	"battle-tracker/internal/pkg/validator"
	"battle-tracker/internal/pkg/xerrors"
)

// BattleHandler 战斗查询与删除
type BattleHandler struct {
	query      *service.QueryService
	ingest     *service.IngestService
	respWriter response.Writer
}

// NewBattleHandler creates a new battle handler
func NewBattleHandler(sc *service.ServiceContainer, respWriter response.Writer) *BattleHandler {
	return &BattleHandler{
		query:      sc.Query,
		ingest:     sc.Ingest,
		respWriter: respWriter,
	}
}

// PurgeResponse 删除结果
type PurgeResponse struct {
	BattleID string `json:"battle_id"`
	Deleted  bool   `json:"deleted"`
}

// ListBattleIDs 全部战斗ID
// @Summary 战斗ID列表
// @Tags 战斗
// @Produce json
// @Success 200 {object} response.Response{data=[]string}
// @Router /ids [get]
func (h *BattleHandler) ListBattleIDs(c echo.Context) error {
	ids, err := h.query.ListBattleIDs(c.Request().Context())
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	if ids == nil {
		ids = []string{}
	}
	return response.EchoOK(c, h.respWriter, ids)
}

// GetBattle 战斗概要
// @Summary 战斗概要
// @Tags 战斗
// @Produce json
// @Param id path string true "战斗ID"
// @Success 200 {object} response.Response{data=service.BattleView}
// @Failure 404 {object} response.Response "战斗不存在"
// @Router /battles/{id} [get]
func (h *BattleHandler) GetBattle(c echo.Context) error {
	id, err := battleIDParam(c)
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	view, err := h.query.GetBattle(c.Request().Context(), id)
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	return response.EchoOK(c, h.respWriter, view)
}

// GetReports 战斗的全部报告, 按类型
// @Summary 战斗报告
// @Tags 战斗
// @Produce json
// @Param id path string true "战斗ID"
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Failure 404 {object} response.Response "战斗不存在"
// @Router /reports/{id} [get]
func (h *BattleHandler) GetReports(c echo.Context) error {
	id, err := battleIDParam(c)
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	reports, err := h.query.GetReports(c.Request().Context(), id)
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	return response.EchoOK(c, h.respWriter, reports)
}

// GetEvents 战斗的全部回合
// @Summary 战斗回合
// @Tags 战斗
// @Produce json
// @Param id path string true "战斗ID"
// @Success 200 {object} response.Response{data=[]battle.ArchivedTurn}
// @Failure 404 {object} response.Response "战斗不存在"
// @Router /events/{id} [get]
func (h *BattleHandler) GetEvents(c echo.Context) error {
	id, err := battleIDParam(c)
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	turns, err := h.query.GetEvents(c.Request().Context(), id)
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	return response.EchoOK(c, h.respWriter, turns)
}

// ListSummaries 跨战斗汇总
// @Summary 跨战斗汇总
// @Tags 战斗
// @Produce json
// @Success 200 {object} response.Response{data=[]service.SummaryView}
// @Router /summaries [get]
func (h *BattleHandler) ListSummaries(c echo.Context) error {
	summaries, err := h.query.ListSummaries(c.Request().Context())
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	if summaries == nil {
		summaries = []service.SummaryView{}
	}
	return response.EchoOK(c, h.respWriter, summaries)
}

// PurgeBattle 删除战斗
// @Summary 删除战斗
// @Tags 战斗
// @Produce json
// @Param id path string true "战斗ID"
// @Param raw query bool false "同时删除原始日志"
// @Success 200 {object} response.Response{data=PurgeResponse}
// @Router /battles/{id} [delete]
func (h *BattleHandler) PurgeBattle(c echo.Context) error {
	id, err := battleIDParam(c)
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	removeRaw, _ := strconv.ParseBool(c.QueryParam("raw"))

	deleted, err := h.ingest.Purge(c.Request().Context(), id, removeRaw)
	if err != nil {
		return response.EchoError(c, h.respWriter, err)
	}
	if !deleted {
		return response.EchoError(c, h.respWriter, xerrors.NewBattleNotFoundError(id))
	}
	return response.EchoOK(c, h.respWriter, PurgeResponse{BattleID: id, Deleted: true})
}

func battleIDParam(c echo.Context) (string, error) {
	id := c.Param("id")
	if !validator.IsBattleID(id) {
		return "", xerrors.NewValidationError("id", "must be a 32-character hex battle id")
	}
	// 后续日志自动带上 battle_id
	c.SetRequest(c.Request().WithContext(ctxkey.WithValue(c.Request().Context(), ctxkey.BattleID, id)))
	return id, nil
}
