package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"battle-tracker/internal/modules/tracker/service"
	"battle-tracker/internal/pkg/validator"
	"battle-tracker/internal/pkg/xerrors"
)

// TrackerRPCHandler 供其他 mqant 模块调用的只读接口
// 请求与响应都是 structpb 编码的 protobuf
type TrackerRPCHandler struct {
	query *service.QueryService
}

// NewTrackerRPCHandler 创建 RPC Handler
func NewTrackerRPCHandler(sc *service.ServiceContainer) *TrackerRPCHandler {
	return &TrackerRPCHandler{query: sc.Query}
}

// ==================== RPC Methods ====================

// ListBattleIDs 响应 {"ids": [...]}
func (h *TrackerRPCHandler) ListBattleIDs(data []byte) ([]byte, error) {
	ctx := context.Background()

	ids, err := h.query.ListBattleIDs(ctx)
	if err != nil {
		return nil, err
	}

	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	resp, err := structpb.NewStruct(map[string]any{"ids": values})
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeInternalError, "encode response failed")
	}
	return proto.Marshal(resp)
}

// GetBattleReports 请求 {"battle_id": "..."}, 响应 {"battle_id": ..., "reports": {type: data}}
func (h *TrackerRPCHandler) GetBattleReports(data []byte) ([]byte, error) {
	req := &structpb.Struct{}
	if err := proto.Unmarshal(data, req); err != nil {
		return nil, xerrors.NewValidationError("request", "invalid protobuf data")
	}

	battleID := req.GetFields()["battle_id"].GetStringValue()
	if !validator.IsBattleID(battleID) {
		return nil, xerrors.NewValidationError("battle_id", "must be a 32-character hex battle id")
	}

	ctx := context.Background()
	reports, err := h.query.GetReports(ctx, battleID)
	if err != nil {
		return nil, err
	}

	decoded := make(map[string]any, len(reports))
	for reportType, raw := range reports {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, xerrors.NewReportCorruptedError(battleID, reportType, fmt.Errorf("decode report: %w", err))
		}
		decoded[reportType] = v
	}

	resp, err := structpb.NewStruct(map[string]any{"battle_id": battleID, "reports": decoded})
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeInternalError, "encode response failed")
	}
	return proto.Marshal(resp)
}
