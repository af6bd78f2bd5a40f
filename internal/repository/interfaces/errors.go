package interfaces

import "errors"

var (
	// ErrBattleNotFound 战斗不存在
	ErrBattleNotFound = errors.New("battle not found")
	// ErrReportNotFound 报告不存在
	ErrReportNotFound = errors.New("battle report not found")
	// ErrSummaryNotFound 汇总不存在
	ErrSummaryNotFound = errors.New("summary not found")
)
