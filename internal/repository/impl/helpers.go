package impl

import (
	"strings"
	"time"

	"github.com/aarondl/sqlboiler/v4/boil"
	"github.com/aarondl/sqlboiler/v4/types"
	"github.com/google/uuid"
)

// metaReportType 回合元数据报告, 不参与结算
const metaReportType = "meta"

type rowScanner interface {
	Scan(dest ...any) error
}

// pick execer 为空时回退到连接池
func pick(execer boil.ContextExecutor, db boil.ContextExecutor) boil.ContextExecutor {
	if execer != nil {
		return execer
	}
	return db
}

// newBattleID 32 位十六进制, 不带连字符
func newBattleID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// jsonOr 空值时使用默认 JSON
func jsonOr(j types.JSON, fallback string) types.JSON {
	if len(j) == 0 {
		return types.JSON(fallback)
	}
	return j
}
