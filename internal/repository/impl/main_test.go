package impl

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"battle-tracker/internal/pkg/database"
)

// setupTestDB 默认使用临时 SQLite 文件, 设置 TEST_DATABASE_URL 时连接外部数据库
func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		url = filepath.Join(t.TempDir(), "tracker.db")
	} else if testing.Short() {
		t.Skip("跳过集成测试")
	}

	db, err := database.Open(context.Background(), database.Config{URL: url})
	if err != nil {
		t.Skipf("跳过依赖数据库的测试，原因: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, EnsureSchema(context.Background(), db))
	if db.Dialect == database.DialectPostgres {
		_, err = db.Exec(`TRUNCATE battles, battle_turns, battle_reports, summaries`)
		require.NoError(t, err)
	}
	return db
}
