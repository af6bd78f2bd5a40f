package impl

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"battle-tracker/internal/pkg/database"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// EnsureSchema 按方言建表, 可重复执行
func EnsureSchema(ctx context.Context, db *database.DB) error {
	file := "schema/sqlite.sql"
	if db.Dialect == database.DialectPostgres {
		file = "schema/postgres.sql"
	}

	content, err := schemaFS.ReadFile(file)
	if err != nil {
		return fmt.Errorf("读取建表脚本失败: %w", err)
	}

	for _, stmt := range strings.Split(string(content), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("执行建表语句失败: %w", err)
		}
	}
	return nil
}
