// Package archive 退役战斗的回合归档: zlib 压缩的 JSON 数组
package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"battle-tracker/internal/domain/battle"
)

// Encode 压缩回合列表; 空列表编码为 []
func Encode(turns []battle.ArchivedTurn) ([]byte, error) {
	if turns == nil {
		turns = []battle.ArchivedTurn{}
	}
	raw, err := json.Marshal(turns)
	if err != nil {
		return nil, fmt.Errorf("序列化归档失败: %w", err)
	}

	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("创建压缩器失败: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("压缩归档失败: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("压缩归档失败: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode 解压回合列表; 空 blob 视为没有回合
func Decode(blob []byte) ([]battle.ArchivedTurn, error) {
	if len(blob) == 0 {
		return []battle.ArchivedTurn{}, nil
	}

	r, err := zlib.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("打开归档失败: %w", err)
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("解压归档失败: %w", err)
	}

	turns := make([]battle.ArchivedTurn, 0)
	if err := json.Unmarshal(raw, &turns); err != nil {
		return nil, fmt.Errorf("解析归档失败: %w", err)
	}
	return turns, nil
}
