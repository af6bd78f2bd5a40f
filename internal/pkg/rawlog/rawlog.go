// Package rawlog 按战斗保存原始提交, 每场战斗一个 .hv 文件
//
// 文件格式为 JSON Lines: 首行是 {"pk","time"} 头, 之后每行一个原始提交。
package rawlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"battle-tracker/internal/domain/battle"
)

// Ext 原始日志文件扩展名
const Ext = ".hv"

const maxLineSize = 16 << 20

// ErrMissingHeader 文件为空或首行不是头
var ErrMissingHeader = errors.New("raw log file has no header line")

// Header 文件首行
type Header struct {
	PK   string  `json:"pk"`
	Time float64 `json:"time"`
}

// Store 原始日志目录; dir 为空时所有写入都是空操作
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore 创建 Store
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Enabled 是否配置了目录
func (s *Store) Enabled() bool {
	return s != nil && s.dir != ""
}

// Path 战斗对应的文件路径
func (s *Store) Path(battleID string) string {
	return filepath.Join(s.dir, battleID+Ext)
}

// Append 追加一批原始提交; header 非空时先写头 (新战斗)
func (s *Store) Append(battleID string, header *Header, subs []battle.RawSubmission) error {
	if !s.Enabled() {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if header != nil {
		if err := enc.Encode(header); err != nil {
			return fmt.Errorf("序列化日志头失败: %w", err)
		}
	}
	for _, sub := range subs {
		if err := enc.Encode(sub); err != nil {
			return fmt.Errorf("序列化原始提交失败: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("创建日志目录失败: %w", err)
	}
	f, err := os.OpenFile(s.Path(battleID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("打开原始日志失败: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return fmt.Errorf("写入原始日志失败: %w", err)
	}
	return f.Close()
}

// Remove 删除战斗的原始日志, 文件不存在不算错误
func (s *Store) Remove(battleID string) error {
	if !s.Enabled() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.Path(battleID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("删除原始日志失败: %w", err)
	}
	return nil
}

// List 按文件名排序返回目录下全部 .hv 文件
func (s *Store) List() ([]string, error) {
	if !s.Enabled() {
		return nil, nil
	}
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取日志目录失败: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Ext) {
			continue
		}
		files = append(files, filepath.Join(s.dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// ReadFile 读取一个 .hv 文件
func ReadFile(path string) (Header, []battle.RawSubmission, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, nil, fmt.Errorf("打开原始日志失败: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		header    Header
		subs      []battle.RawSubmission
		hasHeader bool
		lineNo    int
	)
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !hasHeader {
			if err := json.Unmarshal(line, &header); err != nil || header.PK == "" {
				return Header{}, nil, fmt.Errorf("%s: %w", path, ErrMissingHeader)
			}
			hasHeader = true
			continue
		}
		var sub battle.RawSubmission
		if err := json.Unmarshal(line, &sub); err != nil {
			return Header{}, nil, fmt.Errorf("%s 第 %d 行解析失败: %w", path, lineNo, err)
		}
		subs = append(subs, sub)
	}
	if err := scanner.Err(); err != nil {
		return Header{}, nil, fmt.Errorf("读取原始日志失败: %w", err)
	}
	if !hasHeader {
		return Header{}, nil, fmt.Errorf("%s: %w", path, ErrMissingHeader)
	}
	return header, subs, nil
}
