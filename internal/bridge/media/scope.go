package media

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go_bridge/internal/logger"

	"github.com/google/uuid"
)

// Scope 单个转发任务的临时文件集合，任务结束时统一删除
type Scope struct {
	dir   string
	mu    sync.Mutex
	files []string
}

// NewScope 创建临时文件作用域，dir 为空时使用系统临时目录
func NewScope(dir string) *Scope {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Scope{dir: dir}
}

// Dir 临时目录
func (s *Scope) Dir() string {
	return s.dir
}

// NewPath 分配一个新的临时文件路径并登记
func (s *Scope) NewPath(ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	path := filepath.Join(s.dir, "bridge-"+uuid.NewString()+ext)
	s.Track(path)
	return path
}

// WriteTemp 把数据写入新的临时文件
func (s *Scope) WriteTemp(data []byte, ext string) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	path := s.NewPath(ext)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	return path, nil
}

// Track 登记一个需要在任务结束时删除的文件
func (s *Scope) Track(path string) {
	if path == "" {
		return
	}
	s.mu.Lock()
	s.files = append(s.files, path)
	s.mu.Unlock()
}

// Files 当前登记的文件
func (s *Scope) Files() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.files...)
}

// Cleanup 删除全部登记文件，可重复调用
func (s *Scope) Cleanup() {
	s.mu.Lock()
	files := s.files
	s.files = nil
	s.mu.Unlock()

	for _, path := range files {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.L().Warnf("Failed to remove temp file: path=%s err=%v", path, err)
		}
	}
}
