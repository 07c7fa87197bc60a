package media

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// 平台客户端落盘时可能给文件名追加的计数后缀：name(1).jpg / name.1.jpg
var counterSuffix = regexp.MustCompile(`^(.+?)(\(\d+\)|\.\d+)$`)

// LocateDrifted 查找本地文件，容忍文件名漂移
//
// 顺序：原路径 → 去掉计数后缀 → 同目录同前缀扫描。找不到返回 os.ErrNotExist。
func LocateDrifted(path string) (string, error) {
	if isRegularFile(path) {
		return path, nil
	}

	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(filepath.Base(path), ext)

	if m := counterSuffix.FindStringSubmatch(stem); m != nil {
		stem = m[1]
		candidate := filepath.Join(dir, stem+ext)
		if isRegularFile(candidate) {
			return candidate, nil
		}
	}

	if stem == "" {
		return "", os.ErrNotExist
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", os.ErrNotExist
	}

	var matches []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(entry.Name(), stem) {
			matches = append(matches, entry.Name())
		}
	}
	if len(matches) == 0 {
		return "", os.ErrNotExist
	}

	// 同扩展名优先，其次名字最短（最接近原名）
	sort.SliceStable(matches, func(i, j int) bool {
		ei := filepath.Ext(matches[i]) == ext
		ej := filepath.Ext(matches[j]) == ext
		if ei != ej {
			return ei
		}
		if len(matches[i]) != len(matches[j]) {
			return len(matches[i]) < len(matches[j])
		}
		return matches[i] < matches[j]
	})
	return filepath.Join(dir, matches[0]), nil
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
