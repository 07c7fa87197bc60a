package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go_bridge/internal/bridge/models"

	"gopkg.in/yaml.v3"
)

// Tenant 一个实例：独立的 A 侧连接、绑定表与默认模式
type Tenant struct {
	ID                int64         `yaml:"id"`
	OneBotURL         string        `yaml:"onebot_url"`
	OneBotToken       string        `yaml:"onebot_token"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	ForwardMode       string        `yaml:"forward_mode"`
	NicknameMode      string        `yaml:"nickname_mode"`
	RichHeader        bool          `yaml:"rich_header"`
	ThreadFallback    *bool         `yaml:"thread_fallback"`
}

type tenantsFile struct {
	Tenants []Tenant `yaml:"tenants"`
}

// Modes 解析实例默认的转发方向与昵称显示，未配置时全部开启
func (t Tenant) Modes() (forward, nickname models.Mode, err error) {
	forward, err = parseModeOrDefault(t.ForwardMode)
	if err != nil {
		return models.Mode{}, models.Mode{}, fmt.Errorf("tenant %d forward_mode: %w", t.ID, err)
	}
	nickname, err = parseModeOrDefault(t.NicknameMode)
	if err != nil {
		return models.Mode{}, models.Mode{}, fmt.Errorf("tenant %d nickname_mode: %w", t.ID, err)
	}
	return forward, nickname, nil
}

// AllowThreadFallback 话题未绑定时是否回退到会话级绑定（默认允许）
func (t Tenant) AllowThreadFallback() bool {
	return t.ThreadFallback == nil || *t.ThreadFallback
}

func parseModeOrDefault(pattern string) (models.Mode, error) {
	if pattern == "" {
		return models.DefaultMode, nil
	}
	return models.ParseMode(pattern)
}

// LoadTenants 读取租户文件；文件不存在时返回只含 fallback 的列表
func LoadTenants(path string, fallback Tenant) ([]Tenant, error) {
	if path == "" {
		return []Tenant{fallback}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Tenant{fallback}, nil
		}
		return nil, fmt.Errorf("failed to read tenants file: %w", err)
	}

	var file tenantsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse tenants file %s: %w", path, err)
	}
	if len(file.Tenants) == 0 {
		return nil, fmt.Errorf("tenants file %s defines no tenants", path)
	}

	seen := make(map[int64]struct{}, len(file.Tenants))
	for _, tenant := range file.Tenants {
		if _, dup := seen[tenant.ID]; dup {
			return nil, fmt.Errorf("duplicate tenant id %d", tenant.ID)
		}
		seen[tenant.ID] = struct{}{}

		if _, _, err := tenant.Modes(); err != nil {
			return nil, err
		}
	}
	return file.Tenants, nil
}
