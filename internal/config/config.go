package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config 应用程序配置
type Config struct {
	TelegramToken         string        `env:"TELEGRAM_TOKEN"`                          // Telegram Bot API Token
	TelegramDebug         bool          `env:"TELEGRAM_DEBUG"`                          // 是否开启 Bot 调试日志
	OwnerIDsRaw           string        `env:"BOT_OWNER_IDS"`                           // 逗号分隔的管理员 ID
	BotOwnerIDs           []int64       `env:"-"`                                       // Bot管理员ID列表
	MongoURI              string        `env:"MONGO_URI"`                               // MongoDB连接URI
	MongoDBName           string        `env:"MONGO_DB_NAME" envDefault:"go_bridge"`    // MongoDB数据库名称
	MessageRetentionDays  int           `env:"MESSAGE_RETENTION_DAYS" envDefault:"30"`  // 对应关系保留天数（过期自动删除）
	TenantsFile           string        `env:"BRIDGE_TENANTS_FILE" envDefault:"tenants.yaml"`
	OneBotURL             string        `env:"ONEBOT_URL"`          // 无租户文件时默认实例的连接地址
	OneBotToken           string        `env:"ONEBOT_ACCESS_TOKEN"` // 无租户文件时默认实例的访问令牌
	PublicEndpoint        string        `env:"PUBLIC_ENDPOINT"`     // 富头部链接的公开地址，空表示关闭
	TempDir               string        `env:"TEMP_DIR"`
	FFmpegPath            string        `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	SilkDecoderPath       string        `env:"SILK_DECODER_PATH"`
	SilkEncoderPath       string        `env:"SILK_ENCODER_PATH"`
	MediaGroupDebounce    time.Duration `env:"MEDIA_GROUP_DEBOUNCE" envDefault:"1s"`
	PairReloadInterval    time.Duration `env:"PAIR_RELOAD_INTERVAL" envDefault:"5m"`
	WorkerCount           int           `env:"WORKER_COUNT" envDefault:"10"`
	WorkerQueueSize       int           `env:"WORKER_QUEUE_SIZE" envDefault:"100"`
	TelegramRatePerSecond int           `env:"TELEGRAM_RATE_PER_SECOND" envDefault:"30"`

	Tenants []Tenant `env:"-"` // 实例列表（来自租户文件）
}

// Load 从环境变量与租户文件加载配置
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	// 解析BOT_OWNER_IDS
	if cfg.OwnerIDsRaw != "" {
		var err error
		cfg.BotOwnerIDs, err = parseOwnerIDs(cfg.OwnerIDsRaw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse BOT_OWNER_IDS: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	tenants, err := LoadTenants(cfg.TenantsFile, cfg.defaultTenant())
	if err != nil {
		return nil, err
	}
	cfg.Tenants = tenants

	return cfg, nil
}

func (c *Config) validate() error {
	if c.MessageRetentionDays < 1 {
		return fmt.Errorf("MESSAGE_RETENTION_DAYS must be >= 1, got %d", c.MessageRetentionDays)
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be >= 1, got %d", c.WorkerCount)
	}
	if c.WorkerQueueSize < 1 {
		return fmt.Errorf("WORKER_QUEUE_SIZE must be >= 1, got %d", c.WorkerQueueSize)
	}
	if c.MediaGroupDebounce <= 0 {
		return fmt.Errorf("MEDIA_GROUP_DEBOUNCE must be positive, got %v", c.MediaGroupDebounce)
	}
	if c.PairReloadInterval < 0 {
		return fmt.Errorf("PAIR_RELOAD_INTERVAL must not be negative, got %v", c.PairReloadInterval)
	}
	return nil
}

// defaultTenant 没有租户文件时使用的单实例
func (c *Config) defaultTenant() Tenant {
	return Tenant{
		ID:          0,
		OneBotURL:   c.OneBotURL,
		OneBotToken: c.OneBotToken,
	}
}

// Retention 对应关系保留时长
func (c *Config) Retention() time.Duration {
	return time.Duration(c.MessageRetentionDays) * 24 * time.Hour
}

// parseOwnerIDs 解析逗号分隔的用户ID字符串
// 支持格式: "123456789" 或 "123456789,987654321"
func parseOwnerIDs(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid owner ID %q: %w", part, err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}
