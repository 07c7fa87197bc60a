package telegram

import (
	"context"
	"fmt"
	"time"

	"go_bridge/internal/bridge/forward"
	"go_bridge/internal/config"
	"go_bridge/internal/logger"

	"github.com/go-telegram/bot"
)

// Config Telegram Bot 配置
type Config struct {
	Token         string  // Bot Token
	OwnerIDs      []int64 // Owner 用户 IDs
	Debug         bool    // 是否开启调试模式
	RatePerSecond int     // 发送速率上限
	ProbeURL      string  // /ping 测速地址，空表示不测速
}

// Bot B 侧 Telegram Bot：接收群消息交给转发引擎，并提供绑定管理命令
type Bot struct {
	bot      *bot.Bot
	ownerIDs []int64
	limiter  *RateLimiter
	sender   *Sender
	pool     *forward.WorkerPool
	engine   *forward.Engine

	startTime time.Time
	probeURL  string
	health    []HealthCheck
}

// New 创建 Telegram Bot 实例
//
// 命令处理通过 pool 异步执行；转发引擎创建后需调用 AttachEngine。
func New(cfg Config, pool *forward.WorkerPool) (*Bot, error) {
	// 验证配置
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token cannot be empty")
	}

	telegramBot := &Bot{
		ownerIDs: cfg.OwnerIDs,
		limiter:  NewRateLimiter(cfg.RatePerSecond),
		pool:     pool,
		probeURL: cfg.ProbeURL,
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(telegramBot.handleUpdate),
	}
	if cfg.Debug {
		opts = append(opts, bot.WithDebug())
	}

	b, err := bot.New(cfg.Token, opts...)
	if err != nil {
		telegramBot.limiter.Close()
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	telegramBot.bot = b
	telegramBot.sender = NewSender(b, telegramBot.limiter)

	// 注册 handlers
	telegramBot.registerHandlers()

	logger.L().Info("Telegram bot initialized successfully")
	return telegramBot, nil
}

// InitFromConfig 从应用配置初始化 Telegram Bot
func InitFromConfig(cfg *config.Config, pool *forward.WorkerPool) (*Bot, error) {
	telegramCfg := Config{
		Token:         cfg.TelegramToken,
		OwnerIDs:      cfg.BotOwnerIDs,
		Debug:         cfg.TelegramDebug,
		RatePerSecond: cfg.TelegramRatePerSecond,
		ProbeURL:      defaultNetworkProbeURL,
	}
	return New(telegramCfg, pool)
}

// AttachEngine 绑定转发引擎（在此之前收到的消息会被丢弃）
func (b *Bot) AttachEngine(engine *forward.Engine) {
	b.engine = engine
}

// Sender B 侧投递器
func (b *Bot) Sender() *Sender {
	return b.sender
}

// Downloader B 侧原生文件下载器
func (b *Bot) Downloader() *Downloader {
	return NewDownloader(b.bot)
}

// Start 启动 Bot（阻塞式，应在 goroutine 中运行）
func (b *Bot) Start(ctx context.Context) error {
	logger.L().Info("Starting Telegram bot...")
	b.startTime = time.Now()
	b.bot.Start(ctx)
	logger.L().Info("Telegram bot stopped")
	return nil
}

// Stop 停止 Bot
func (b *Bot) Stop(ctx context.Context) error {
	logger.L().Info("Stopping Telegram bot...")
	// bot.Start 随 context 取消退出，这里只释放限速器
	b.limiter.Close()
	return nil
}
