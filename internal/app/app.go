package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go_bridge/internal/bridge/audio"
	"go_bridge/internal/bridge/forward"
	"go_bridge/internal/bridge/header"
	"go_bridge/internal/bridge/media"
	"go_bridge/internal/bridge/models"
	"go_bridge/internal/bridge/repository"
	"go_bridge/internal/bridge/service"
	"go_bridge/internal/config"
	"go_bridge/internal/logger"
	"go_bridge/internal/mongo"
	"go_bridge/internal/onebot"
	"go_bridge/internal/telegram"
)

const startupTimeout = 30 * time.Second

// App 应用服务容器
// 负责管理所有服务的生命周期（初始化、运行、关闭）
type App struct {
	MongoDB     *mongo.Client
	TelegramBot *telegram.Bot
	Engine      *forward.Engine

	pool      *forward.WorkerPool
	scheduler *forward.ReloadScheduler
	clients   []*onebot.Client
}

// New 初始化应用及其所有服务
// 按顺序初始化各个服务，任何服务初始化失败都会返回错误
func New(cfg *config.Config) (*App, error) {
	app := &App{}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	// 初始化 MongoDB
	mongoClient, err := mongo.InitFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init MongoDB failed: %w", err)
	}
	app.MongoDB = mongoClient
	logger.L().Info("MongoDB initialized successfully")

	pairRepo, correlationRepo, err := openRepositories(ctx, mongoClient, cfg)
	if err != nil {
		app.Close(context.Background())
		return nil, err
	}

	app.pool = forward.NewWorkerPool(cfg.WorkerCount, cfg.WorkerQueueSize)

	app.TelegramBot, err = telegram.InitFromConfig(cfg, app.pool)
	if err != nil {
		app.Close(context.Background())
		return nil, fmt.Errorf("init Telegram bot failed: %w", err)
	}
	app.TelegramBot.AddHealthCheck("🗄 数据库", mongoClient.Ping)

	audioCfg := audio.Config{
		FFmpegPath:      cfg.FFmpegPath,
		SilkDecoderPath: cfg.SilkDecoderPath,
		SilkEncoderPath: cfg.SilkEncoderPath,
		TempDir:         cfg.TempDir,
	}
	voiceToB := audio.NewTranscoder(audioCfg, audio.TargetVoice)
	voiceToA := audio.NewTranscoder(audioCfg, audio.TargetSilk)
	headerBuilder := header.NewBuilder(cfg.PublicEndpoint)
	correlations := service.NewCorrelationStore(correlationRepo)
	correlations.OnRecorded(func(ctx context.Context, record *models.CorrelationRecord) {
		logger.L().Debugf("Correlation recorded: instance=%d room=%d seq=%d chat=%d msg=%d",
			record.InstanceID, record.SideARoomID, record.SideASeq, record.SideBChatID, record.SideBMsgID)
	})
	fetcher := media.NewHTTPFetcher()

	var (
		pipelines  []*forward.Pipeline
		registries []forward.Reloader
		routers    []*onebot.Router
	)
	for _, tenant := range cfg.Tenants {
		forwardMode, nicknameMode, err := tenant.Modes()
		if err != nil {
			app.Close(context.Background())
			return nil, err
		}
		if tenant.OneBotURL == "" {
			app.Close(context.Background())
			return nil, fmt.Errorf("tenant %d: onebot_url is required", tenant.ID)
		}

		registry := service.NewPairRegistry(tenant.ID, pairRepo)
		if err := registry.Reload(ctx); err != nil {
			app.Close(context.Background())
			return nil, fmt.Errorf("load pairs for tenant %d failed: %w", tenant.ID, err)
		}

		var router *onebot.Router
		client, err := onebot.NewClient(onebot.Config{
			URL:               tenant.OneBotURL,
			AccessToken:       tenant.OneBotToken,
			ReconnectInterval: tenant.ReconnectInterval,
		}, func(ctx context.Context, ev *onebot.Event) {
			router.HandleEvent(ctx, ev)
		})
		if err != nil {
			app.Close(context.Background())
			return nil, fmt.Errorf("init OneBot client for tenant %d failed: %w", tenant.ID, err)
		}
		router = onebot.NewRouter(tenant.ID, client, client.SelfID)
		app.TelegramBot.AddHealthCheck(fmt.Sprintf("📡 OneBot #%d", tenant.ID), func(context.Context) error {
			if !client.Connected() {
				return onebot.ErrNotConnected
			}
			return nil
		})

		normalizer := media.NewNormalizer(fetcher)
		normalizer.RegisterNative(models.PlatformA, onebot.NewDownloader(client))
		normalizer.RegisterNative(models.PlatformB, app.TelegramBot.Downloader())

		pipeline, err := forward.NewPipeline(forward.Config{
			InstanceID:         tenant.ID,
			ForwardMode:        forwardMode,
			NicknameMode:       nicknameMode,
			RichHeader:         tenant.RichHeader,
			ThreadFallback:     tenant.AllowThreadFallback(),
			MediaGroupDebounce: cfg.MediaGroupDebounce,
			TempDir:            cfg.TempDir,
		}, forward.Deps{
			Pairs:        registry,
			Correlations: correlations,
			SideA:        onebot.NewSender(client),
			SideB:        app.TelegramBot.Sender(),
			Normalizer:   normalizer,
			VoiceToB:     voiceToB,
			VoiceToA:     voiceToA,
			Header:       headerBuilder,
		})
		if err != nil {
			app.Close(context.Background())
			return nil, fmt.Errorf("init pipeline for tenant %d failed: %w", tenant.ID, err)
		}

		logger.L().Infof("Tenant initialized: id=%d pairs=%d forward=%s nickname=%s",
			tenant.ID, registry.Len(), forwardMode, nicknameMode)
		pipelines = append(pipelines, pipeline)
		registries = append(registries, registry)
		routers = append(routers, router)
		app.clients = append(app.clients, client)
	}

	app.Engine = forward.NewEngine(app.pool, pipelines...)
	app.TelegramBot.AttachEngine(app.Engine)
	for _, router := range routers {
		router.Attach(app.Engine)
	}
	app.scheduler = forward.NewReloadScheduler(cfg.PairReloadInterval, registries...)

	return app, nil
}

// Run 启动所有连接并阻塞到 ctx 取消
func (a *App) Run(ctx context.Context) error {
	a.scheduler.Start()

	var wg sync.WaitGroup
	for _, client := range a.clients {
		client := client
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := client.Run(ctx); err != nil {
				logger.L().Errorf("OneBot client exited: %v", err)
			}
		}()
	}

	err := a.TelegramBot.Start(ctx)
	wg.Wait()
	return err
}

// Close 优雅关闭所有服务
// 应该在应用退出时调用，确保资源正确释放
func (a *App) Close(ctx context.Context) error {
	var errs []error

	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.Engine != nil {
		a.Engine.Destroy()
	}
	if a.pool != nil {
		a.pool.Shutdown()
	}
	if a.TelegramBot != nil {
		if err := a.TelegramBot.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop Telegram bot failed: %w", err))
		}
	}
	if a.MongoDB != nil {
		if err := a.MongoDB.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close MongoDB failed: %w", err))
		}
	}
	return errors.Join(errs...)
}

func openRepositories(ctx context.Context, client *mongo.Client, cfg *config.Config) (repository.PairRepository, repository.CorrelationRepository, error) {
	db := client.Database()
	pairRepo := repository.NewMongoPairRepository(db)
	correlationRepo := repository.NewMongoCorrelationRepository(db)

	if err := pairRepo.EnsureIndexes(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to ensure pair indexes: %w", err)
	}
	logger.L().Debug("Pair indexes ensured")

	ttl := int32(cfg.Retention() / time.Second)
	if err := correlationRepo.EnsureIndexes(ctx, ttl); err != nil {
		return nil, nil, fmt.Errorf("failed to ensure correlation indexes: %w", err)
	}
	logger.L().Debug("Correlation indexes ensured")

	return pairRepo, correlationRepo, nil
}

// PairAdmin 命令行管理绑定用到的最小依赖集合
type PairAdmin struct {
	MongoDB  *mongo.Client
	Registry *service.PairRegistry
}

// OpenPairAdmin 连接 MongoDB 并加载指定实例的绑定表
func OpenPairAdmin(ctx context.Context, cfg *config.Config, instanceID int64) (*PairAdmin, error) {
	mongoClient, err := mongo.InitFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init MongoDB failed: %w", err)
	}

	pairRepo := repository.NewMongoPairRepository(mongoClient.Database())
	if err := pairRepo.EnsureIndexes(ctx); err != nil {
		mongoClient.Close(context.Background())
		return nil, fmt.Errorf("failed to ensure pair indexes: %w", err)
	}

	registry := service.NewPairRegistry(instanceID, pairRepo)
	if err := registry.Reload(ctx); err != nil {
		mongoClient.Close(context.Background())
		return nil, fmt.Errorf("load pairs failed: %w", err)
	}
	return &PairAdmin{MongoDB: mongoClient, Registry: registry}, nil
}

// Close 断开 MongoDB
func (p *PairAdmin) Close(ctx context.Context) error {
	return p.MongoDB.Close(ctx)
}
