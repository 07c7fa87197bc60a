package forward

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go_bridge/internal/bridge/audio"
	"go_bridge/internal/bridge/header"
	"go_bridge/internal/bridge/media"
	"go_bridge/internal/bridge/models"
	"go_bridge/internal/bridge/service"
	"go_bridge/internal/logger"
)

// Outcome 单条入站消息的处理结果
type Outcome int

const (
	OutcomeForwarded         Outcome = iota // 已投递并记录
	OutcomeUnpaired                         // 无绑定
	OutcomeDirectionDisabled                // 方向关闭
	OutcomeIgnored                          // 命中忽略规则
	OutcomeBatched                          // 进入媒体组缓冲
	OutcomeEmpty                            // 无可投递内容
	OutcomeFailed                           // 投递失败
)

func (o Outcome) String() string {
	switch o {
	case OutcomeForwarded:
		return "forwarded"
	case OutcomeUnpaired:
		return "unpaired"
	case OutcomeDirectionDisabled:
		return "direction_disabled"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeBatched:
		return "batched"
	case OutcomeEmpty:
		return "empty"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// DefaultMediaGroupDebounce 媒体组收集等待时间
const DefaultMediaGroupDebounce = time.Second

// MediaResolver 媒体规范化
type MediaResolver interface {
	Resolve(ctx context.Context, m *models.Media, opts media.Options) (*media.Resolved, error)
}

// AudioConverter 语音转码
type AudioConverter interface {
	ToDestinationFormat(ctx context.Context, sourcePath string) (audio.Result, error)
}

// Config 单个实例（租户）的转发配置
type Config struct {
	InstanceID         int64
	ForwardMode        models.Mode // 实例默认转发方向
	NicknameMode       models.Mode // 实例默认昵称显示
	RichHeader         bool
	ThreadFallback     bool
	MediaGroupDebounce time.Duration
	TempDir            string
}

// Deps 转发管线依赖
type Deps struct {
	Pairs        service.PairService
	Correlations service.CorrelationService
	SideA        Sender
	SideB        Sender
	Normalizer   MediaResolver
	VoiceToB     AudioConverter // 可选，A→B 语音转码
	VoiceToA     AudioConverter // 可选，B→A 语音转码
	Header       *header.Builder
}

// Pipeline 单个实例的转发管线
//
// 入站消息依次经过：绑定解析、方向开关、忽略规则、媒体组缓冲、回复定位、
// 媒体规范化、身份渲染、投递、记录对应关系。
type Pipeline struct {
	cfg          Config
	pairs        service.PairService
	correlations service.CorrelationService
	senders      map[models.Direction]Sender
	converters   map[models.Direction]AudioConverter
	normalizer   MediaResolver
	header       *header.Builder
	batcher      *MediaGroupBatcher

	modeMu       sync.RWMutex
	forwardMode  models.Mode
	nicknameMode models.Mode

	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewPipeline 创建转发管线，缺少必需能力时返回 ErrMissingCapability
func NewPipeline(cfg Config, deps Deps) (*Pipeline, error) {
	switch {
	case deps.SideA == nil:
		return nil, fmt.Errorf("%w: side A sender (instance=%d)", ErrMissingCapability, cfg.InstanceID)
	case deps.SideB == nil:
		return nil, fmt.Errorf("%w: side B sender (instance=%d)", ErrMissingCapability, cfg.InstanceID)
	case deps.Normalizer == nil:
		return nil, fmt.Errorf("%w: media normalizer (instance=%d)", ErrMissingCapability, cfg.InstanceID)
	case deps.Pairs == nil:
		return nil, fmt.Errorf("%w: pair registry (instance=%d)", ErrMissingCapability, cfg.InstanceID)
	case deps.Correlations == nil:
		return nil, fmt.Errorf("%w: correlation store (instance=%d)", ErrMissingCapability, cfg.InstanceID)
	}

	if cfg.MediaGroupDebounce <= 0 {
		cfg.MediaGroupDebounce = DefaultMediaGroupDebounce
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		cfg:          cfg,
		pairs:        deps.Pairs,
		correlations: deps.Correlations,
		senders: map[models.Direction]Sender{
			models.DirectionAToB: deps.SideB,
			models.DirectionBToA: deps.SideA,
		},
		converters:   make(map[models.Direction]AudioConverter, 2),
		normalizer:   deps.Normalizer,
		header:       deps.Header,
		forwardMode:  cfg.ForwardMode,
		nicknameMode: cfg.NicknameMode,
		baseCtx:      ctx,
		cancel:       cancel,
	}
	if deps.VoiceToB != nil {
		p.converters[models.DirectionAToB] = deps.VoiceToB
	}
	if deps.VoiceToA != nil {
		p.converters[models.DirectionBToA] = deps.VoiceToA
	}
	p.batcher = NewMediaGroupBatcher(cfg.MediaGroupDebounce, p.flushMediaGroup)

	logger.L().Infof("Forward pipeline created: instance=%d forward_mode=%s nickname_mode=%s rich_header=%v",
		cfg.InstanceID, cfg.ForwardMode, cfg.NicknameMode, cfg.RichHeader)
	return p, nil
}

// InstanceID 所属实例
func (p *Pipeline) InstanceID() int64 {
	return p.cfg.InstanceID
}

// Pairs 实例的绑定表
func (p *Pipeline) Pairs() service.PairService {
	return p.pairs
}

// ResolveSideB 按实例的话题回退配置解析 B 侧会话
func (p *Pipeline) ResolveSideB(chatID int64, threadID *int64) *models.ForwardPair {
	return p.pairs.ResolveBySideB(chatID, threadID, p.cfg.ThreadFallback)
}

// Modes 当前实例默认的转发方向与昵称显示
func (p *Pipeline) Modes() (forward, nickname models.Mode) {
	p.modeMu.RLock()
	defer p.modeMu.RUnlock()
	return p.forwardMode, p.nicknameMode
}

// SetForwardMode 修改实例默认转发方向（仅内存）
func (p *Pipeline) SetForwardMode(mode models.Mode) {
	p.modeMu.Lock()
	p.forwardMode = mode
	p.modeMu.Unlock()
	logger.L().Infof("Forward mode changed: instance=%d mode=%s", p.cfg.InstanceID, mode)
}

// SetNicknameMode 修改实例默认昵称显示（仅内存）
func (p *Pipeline) SetNicknameMode(mode models.Mode) {
	p.modeMu.Lock()
	p.nicknameMode = mode
	p.modeMu.Unlock()
	logger.L().Infof("Nickname mode changed: instance=%d mode=%s", p.cfg.InstanceID, mode)
}

// Process 处理一条入站消息
func (p *Pipeline) Process(ctx context.Context, msg *models.UnifiedMessage) Outcome {
	if msg == nil {
		return OutcomeEmpty
	}
	direction := msg.Direction()

	pair := p.resolvePair(msg)
	if pair == nil {
		logger.L().Debugf("No pair for inbound message: instance=%d platform=%s chat=%d",
			p.cfg.InstanceID, msg.Platform, msg.Chat.ID)
		return OutcomeUnpaired
	}

	forwardMode, _ := p.Modes()
	if !pair.EffectiveForwardMode(forwardMode).Enabled(direction) {
		logger.L().Debugf("Direction disabled: pair=%s direction=%s", pair, direction)
		return OutcomeDirectionDisabled
	}

	if pair.IsIgnored(msg.Sender.ID, msg.Text()) {
		logger.L().Debugf("Message ignored by pair rules: pair=%s sender=%s", pair, msg.Sender.ID)
		return OutcomeIgnored
	}

	if direction == models.DirectionBToA && msg.Metadata.MediaGroupID != "" {
		p.batcher.Add(msg, pair)
		return OutcomeBatched
	}

	return p.forward(ctx, []*models.UnifiedMessage{msg}, pair, false)
}

// Destroy 停止媒体组计时器（不再投递缓冲中的消息）并取消进行中的批量投递
func (p *Pipeline) Destroy() {
	p.batcher.Destroy()
	p.cancel()
	logger.L().Infof("Forward pipeline destroyed: instance=%d", p.cfg.InstanceID)
}

func (p *Pipeline) resolvePair(msg *models.UnifiedMessage) *models.ForwardPair {
	if msg.Platform == models.PlatformA {
		return p.pairs.ResolveBySideA(msg.Chat.ID)
	}
	return p.pairs.ResolveBySideB(msg.Chat.ID, msg.Metadata.ThreadID, p.cfg.ThreadFallback)
}

func (p *Pipeline) destination(direction models.Direction, pair *models.ForwardPair) Destination {
	if direction == models.DirectionAToB {
		return Destination{
			Platform: models.PlatformB,
			ChatID:   pair.SideBChatID,
			ThreadID: pair.SideBThreadID,
		}
	}
	return Destination{Platform: models.PlatformA, ChatID: pair.SideARoomID}
}

func (p *Pipeline) flushMediaGroup(messages []*models.UnifiedMessage, pair *models.ForwardPair) {
	if p.baseCtx.Err() != nil {
		return
	}
	p.forward(p.baseCtx, messages, pair, true)
}

// forward 规范化、渲染、投递并记录；messages 已按原生 ID 排好序
func (p *Pipeline) forward(ctx context.Context, messages []*models.UnifiedMessage, pair *models.ForwardPair, album bool) Outcome {
	first := messages[0]
	anchor := messages[len(messages)-1]
	direction := first.Direction()
	dest := p.destination(direction, pair)
	sender := p.senders[direction]

	scope := media.NewScope(p.cfg.TempDir)
	defer scope.Cleanup()

	body, items := p.normalizeAll(ctx, messages, direction, scope)

	replyToID, quote := p.resolveReply(ctx, first, pair)
	if quote != "" {
		body = quote + body
	}

	if body == "" && len(items) == 0 {
		logger.L().Debugf("Nothing to forward: pair=%s direction=%s msg=%d", pair, direction, first.ID)
		return OutcomeEmpty
	}

	rendered := p.renderIdentity(first, pair, direction, body)
	out := &Outbound{
		Text:        rendered.Text,
		HTML:        rendered.HTML,
		LinkPreview: rendered.LinkPreview,
		ReplyToID:   replyToID,
		Media:       items,
	}

	result, err := dispatch(ctx, sender, dest, out, album)
	primaryID, delivered := result.PrimaryID()
	if !delivered {
		logger.L().Errorf("Forward failed: pair=%s direction=%s msg=%d dest=%s err=%v",
			pair, direction, first.ID, dest, err)
		return OutcomeFailed
	}
	if err != nil {
		logger.L().Warnf("Forward partially delivered: pair=%s direction=%s msg=%d delivered=%d err=%v",
			pair, direction, first.ID, len(result.MessageIDs), err)
	}

	p.correlations.RecordForwardedMessage(ctx, anchor, primaryID, pair)

	logger.L().Infof("Forwarded: pair=%s direction=%s msg=%d dest_msg=%d parts=%d media=%d",
		pair, direction, anchor.ID, primaryID, len(messages), len(items))
	return OutcomeForwarded
}
