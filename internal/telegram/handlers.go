package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	"go_bridge/internal/bridge/forward"
	"go_bridge/internal/bridge/models"
	"go_bridge/internal/logger"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

var errAmbiguousInstance = errors.New("存在多个实例，请在命令末尾指定实例 ID")

// registerHandlers 注册所有命令处理器
func (b *Bot) registerHandlers() {
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/ping", bot.MatchTypeExact,
		b.asyncHandler(b.handlePing))

	// 绑定管理（仅 Owner） - 异步执行
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/bind", bot.MatchTypePrefix,
		b.asyncHandler(b.RequireOwner(b.handleBind)))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/unbind", bot.MatchTypePrefix,
		b.asyncHandler(b.RequireOwner(b.handleUnbind)))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/pairs", bot.MatchTypeExact,
		b.asyncHandler(b.RequireOwner(b.handlePairs)))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/mode", bot.MatchTypePrefix,
		b.asyncHandler(b.RequireOwner(b.handleMode)))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/recall", bot.MatchTypeExact,
		b.asyncHandler(b.RequireOwner(b.handleRecall)))

	logger.L().Debug("All handlers registered with async execution")
}

// handleUpdate 默认处理器：群消息交给转发引擎
func (b *Bot) handleUpdate(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	msg := update.Message
	if msg == nil {
		msg = update.ChannelPost
	}
	if msg == nil {
		return
	}
	if strings.HasPrefix(msg.Text, "/") {
		// 未注册的命令不转发
		return
	}
	if b.engine == nil {
		logger.L().Warnf("Update %d dropped: forward engine not attached", update.ID)
		return
	}

	unified := ToUnified(msg)
	if unified == nil {
		return
	}
	if n := b.engine.DispatchSideB(ctx, unified); n == 0 {
		logger.L().Debugf("Side B message not forwarded: chat=%d msg=%d", unified.Chat.ID, unified.ID)
	}
}

// handlePing 处理 /ping 命令
func (b *Bot) handlePing(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil {
		return
	}
	b.sendMessage(ctx, update.Message.Chat.ID, b.buildPingMessage(ctx))
}

// handleBind 处理 /bind <A侧群号> [实例ID]，把当前会话（话题）绑定到 A 侧群
func (b *Bot) handleBind(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	msg := update.Message
	args := strings.Fields(msg.Text)[1:]
	if len(args) < 1 || len(args) > 2 {
		b.sendErrorMessage(ctx, msg.Chat.ID, "用法: /bind &lt;群号&gt; [实例ID]", msg.ID)
		return
	}

	roomID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || roomID == 0 {
		b.sendErrorMessage(ctx, msg.Chat.ID, "群号格式错误", msg.ID)
		return
	}
	instance, err := parseInstanceArg(args[1:])
	if err != nil {
		b.sendErrorMessage(ctx, msg.Chat.ID, err.Error(), msg.ID)
		return
	}

	pipeline, err := b.pipelineFor(msg.Chat.ID, threadOf(msg), instance)
	if err != nil {
		b.sendErrorMessage(ctx, msg.Chat.ID, err.Error(), msg.ID)
		return
	}

	pair, err := pipeline.Pairs().Bind(ctx, roomID, msg.Chat.ID, threadOf(msg))
	if err != nil {
		logger.L().Errorf("Bind failed: instance=%d room=%d chat=%d err=%v", pipeline.InstanceID(), roomID, msg.Chat.ID, err)
		b.sendErrorMessage(ctx, msg.Chat.ID, "绑定失败，请稍后重试", msg.ID)
		return
	}
	if pair.SideARoomID != roomID {
		b.sendErrorMessage(ctx, msg.Chat.ID, "当前会话已绑定其他群\n"+describePair(pair), msg.ID)
		return
	}
	if pair.SideBChatID != msg.Chat.ID || !sameThread(pair.SideBThreadID, threadOf(msg)) {
		b.sendErrorMessage(ctx, msg.Chat.ID, "该群已绑定其他会话\n"+describePair(pair), msg.ID)
		return
	}

	logger.L().Infof("Pair bound: instance=%d room=%d chat=%d", pipeline.InstanceID(), roomID, msg.Chat.ID)
	b.sendSuccessMessage(ctx, msg.Chat.ID, "绑定成功\n"+describePair(pair), msg.ID)
}

// handleUnbind 处理 /unbind [实例ID]，解除当前会话的绑定
func (b *Bot) handleUnbind(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	msg := update.Message
	instance, err := parseInstanceArg(strings.Fields(msg.Text)[1:])
	if err != nil {
		b.sendErrorMessage(ctx, msg.Chat.ID, err.Error(), msg.ID)
		return
	}

	pipeline, err := b.pipelineFor(msg.Chat.ID, threadOf(msg), instance)
	if err != nil {
		b.sendErrorMessage(ctx, msg.Chat.ID, err.Error(), msg.ID)
		return
	}

	pair := pipeline.Pairs().ResolveBySideB(msg.Chat.ID, threadOf(msg), false)
	if pair == nil {
		b.sendErrorMessage(ctx, msg.Chat.ID, "当前会话未绑定", msg.ID)
		return
	}

	removed, err := pipeline.Pairs().Unbind(ctx, pair.SideARoomID)
	if err != nil {
		logger.L().Errorf("Unbind failed: instance=%d room=%d err=%v", pipeline.InstanceID(), pair.SideARoomID, err)
		b.sendErrorMessage(ctx, msg.Chat.ID, "解绑失败，请稍后重试", msg.ID)
		return
	}
	if !removed {
		b.sendErrorMessage(ctx, msg.Chat.ID, "当前会话未绑定", msg.ID)
		return
	}

	logger.L().Infof("Pair unbound: instance=%d room=%d chat=%d", pipeline.InstanceID(), pair.SideARoomID, msg.Chat.ID)
	b.sendSuccessMessage(ctx, msg.Chat.ID, "已解除绑定\n"+describePair(pair), msg.ID)
}

// handlePairs 处理 /pairs 命令，列出全部实例的绑定
func (b *Bot) handlePairs(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	msg := update.Message
	if b.engine == nil {
		b.sendErrorMessage(ctx, msg.Chat.ID, "转发引擎未就绪", msg.ID)
		return
	}

	var sb strings.Builder
	total := 0
	for _, p := range b.engine.Pipelines() {
		pairs := p.Pairs().Pairs()
		fmt.Fprintf(&sb, "<b>实例 %d</b>（%d 个绑定）\n", p.InstanceID(), len(pairs))
		for _, pair := range pairs {
			sb.WriteString("• " + describePair(pair) + "\n")
		}
		total += len(pairs)
	}
	if total == 0 {
		b.sendMessage(ctx, msg.Chat.ID, "暂无绑定", msg.ID)
		return
	}
	b.sendMessage(ctx, msg.Chat.ID, strings.TrimRight(sb.String(), "\n"), msg.ID)
}

// handleMode 处理 /mode 命令，作用于当前会话所属实例
func (b *Bot) handleMode(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	msg := update.Message
	pipeline, err := b.pipelineFor(msg.Chat.ID, threadOf(msg), nil)
	if err != nil {
		b.sendErrorMessage(ctx, msg.Chat.ID, err.Error(), msg.ID)
		return
	}

	reply, err := pipeline.ApplyModeCommand(strings.Fields(msg.Text)[1:])
	if err != nil {
		if errors.Is(err, forward.ErrModeUsage) || errors.Is(err, models.ErrInvalidMode) {
			b.sendErrorMessage(ctx, msg.Chat.ID, "用法: /mode [direction|nickname] [00|01|10|11]", msg.ID)
			return
		}
		b.sendErrorMessage(ctx, msg.Chat.ID, html.EscapeString(err.Error()), msg.ID)
		return
	}
	b.sendMessage(ctx, msg.Chat.ID, html.EscapeString(reply), msg.ID)
}

// handleRecall 回复一条已转发的消息发送 /recall，撤回其在 A 侧的对应消息
func (b *Bot) handleRecall(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	msg := update.Message
	if msg.ReplyToMessage == nil || (msg.IsTopicMessage && msg.ReplyToMessage.ID == msg.MessageThreadID) {
		b.sendErrorMessage(ctx, msg.Chat.ID, "请回复需要撤回的消息", msg.ID)
		return
	}
	if b.engine == nil {
		b.sendErrorMessage(ctx, msg.Chat.ID, "转发引擎未就绪", msg.ID)
		return
	}

	targetID := int64(msg.ReplyToMessage.ID)
	recalled := false
	for _, p := range b.engine.Pipelines() {
		ok, err := p.HandleRecall(ctx, models.PlatformB, msg.Chat.ID, targetID)
		if err != nil {
			logger.L().Errorf("Recall failed: instance=%d chat=%d msg=%d err=%v", p.InstanceID(), msg.Chat.ID, targetID, err)
			continue
		}
		recalled = recalled || ok
	}

	if !recalled {
		b.sendErrorMessage(ctx, msg.Chat.ID, "未找到可撤回的对应消息", msg.ID)
		return
	}
	b.sendSuccessMessage(ctx, msg.Chat.ID, "已撤回对应消息", msg.ID)
}

// pipelineFor 选择命令作用的实例：显式指定 > 已绑定当前会话的实例 > 唯一实例
func (b *Bot) pipelineFor(chatID int64, threadID *int64, explicit *int64) (*forward.Pipeline, error) {
	if b.engine == nil {
		return nil, errors.New("转发引擎未就绪")
	}
	if explicit != nil {
		p, ok := b.engine.Pipeline(*explicit)
		if !ok {
			return nil, fmt.Errorf("实例 %d 不存在", *explicit)
		}
		return p, nil
	}

	pipelines := b.engine.Pipelines()
	for _, p := range pipelines {
		if p.ResolveSideB(chatID, threadID) != nil {
			return p, nil
		}
	}
	if len(pipelines) == 1 {
		return pipelines[0], nil
	}
	if len(pipelines) == 0 {
		return nil, errors.New("没有可用的实例")
	}
	return nil, errAmbiguousInstance
}

func parseInstanceArg(args []string) (*int64, error) {
	if len(args) == 0 {
		return nil, nil
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("实例 ID 格式错误: %s", html.EscapeString(args[0]))
	}
	return &id, nil
}

func describePair(pair *models.ForwardPair) string {
	text := fmt.Sprintf("群 <code>%d</code> ⇄ 会话 <code>%d</code>", pair.SideARoomID, pair.SideBChatID)
	if pair.SideBThreadID != nil {
		text += fmt.Sprintf(" 话题 <code>%d</code>", *pair.SideBThreadID)
	}
	if pair.ForwardMode != "" {
		text += " 方向 " + pair.ForwardMode
	}
	return text
}

func sameThread(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
