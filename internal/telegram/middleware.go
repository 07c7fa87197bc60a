package telegram

import (
	"context"
	"fmt"
	"slices"

	"go_bridge/internal/bridge/forward"
	"go_bridge/internal/logger"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

// RequireOwner 中间件：仅允许 Owner 执行
func (b *Bot) RequireOwner(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
		if update.Message == nil || update.Message.From == nil {
			return
		}

		if !b.isOwner(update.Message.From.ID) {
			logger.L().Warnf("Non-owner user %d attempted to use owner command", update.Message.From.ID)
			b.sendErrorMessage(ctx, update.Message.Chat.ID, "此命令仅限 Bot Owner 使用", update.Message.ID)
			return
		}

		next(ctx, botInstance, update)
	}
}

func (b *Bot) isOwner(userID int64) bool {
	return slices.Contains(b.ownerIDs, userID)
}

// asyncHandler 把 handler 放到工作池执行，避免阻塞 update 轮询
func (b *Bot) asyncHandler(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
		if b.pool == nil {
			next(ctx, botInstance, update)
			return
		}
		accepted := b.pool.Submit(forward.Task{
			ID:  fmt.Sprintf("update-%d", update.ID),
			Ctx: ctx,
			Run: func(ctx context.Context) {
				next(ctx, botInstance, update)
			},
		})
		if !accepted {
			logger.L().Warnf("Handler dropped, worker pool unavailable: update_id=%d", update.ID)
		}
	}
}
