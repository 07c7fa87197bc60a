package telegram

import (
	"context"
	"errors"
	"time"

	"go_bridge/internal/bridge/media"
	"go_bridge/internal/logger"

	"github.com/go-telegram/bot"
)

const (
	maxSendAttempts           = 3
	defaultSendRetryDelay     = 3 * time.Second
	maxSendExponentialBackoff = 16 * time.Second
)

// shouldRetrySend 删除等幂等操作：限流和网络类错误可重试；权限、参数、迁移等错误重试无意义
func shouldRetrySend(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, media.ErrNoPayload) {
		return false
	}

	var tooMany *bot.TooManyRequestsError
	if errors.As(err, &tooMany) {
		return true
	}
	var migrate *bot.MigrateError
	if errors.As(err, &migrate) {
		return false
	}

	switch {
	case errors.Is(err, bot.ErrorForbidden),
		errors.Is(err, bot.ErrorBadRequest),
		errors.Is(err, bot.ErrorUnauthorized),
		errors.Is(err, bot.ErrorNotFound):
		return false
	}
	return true
}

// shouldRetryDispatch 投递只在 429 时重试：请求被拒绝，没有消息送达
//
// 网络错误时上传可能已经到达 Telegram，重发会产生重复消息。
func shouldRetryDispatch(err error) bool {
	var tooMany *bot.TooManyRequestsError
	return errors.As(err, &tooMany)
}

// migrateToChatIDFromError 普通群升级为超级群后返回新的会话 ID
func migrateToChatIDFromError(err error) (int64, bool) {
	var migrate *bot.MigrateError
	if !errors.As(err, &migrate) || migrate.MigrateToChatID == 0 {
		return 0, false
	}
	return int64(migrate.MigrateToChatID), true
}

// calculateSendRetryDelay 429 按 retry_after 加抖动，其余指数退避
func calculateSendRetryDelay(err error, attempt int, chatID int64) time.Duration {
	var tooMany *bot.TooManyRequestsError
	if errors.As(err, &tooMany) {
		delay := time.Duration(tooMany.RetryAfter) * time.Second
		if delay <= 0 {
			delay = defaultSendRetryDelay
		}
		return delay + sendRetryJitter(chatID)
	}

	if attempt < 1 {
		attempt = 1
	}
	delay := time.Second << (attempt - 1)
	if delay > maxSendExponentialBackoff || delay <= 0 {
		delay = maxSendExponentialBackoff
	}
	return delay
}

// sendRetryJitter 按会话错开重试时间
func sendRetryJitter(chatID int64) time.Duration {
	if chatID < 0 {
		chatID = -chatID
	}
	return time.Duration(chatID%5+1) * 200 * time.Millisecond
}

// withRetry 每次尝试前等待令牌，retryable 判定为可重试时按策略重试
func (s *Sender) withRetry(ctx context.Context, chatID int64, op string, retryable func(error) bool, call func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		if waitErr := s.wait(ctx); waitErr != nil {
			return waitErr
		}

		err = call(ctx)
		if err == nil {
			return nil
		}
		if newID, ok := migrateToChatIDFromError(err); ok {
			logger.L().Warnf("Chat %d migrated to %d, rebind required", chatID, newID)
			return err
		}
		if !retryable(err) || attempt == maxSendAttempts {
			return err
		}

		delay := calculateSendRetryDelay(err, attempt, chatID)
		logger.L().Warnf("%s attempt %d failed for chat %d: %v, retrying in %v", op, attempt, chatID, err, delay)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
