package forward

import (
	"context"
	"fmt"

	"go_bridge/internal/bridge/models"
	"go_bridge/internal/logger"
)

// HandleRecall 同步撤回：某一侧的消息被撤回后删除另一侧的对应消息
//
// chatID/msgID 是撤回发生一侧的坐标（A 侧为群号与 seq）。返回是否发起了删除。
// 删除成功后才把记录标记为已抑制；删除失败时记录保持可撤回，可以再次发起。
// 机器人自己触发的撤回事件由路由层过滤，不会级联回来。
func (p *Pipeline) HandleRecall(ctx context.Context, platform models.Platform, chatID, msgID int64) (bool, error) {
	var (
		record *models.CorrelationRecord
		pair   *models.ForwardPair
		err    error
	)

	if platform == models.PlatformA {
		pair = p.pairs.ResolveBySideA(chatID)
		if pair == nil {
			return false, nil
		}
		record, err = p.correlations.FindBySideA(ctx, p.cfg.InstanceID, chatID, msgID)
	} else {
		record, err = p.correlations.FindBySideB(ctx, p.cfg.InstanceID, chatID, msgID)
		if record != nil {
			pair = p.pairs.ResolveBySideA(record.SideARoomID)
		}
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up correlation: %w", err)
	}
	if record == nil || pair == nil {
		return false, nil
	}
	if record.SuppressCascadeDelete {
		logger.L().Debugf("Recall suppressed: record=%s", record.ID.Hex())
		return false, nil
	}
	if pair.HasFlag(models.FlagNoRecall) {
		logger.L().Debugf("Recall disabled for pair: pair=%s", pair)
		return false, nil
	}

	direction := platform.SourceDirection()
	dest := p.destination(direction, pair)
	targetID := record.SideBMsgID
	if direction == models.DirectionBToA {
		targetID = record.SideASeq
	}

	deleter, ok := p.senders[direction].(Deleter)
	if !ok {
		return false, fmt.Errorf("%w: delete on %s", ErrMissingCapability, dest.Platform)
	}

	if err := deleter.Delete(ctx, dest, targetID); err != nil {
		return false, fmt.Errorf("failed to delete counterpart: %w", err)
	}
	if err := p.correlations.MarkSuppressed(ctx, record.ID); err != nil {
		logger.L().Warnf("Failed to mark record suppressed after delete: record=%s error=%v", record.ID.Hex(), err)
	}

	logger.L().Infof("Recall propagated: pair=%s from=%s msg=%d dest=%s dest_msg=%d",
		pair, platform, msgID, dest, targetID)
	return true, nil
}
