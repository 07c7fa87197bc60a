package onebot

import (
	"context"
	"encoding/json"
	"time"

	"go_bridge/internal/bridge/models"
	"go_bridge/internal/logger"
)

const replyLookupTimeout = 5 * time.Second

// Dispatcher 转发引擎的 A 侧入口
type Dispatcher interface {
	DispatchSideA(ctx context.Context, instanceID int64, msg *models.UnifiedMessage) bool
	RecallSideA(ctx context.Context, instanceID, roomID, seq int64)
}

// Router 把一个 OneBot 连接的事件交给所属实例
type Router struct {
	instanceID int64
	caller     Caller
	self       func() int64
	dispatcher Dispatcher
}

// NewRouter 创建事件路由；caller 用于补全回复引用，可为 nil
func NewRouter(instanceID int64, caller Caller, self func() int64) *Router {
	if self == nil {
		self = func() int64 { return 0 }
	}
	return &Router{instanceID: instanceID, caller: caller, self: self}
}

// Attach 绑定转发引擎（在此之前收到的事件会被丢弃）
func (r *Router) Attach(dispatcher Dispatcher) {
	r.dispatcher = dispatcher
}

// HandleEvent 处理群消息与群撤回通知，忽略自身发出的消息
func (r *Router) HandleEvent(ctx context.Context, ev *Event) {
	if r.dispatcher == nil {
		logger.L().Warnf("OneBot event dropped: instance=%d dispatcher not attached", r.instanceID)
		return
	}
	selfID := ev.SelfID
	if selfID == 0 {
		selfID = r.self()
	}

	switch ev.PostType {
	case PostTypeMessage:
		if ev.MessageType != MessageTypeGroup || (selfID != 0 && ev.UserID == selfID) {
			return
		}
		msg := ToUnified(ev)
		if msg == nil {
			return
		}
		r.enrichReply(ctx, msg)
		r.dispatcher.DispatchSideA(ctx, r.instanceID, msg)

	case PostTypeNotice:
		if ev.NoticeType != NoticeGroupRecall {
			return
		}
		if selfID != 0 && ev.OperatorID == selfID {
			return
		}
		logger.L().Debugf("OneBot recall: instance=%d group=%d msg=%d", r.instanceID, ev.GroupID, ev.MessageID)
		r.dispatcher.RecallSideA(ctx, r.instanceID, ev.GroupID, ev.MessageID)
	}
}

// enrichReply 回复段只有消息 ID，补全被回复者昵称与内容，供无法定位时引用
func (r *Router) enrichReply(ctx context.Context, msg *models.UnifiedMessage) {
	reply := msg.Reply()
	if reply == nil || r.caller == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, replyLookupTimeout)
	defer cancel()

	data, err := r.caller.Call(ctx, "get_msg", map[string]any{"message_id": reply.MessageID})
	if err != nil {
		logger.L().Debugf("Reply lookup failed: msg=%d err=%v", reply.MessageID, err)
		return
	}
	var result getMsgResult
	if err := json.Unmarshal(data, &result); err != nil {
		logger.L().Debugf("Reply lookup decode failed: msg=%d err=%v", reply.MessageID, err)
		return
	}

	reply.SenderName = senderName(result.Sender, result.Sender.UserID)
	quoted := ToUnified(&Event{
		PostType:    PostTypeMessage,
		MessageType: MessageTypeGroup,
		Message:     result.Message,
		RawMessage:  result.RawMsg,
	})
	if quoted != nil {
		reply.Text = quoted.Text()
	}
}
