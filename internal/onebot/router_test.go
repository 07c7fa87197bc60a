package onebot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_DispatchesGroupMessages(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	router := NewRouter(3, nil, nil)
	router.Attach(dispatcher)

	router.HandleEvent(context.Background(), groupEvent(`[{"type":"text","data":{"text":"hi"}}]`))

	received := dispatcher.received()
	require.Len(t, received, 1)
	assert.Equal(t, "hi", received[0].Text())
	assert.Equal(t, []int64{3}, dispatcher.instances)
}

func TestRouter_SkipsSelfAndOtherEvents(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	router := NewRouter(1, nil, func() int64 { return 20002 })
	router.Attach(dispatcher)

	self := groupEvent(`[{"type":"text","data":{"text":"echo"}}]`)
	self.SelfID = 0
	router.HandleEvent(context.Background(), self)

	private := groupEvent(`[]`)
	private.MessageType = "private"
	router.HandleEvent(context.Background(), private)

	router.HandleEvent(context.Background(), &Event{PostType: PostTypeNotice, NoticeType: "group_increase"})

	assert.Empty(t, dispatcher.received())
	assert.Empty(t, dispatcher.recalls)
}

func TestRouter_Recall(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	router := NewRouter(2, nil, nil)
	router.Attach(dispatcher)

	router.HandleEvent(context.Background(), &Event{
		SelfID: 10001, PostType: PostTypeNotice, NoticeType: NoticeGroupRecall,
		GroupID: 123, MessageID: 100, OperatorID: 20002,
	})
	// 自己发起的撤回不再回传
	router.HandleEvent(context.Background(), &Event{
		SelfID: 10001, PostType: PostTypeNotice, NoticeType: NoticeGroupRecall,
		GroupID: 123, MessageID: 101, OperatorID: 10001,
	})

	assert.Equal(t, []recallCall{{instance: 2, room: 123, seq: 100}}, dispatcher.recalls)
}

func TestRouter_EnrichesReply(t *testing.T) {
	caller := newFakeCaller()
	caller.responses["get_msg"] = `{"message_id":42,"sender":{"user_id":3,"nickname":"bob"},"message":[{"type":"text","data":{"text":"original"}}]}`

	dispatcher := &fakeDispatcher{}
	router := NewRouter(1, caller, nil)
	router.Attach(dispatcher)

	router.HandleEvent(context.Background(), groupEvent(`[{"type":"reply","data":{"id":"42"}},{"type":"text","data":{"text":"agreed"}}]`))

	received := dispatcher.received()
	require.Len(t, received, 1)
	reply := received[0].Reply()
	require.NotNil(t, reply)
	assert.Equal(t, "bob", reply.SenderName)
	assert.Equal(t, "original", reply.Text)
	assert.Equal(t, int64(42), caller.calls[0].params["message_id"])
}

func TestRouter_DropsWithoutDispatcher(t *testing.T) {
	router := NewRouter(1, nil, nil)
	assert.NotPanics(t, func() {
		router.HandleEvent(context.Background(), groupEvent(`[]`))
	})
}
