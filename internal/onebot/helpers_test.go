package onebot

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go_bridge/internal/bridge/models"
)

type call struct {
	action string
	params map[string]any
}

// fakeCaller 按动作名返回预设响应
type fakeCaller struct {
	mu        sync.Mutex
	calls     []call
	responses map[string]string
	errs      map[string]error
	nextID    int64
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{
		responses: map[string]string{},
		errs:      map[string]error{},
		nextID:    5000,
	}
}

func (f *fakeCaller) Call(ctx context.Context, action string, params any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, _ := params.(map[string]any)
	f.calls = append(f.calls, call{action: action, params: p})
	if err := f.errs[action]; err != nil {
		return nil, err
	}
	if resp, ok := f.responses[action]; ok {
		return json.RawMessage(resp), nil
	}
	if action == "send_group_msg" {
		f.nextID++
		return json.RawMessage(fmt.Sprintf(`{"message_id":%d}`, f.nextID)), nil
	}
	return json.RawMessage(`{}`), nil
}

func (f *fakeCaller) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		result = append(result, c.action)
	}
	return result
}

// sentSegments 第 i 次 send_group_msg 的消息段
func (f *fakeCaller) sentSegments(i int) []Segment {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.action != "send_group_msg" {
			continue
		}
		if n == i {
			return c.params["message"].([]Segment)
		}
		n++
	}
	return nil
}

type recallCall struct {
	instance, room, seq int64
}

type fakeDispatcher struct {
	mu        sync.Mutex
	messages  []*models.UnifiedMessage
	instances []int64
	recalls   []recallCall
}

func (f *fakeDispatcher) DispatchSideA(ctx context.Context, instanceID int64, msg *models.UnifiedMessage) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	f.instances = append(f.instances, instanceID)
	return true
}

func (f *fakeDispatcher) RecallSideA(ctx context.Context, instanceID, roomID, seq int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recalls = append(f.recalls, recallCall{instance: instanceID, room: roomID, seq: seq})
}

func (f *fakeDispatcher) received() []*models.UnifiedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.UnifiedMessage(nil), f.messages...)
}
