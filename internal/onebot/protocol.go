package onebot

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// OneBot v11 上报类型
const (
	PostTypeMessage   = "message"
	PostTypeNotice    = "notice"
	PostTypeMetaEvent = "meta_event"

	MessageTypeGroup = "group"

	NoticeGroupRecall = "group_recall"
)

type actionRequest struct {
	Action string `json:"action"`
	Params any    `json:"params,omitempty"`
	Echo   string `json:"echo"`
}

type actionResponse struct {
	Status  string          `json:"status"`
	RetCode int             `json:"retcode"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Wording string          `json:"wording"`
	Echo    string          `json:"echo"`
}

// ActionError 动作调用返回失败状态
type ActionError struct {
	Action  string
	RetCode int
	Message string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("onebot action %s failed: retcode=%d %s", e.Action, e.RetCode, e.Message)
}

// EventSender 消息事件的发送者
type EventSender struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	Card     string `json:"card"`
}

// Event 上报事件（消息、通知、元事件共用）
type Event struct {
	Time          int64           `json:"time"`
	SelfID        int64           `json:"self_id"`
	PostType      string          `json:"post_type"`
	MessageType   string          `json:"message_type"`
	SubType       string          `json:"sub_type"`
	NoticeType    string          `json:"notice_type"`
	MetaEventType string          `json:"meta_event_type"`
	MessageID     int64           `json:"message_id"`
	GroupID       int64           `json:"group_id"`
	GroupName     string          `json:"group_name"`
	UserID        int64           `json:"user_id"`
	OperatorID    int64           `json:"operator_id"`
	Message       json.RawMessage `json:"message"`
	RawMessage    string          `json:"raw_message"`
	Sender        EventSender     `json:"sender"`
}

// Segments 解析消息内容，兼容数组格式与 CQ 码字符串
func (e *Event) Segments() ([]Segment, error) {
	if len(e.Message) == 0 || string(e.Message) == "null" {
		return ParseCQ(e.RawMessage), nil
	}
	if e.Message[0] == '"' {
		var text string
		if err := json.Unmarshal(e.Message, &text); err != nil {
			return nil, fmt.Errorf("failed to decode message string: %w", err)
		}
		return ParseCQ(text), nil
	}

	var segments []Segment
	if err := json.Unmarshal(e.Message, &segments); err != nil {
		return nil, fmt.Errorf("failed to decode message segments: %w", err)
	}
	return segments, nil
}

// Segment 消息段
type Segment struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// NewSegment 创建消息段
func NewSegment(kind string, data map[string]any) Segment {
	if data == nil {
		data = map[string]any{}
	}
	return Segment{Type: kind, Data: data}
}

// Str 读取字符串字段（数字字段会被格式化）
func (s Segment) Str(key string) string {
	switch v := s.Data[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}

// Int 读取整数字段，兼容字符串形式
func (s Segment) Int(key string) int64 {
	n, _ := strconv.ParseInt(s.Str(key), 10, 64)
	return n
}

// Float 读取浮点字段，兼容字符串形式
func (s Segment) Float(key string) float64 {
	f, _ := strconv.ParseFloat(s.Str(key), 64)
	return f
}

type sendMsgResult struct {
	MessageID int64 `json:"message_id"`
}

type fileResult struct {
	File     string `json:"file"`
	URL      string `json:"url"`
	FileName string `json:"file_name"`
	Base64   string `json:"base64"`
}

type getMsgResult struct {
	MessageID int64           `json:"message_id"`
	Sender    EventSender     `json:"sender"`
	Message   json.RawMessage `json:"message"`
	RawMsg    string          `json:"raw_message"`
}
