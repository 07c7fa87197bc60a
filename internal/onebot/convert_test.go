package onebot

import (
	"encoding/json"
	"testing"

	"go_bridge/internal/bridge/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func groupEvent(message string) *Event {
	return &Event{
		Time:        1700000000,
		SelfID:      10001,
		PostType:    PostTypeMessage,
		MessageType: MessageTypeGroup,
		MessageID:   100,
		GroupID:     123456,
		UserID:      20002,
		Message:     json.RawMessage(message),
		Sender:      EventSender{UserID: 20002, Nickname: "alice", Card: "Alice (ops)"},
	}
}

func TestToUnified_ArrayMessage(t *testing.T) {
	ev := groupEvent(`[
		{"type":"reply","data":{"id":"42"}},
		{"type":"text","data":{"text":"look "}},
		{"type":"image","data":{"file":"abc.image","url":"https://img.example.com/abc"}},
		{"type":"face","data":{"id":"14","summary":"[smile]"}},
		{"type":"at","data":{"qq":"all"}}
	]`)

	msg := ToUnified(ev)
	require.NotNil(t, msg)
	assert.Equal(t, int64(100), msg.ID)
	assert.Equal(t, int64(100), msg.Metadata.Seq)
	assert.Equal(t, models.PlatformA, msg.Platform)
	assert.Equal(t, int64(123456), msg.Chat.ID)
	assert.Equal(t, "Alice (ops)", msg.Sender.Name)
	assert.Equal(t, "20002", msg.Sender.ID)
	assert.Equal(t, "look ", msg.Text())

	require.Len(t, msg.Content, 5)
	assert.Equal(t, int64(42), msg.Reply().MessageID)

	image := msg.Content[2].(*models.Image)
	assert.Equal(t, "image:abc.image", image.Handle)
	assert.Equal(t, "https://img.example.com/abc", image.URL)

	face := msg.Content[3].(*models.Face)
	assert.Equal(t, "smile", face.Name)

	at := msg.Content[4].(*models.At)
	assert.Equal(t, "全体成员", at.Name)
}

func TestToUnified_StringMessage(t *testing.T) {
	ev := groupEvent(`"hi [CQ:record,file=v.amr,url=https://v.example.com/v]"`)

	msg := ToUnified(ev)
	require.NotNil(t, msg)
	require.Len(t, msg.Content, 2)
	assert.Equal(t, "hi ", msg.Text())

	audio := msg.Content[1].(*models.Audio)
	assert.True(t, audio.Voice)
	assert.Equal(t, "record:v.amr", audio.Handle)
}

func TestToUnified_RawMessageFallback(t *testing.T) {
	ev := groupEvent(``)
	ev.RawMessage = "plain"

	msg := ToUnified(ev)
	assert.Equal(t, "plain", msg.Text())
}

func TestToUnified_FileAndMisc(t *testing.T) {
	ev := groupEvent(`[
		{"type":"file","data":{"file":"report.pdf","file_id":"/abc-123","file_size":"2048"}},
		{"type":"location","data":{"lat":"31.2","lon":121.5,"title":"Bund"}},
		{"type":"dice","data":{"result":"5"}},
		{"type":"json","data":{"data":"{}"}},
		{"type":"unknown","data":{}}
	]`)

	msg := ToUnified(ev)
	require.Len(t, msg.Content, 4)

	file := msg.Content[0].(*models.File)
	assert.Equal(t, "file:/abc-123", file.Handle)
	assert.Equal(t, "report.pdf", file.Name)
	assert.Equal(t, int64(2048), file.Size)

	loc := msg.Content[1].(*models.Location)
	assert.Equal(t, 31.2, loc.Latitude)
	assert.Equal(t, 121.5, loc.Longitude)

	dice := msg.Content[2].(*models.Dice)
	assert.Equal(t, 5, dice.Value)

	assert.Equal(t, "[Card]", msg.Content[3].(*models.Text).Text)
}

func TestToUnified_NonGroup(t *testing.T) {
	ev := groupEvent(`[]`)
	ev.MessageType = "private"
	assert.Nil(t, ToUnified(ev))
	assert.Nil(t, ToUnified(nil))
}

func TestSenderName(t *testing.T) {
	assert.Equal(t, "card", senderName(EventSender{Card: "card", Nickname: "nick"}, 1))
	assert.Equal(t, "nick", senderName(EventSender{Nickname: "nick"}, 1))
	assert.Equal(t, "7", senderName(EventSender{}, 7))
}
