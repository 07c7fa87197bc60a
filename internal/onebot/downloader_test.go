package onebot

import (
	"context"
	"testing"

	"go_bridge/internal/bridge/media"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloader_Actions(t *testing.T) {
	tests := []struct {
		handle string
		action string
	}{
		{handle: "image:abc.image", action: "get_image"},
		{handle: "record:v.amr", action: "get_record"},
		{handle: "video:clip.mp4", action: "get_file"},
		{handle: "file:/abc-123", action: "get_file"},
	}

	for _, tt := range tests {
		t.Run(tt.handle, func(t *testing.T) {
			caller := newFakeCaller()
			caller.responses[tt.action] = `{"file":"/data/cache/x","url":"https://cdn.example.com/x","file_name":"x.bin"}`

			resolved, err := NewDownloader(caller).Download(context.Background(), tt.handle)
			require.NoError(t, err)
			assert.Equal(t, []string{tt.action}, caller.actions())
			assert.Equal(t, media.FormPath, resolved.Form())
			assert.Equal(t, "https://cdn.example.com/x", resolved.URL)
			assert.Equal(t, "x.bin", resolved.Name)
		})
	}
}

func TestDownloader_RecordRequestsFormat(t *testing.T) {
	caller := newFakeCaller()
	caller.responses["get_record"] = `{"file":"/data/v.mp3"}`

	_, err := NewDownloader(caller).Download(context.Background(), "record:v.amr")
	require.NoError(t, err)
	assert.Equal(t, "mp3", caller.calls[0].params["out_format"])
}

func TestDownloader_Base64(t *testing.T) {
	caller := newFakeCaller()
	caller.responses["get_image"] = `{"base64":"aGk=","file_name":"a.png"}`

	resolved, err := NewDownloader(caller).Download(context.Background(), "image:a")
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), resolved.Data)
	assert.Equal(t, "a.png", resolved.Name)
}

func TestDownloader_Errors(t *testing.T) {
	caller := newFakeCaller()
	d := NewDownloader(caller)

	_, err := d.Download(context.Background(), "no-kind")
	assert.Error(t, err)

	_, err = d.Download(context.Background(), "sticker:x")
	assert.Error(t, err)

	_, err = d.Download(context.Background(), "image:empty")
	assert.Error(t, err)
}
