package telegram

import (
	"context"
	"errors"
	"testing"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFileAPI struct {
	file *botModels.File
	err  error
}

func (f *fakeFileAPI) GetFile(ctx context.Context, params *bot.GetFileParams) (*botModels.File, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.file, nil
}

func (f *fakeFileAPI) FileDownloadLink(file *botModels.File) string {
	return "https://api.telegram.org/file/botTOKEN/" + file.FilePath
}

func TestDownloader_Download(t *testing.T) {
	d := NewDownloader(&fakeFileAPI{file: &botModels.File{FileID: "f1", FilePath: "photos/file_1.jpg"}})

	resolved, err := d.Download(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, "https://api.telegram.org/file/botTOKEN/photos/file_1.jpg", resolved.URL)
	assert.Equal(t, "file_1.jpg", resolved.Name)
}

func TestDownloader_Errors(t *testing.T) {
	_, err := NewDownloader(&fakeFileAPI{}).Download(context.Background(), "")
	assert.Error(t, err)

	_, err = NewDownloader(&fakeFileAPI{err: errors.New("boom")}).Download(context.Background(), "f1")
	assert.Error(t, err)

	_, err = NewDownloader(&fakeFileAPI{file: &botModels.File{FileID: "f1"}}).Download(context.Background(), "f1")
	assert.Error(t, err)
}
