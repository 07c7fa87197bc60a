package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go_bridge/internal/bridge/models"
)

type stubFetcher struct {
	calls   []string
	payload map[string]*Payload
}

func (s *stubFetcher) Fetch(ctx context.Context, url string) (*Payload, error) {
	s.calls = append(s.calls, url)
	if p, ok := s.payload[url]; ok {
		return p, nil
	}
	return nil, errors.New("connection refused")
}

type stubNative struct {
	result *Resolved
	err    error
	calls  int
}

func (s *stubNative) Download(ctx context.Context, handle string) (*Resolved, error) {
	s.calls++
	return s.result, s.err
}

func TestNormalizerStrategyOrder(t *testing.T) {
	dir := t.TempDir()
	localPath := filepath.Join(dir, "img.jpg")
	if err := os.WriteFile(localPath, []byte("jpeg"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	fetcher := &stubFetcher{payload: map[string]*Payload{
		"http://a/img.jpg":      {Data: []byte("remote"), ContentType: "image/jpeg"},
		"http://native/img.jpg": {Data: []byte("native-remote")},
	}}

	tests := []struct {
		name     string
		media    models.Media
		opts     Options
		native   *stubNative
		wantForm Form
		wantData string
		wantPath string
		wantURL  string
	}{
		{
			name:     "buffer wins",
			media:    models.Media{Data: []byte("inline"), Path: localPath},
			wantForm: FormBuffer, wantData: "inline",
		},
		{
			name:     "local path kept",
			media:    models.Media{Path: localPath},
			wantForm: FormPath, wantPath: localPath,
		},
		{
			name:     "local path forced into buffer",
			media:    models.Media{Path: filepath.Join(dir, "img(2).jpg")},
			opts:     Options{ForceDownload: true},
			wantForm: FormBuffer, wantData: "jpeg",
		},
		{
			name:     "url kept when preferred",
			media:    models.Media{URL: "http://a/img.jpg"},
			opts:     Options{Preferred: FormURL},
			wantForm: FormURL, wantURL: "http://a/img.jpg",
		},
		{
			name:     "url downloaded",
			media:    models.Media{URL: "http://a/img.jpg"},
			wantForm: FormBuffer, wantData: "remote",
		},
		{
			name:     "native after failed url",
			media:    models.Media{URL: "http://dead/img.jpg", Handle: "file-1"},
			opts:     Options{Source: models.PlatformA},
			native:   &stubNative{result: &Resolved{Path: localPath}},
			wantForm: FormPath, wantPath: localPath,
		},
		{
			name:     "native url is fetched",
			media:    models.Media{Handle: "file-2"},
			opts:     Options{Source: models.PlatformA},
			native:   &stubNative{result: &Resolved{URL: "http://native/img.jpg"}},
			wantForm: FormBuffer, wantData: "native-remote",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewNormalizer(fetcher)
			if tt.native != nil {
				n.RegisterNative(models.PlatformA, tt.native)
			}

			media := tt.media
			got, err := n.Resolve(context.Background(), &media, tt.opts)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if got.Form() != tt.wantForm {
				t.Fatalf("unexpected form: got %s want %s", got.Form(), tt.wantForm)
			}
			if tt.wantData != "" && string(got.Data) != tt.wantData {
				t.Fatalf("unexpected data: %q", got.Data)
			}
			if tt.wantPath != "" && got.Path != tt.wantPath {
				t.Fatalf("unexpected path: %s", got.Path)
			}
			if tt.wantURL != "" && got.URL != tt.wantURL {
				t.Fatalf("unexpected url: %s", got.URL)
			}
		})
	}
}

func TestNormalizerRetriesURLAfterNativeFailure(t *testing.T) {
	fetcher := &stubFetcher{payload: map[string]*Payload{}}
	native := &stubNative{err: errors.New("file expired")}

	n := NewNormalizer(fetcher)
	n.RegisterNative(models.PlatformB, native)

	_, err := n.Resolve(context.Background(), &models.Media{URL: "http://flaky/x", Handle: "h"}, Options{Source: models.PlatformB})
	if !errors.Is(err, ErrNoPayload) {
		t.Fatalf("expected ErrNoPayload, got %v", err)
	}
	if len(fetcher.calls) != 2 {
		t.Fatalf("expected url fetched twice, got %v", fetcher.calls)
	}
	if native.calls != 1 {
		t.Fatalf("expected one native attempt, got %d", native.calls)
	}
}

func TestNormalizerNoSource(t *testing.T) {
	n := NewNormalizer(&stubFetcher{})
	_, err := n.Resolve(context.Background(), &models.Media{Name: "ghost.png"}, Options{})
	if !errors.Is(err, ErrNoPayload) {
		t.Fatalf("expected ErrNoPayload, got %v", err)
	}
}

func TestResolvedApply(t *testing.T) {
	m := &models.Media{URL: "http://a", Name: "a.png"}
	(&Resolved{Data: []byte("abc"), MimeType: "image/png"}).Apply(m)

	if m.URL != "" || string(m.Data) != "abc" || m.Size != 3 || m.MimeType != "image/png" || m.Name != "a.png" {
		t.Fatalf("unexpected media after apply: %+v", m)
	}
}
