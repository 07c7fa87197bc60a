package header

import (
	"strings"
	"testing"
)

func TestBuildHeaderURLDeterministic(t *testing.T) {
	b := NewBuilder("https://bridge.example.com/")

	first := b.BuildHeaderURL("key-1", "alice", "Alice")
	second := b.BuildHeaderURL("key-1", "alice", "Alice")
	if first != second {
		t.Fatalf("expected deterministic url: %s != %s", first, second)
	}

	want := "https://bridge.example.com/api/rich-header/key-1?user=alice&v="
	if !strings.HasPrefix(first, want) {
		t.Fatalf("unexpected url: %s", first)
	}
	if hash := strings.TrimPrefix(first, want); len(hash) != 8 {
		t.Fatalf("expected 8 hex hash, got %q", hash)
	}

	if renamed := b.BuildHeaderURL("key-1", "alice", "Alice W."); renamed == first {
		t.Fatalf("expected url to change with display text")
	}
}

func TestBuilderEnabled(t *testing.T) {
	if NewBuilder("  ").Enabled() {
		t.Fatalf("blank endpoint must be disabled")
	}
	var nilBuilder *Builder
	if nilBuilder.Enabled() {
		t.Fatalf("nil builder must be disabled")
	}
	if !NewBuilder("https://x").Enabled() {
		t.Fatalf("expected enabled builder")
	}
}

func TestApplyHeader(t *testing.T) {
	plain := ApplyHeader("a < b", "")
	if plain.HTML || plain.Text != "a < b" || plain.LinkPreview != nil {
		t.Fatalf("unexpected plain render: %+v", plain)
	}

	rich := ApplyHeader("a < b", "https://x/api/rich-header/k?user=u&v=1")
	if !rich.HTML {
		t.Fatalf("expected html render")
	}
	wantPrefix := `<a href="https://x/api/rich-header/k?user=u&amp;v=1">` + zeroWidthSpace + `</a>`
	if !strings.HasPrefix(rich.Text, wantPrefix) {
		t.Fatalf("unexpected anchor: %q", rich.Text)
	}
	if !strings.HasSuffix(rich.Text, "a &lt; b") {
		t.Fatalf("expected escaped body: %q", rich.Text)
	}
	if rich.LinkPreview == nil || rich.LinkPreview.URL != "https://x/api/rich-header/k?user=u&v=1" || !rich.LinkPreview.ShowAboveText {
		t.Fatalf("unexpected preview: %+v", rich.LinkPreview)
	}
}

func TestPlain(t *testing.T) {
	tests := []struct{ name, text, want string }{
		{"Alice", "hi", "Alice:\nhi"},
		{"Alice", "", "Alice:"},
		{"", "hi", "hi"},
	}
	for _, tt := range tests {
		if got := Plain(tt.name, tt.text); got != tt.want {
			t.Fatalf("Plain(%q,%q)=%q want %q", tt.name, tt.text, got, tt.want)
		}
	}
}
