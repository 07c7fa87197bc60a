package header

import (
	"crypto/sha256"
	"encoding/hex"
	"html"
	"net/url"
	"strings"
)

// 零宽空格，作为隐藏链接的锚文本
const zeroWidthSpace = "\u200b"

// LinkPreview 投递时的链接预览选项
type LinkPreview struct {
	URL           string
	ShowAboveText bool
	PreferSmall   bool
}

// Rendered 渲染后的文本
type Rendered struct {
	Text        string
	HTML        bool
	LinkPreview *LinkPreview
}

// Builder 富头像链接构造器
type Builder struct {
	endpoint string
}

// NewBuilder 创建构造器，endpoint 为空时 Enabled 返回 false
func NewBuilder(endpoint string) *Builder {
	return &Builder{endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/")}
}

// Enabled 是否配置了公开地址
func (b *Builder) Enabled() bool {
	return b != nil && b.endpoint != ""
}

// BuildHeaderURL 生成确定性的头像卡片地址
//
// v 参数是 displayText 的 sha256 前 8 位十六进制，昵称变化时地址随之变化，
// 促使目标端重新抓取预览。
func (b *Builder) BuildHeaderURL(key, senderID, displayText string) string {
	sum := sha256.Sum256([]byte(displayText))

	q := url.Values{}
	q.Set("user", senderID)
	q.Set("v", hex.EncodeToString(sum[:])[:8])

	return b.endpoint + "/api/rich-header/" + url.PathEscape(key) + "?" + q.Encode()
}

// ApplyHeader 把头像链接以零宽锚点隐藏在文本前，headerURL 为空时返回纯文本
func ApplyHeader(text, headerURL string) Rendered {
	if headerURL == "" {
		return Rendered{Text: text}
	}

	var sb strings.Builder
	sb.WriteString(`<a href="`)
	sb.WriteString(html.EscapeString(headerURL))
	sb.WriteString(`">`)
	sb.WriteString(zeroWidthSpace)
	sb.WriteString(`</a>`)
	sb.WriteString(html.EscapeString(text))

	return Rendered{
		Text: sb.String(),
		HTML: true,
		LinkPreview: &LinkPreview{
			URL:           headerURL,
			ShowAboveText: true,
			PreferSmall:   true,
		},
	}
}

// Plain 纯文本昵称前缀
func Plain(displayName, text string) string {
	if displayName == "" {
		return text
	}
	if text == "" {
		return displayName + ":"
	}
	return displayName + ":\n" + text
}
