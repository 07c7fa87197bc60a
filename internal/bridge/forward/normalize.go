package forward

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"go_bridge/internal/bridge/media"
	"go_bridge/internal/bridge/models"
	"go_bridge/internal/logger"
)

// normalizeAll 渲染文本并解析全部媒体，失败的媒体段降级为文本占位
//
// 单条消息时文本为全部非媒体段按原顺序的拼接。媒体组时说明取第一条带用户文本的消息，
// 组内每条消息的失败占位依次追加在说明之后。
func (p *Pipeline) normalizeAll(ctx context.Context, messages []*models.UnifiedMessage, direction models.Direction, scope *media.Scope) (string, []models.MediaSegment) {
	if len(messages) == 1 {
		rendered := p.normalizeMessage(ctx, messages[0], direction, scope)
		return rendered.body, rendered.items
	}

	var (
		sb       strings.Builder
		caption  string
		degraded []string
		items    []models.MediaSegment
	)
	for _, msg := range messages {
		rendered := p.normalizeMessage(ctx, msg, direction, scope)
		items = append(items, rendered.items...)
		degraded = append(degraded, rendered.degraded...)
		if caption == "" {
			caption = rendered.text
		}
	}
	sb.WriteString(caption)
	for _, placeholder := range degraded {
		appendInline(&sb, placeholder)
	}
	return sb.String(), items
}

// renderedMessage 单条消息的渲染结果
type renderedMessage struct {
	body     string // 全部非媒体内容与失败占位按原顺序拼接
	text     string // 不含失败占位的用户内容
	degraded []string
	items    []models.MediaSegment
}

func (p *Pipeline) normalizeMessage(ctx context.Context, msg *models.UnifiedMessage, direction models.Direction, scope *media.Scope) renderedMessage {
	var (
		body     strings.Builder
		text     strings.Builder
		degraded []string
		items    []models.MediaSegment
	)

	for _, seg := range msg.Content {
		switch s := seg.(type) {
		case *models.Reply:
			continue
		case *models.Text:
			body.WriteString(s.Text)
			text.WriteString(s.Text)
		case models.MediaSegment:
			resolved, err := p.resolveMedia(ctx, s, msg.Platform, direction, scope)
			if err != nil {
				logger.L().Warnf("Media degraded to text: instance=%d msg=%d kind=%s err=%v",
					p.cfg.InstanceID, msg.ID, seg.Kind(), err)
				placeholder := models.Placeholder(seg)
				appendInline(&body, placeholder)
				degraded = append(degraded, placeholder)
				continue
			}
			items = append(items, resolved)
		default:
			placeholder := models.Placeholder(seg)
			appendInline(&body, placeholder)
			appendInline(&text, placeholder)
		}
	}

	return renderedMessage{
		body:     strings.TrimSpace(body.String()),
		text:     strings.TrimSpace(text.String()),
		degraded: degraded,
		items:    items,
	}
}

func appendInline(sb *strings.Builder, text string) {
	if text == "" {
		return
	}
	if sb.Len() > 0 {
		current := sb.String()
		if last := current[len(current)-1]; last != ' ' && last != '\n' {
			sb.WriteByte(' ')
		}
	}
	sb.WriteString(text)
}

// resolveMedia 返回一个可投递的新媒体段，不修改原消息
func (p *Pipeline) resolveMedia(ctx context.Context, seg models.MediaSegment, source models.Platform, direction models.Direction, scope *media.Scope) (models.MediaSegment, error) {
	clone := cloneMediaSegment(seg)
	ref := clone.MediaRef()

	resolved, err := p.normalizer.Resolve(ctx, ref, media.Options{Source: source})
	if err != nil {
		return nil, err
	}
	resolved.Apply(ref)

	if a, ok := clone.(*models.Audio); ok {
		return p.convertVoice(ctx, a, direction, scope)
	}
	return clone, nil
}

// convertVoice 语音需要落盘后转码；转码不可用时按文件发送
func (p *Pipeline) convertVoice(ctx context.Context, a *models.Audio, direction models.Direction, scope *media.Scope) (models.MediaSegment, error) {
	converter, ok := p.converters[direction]
	if !ok {
		return a, nil
	}

	if a.Path == "" {
		if len(a.Data) == 0 {
			return nil, fmt.Errorf("voice has no local payload")
		}
		path, err := scope.WriteTemp(a.Data, voiceExtension(&a.Media))
		if err != nil {
			return nil, err
		}
		a.Path = path
		a.Data = nil
	}

	result, err := converter.ToDestinationFormat(ctx, a.Path)
	if err != nil {
		return nil, fmt.Errorf("voice transcode failed: %w", err)
	}

	if !result.Converted {
		return &models.File{Media: models.Media{
			Path:     result.Path,
			Name:     nameOrBase(a.Name, result.Path),
			MimeType: a.MimeType,
		}}, nil
	}

	if result.Path != a.Path {
		scope.Track(result.Path)
	}
	a.Path = result.Path
	a.Voice = true
	a.MimeType = mime.TypeByExtension(filepath.Ext(result.Path))
	a.Name = nameOrBase("", result.Path)
	a.Size = 0
	return a, nil
}

func voiceExtension(m *models.Media) string {
	if ext := filepath.Ext(m.Name); ext != "" {
		return ext
	}
	if m.MimeType != "" {
		if exts, err := mime.ExtensionsByType(m.MimeType); err == nil && len(exts) > 0 {
			return exts[0]
		}
	}
	return ".amr"
}

func nameOrBase(name, path string) string {
	if name != "" {
		return name
	}
	return filepath.Base(path)
}

func cloneMediaSegment(seg models.MediaSegment) models.MediaSegment {
	switch s := seg.(type) {
	case *models.Image:
		c := *s
		return &c
	case *models.Video:
		c := *s
		return &c
	case *models.Audio:
		c := *s
		return &c
	case *models.File:
		c := *s
		return &c
	default:
		return seg
	}
}
