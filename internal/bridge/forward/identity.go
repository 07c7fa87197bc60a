package forward

import (
	"context"
	"fmt"
	"strings"

	"go_bridge/internal/bridge/header"
	"go_bridge/internal/bridge/models"
)

// resolveReply 把回复指针翻译成目标端消息 ID；找不到对应关系时返回引用文本
func (p *Pipeline) resolveReply(ctx context.Context, msg *models.UnifiedMessage, pair *models.ForwardPair) (int64, string) {
	reply := msg.Reply()
	if reply == nil || reply.MessageID == 0 {
		return 0, ""
	}

	if msg.Platform == models.PlatformA {
		if id, ok := p.correlations.FindDestinationID(ctx, pair.InstanceID, pair.SideARoomID, reply.MessageID); ok {
			return id, ""
		}
	} else {
		if src := p.correlations.FindSourceOfDestination(ctx, pair.InstanceID, pair.SideBChatID, reply.MessageID); src != nil {
			return src.Seq, ""
		}
	}

	return 0, quoteReply(reply)
}

func quoteReply(reply *models.Reply) string {
	text := models.Brief(strings.TrimSpace(reply.Text))
	switch {
	case reply.SenderName != "" && text != "":
		return fmt.Sprintf("> %s: %s\n", reply.SenderName, text)
	case text != "":
		return "> " + text + "\n"
	case reply.SenderName != "":
		return fmt.Sprintf("> %s\n", reply.SenderName)
	default:
		return ""
	}
}

// renderIdentity 按昵称开关渲染发送者身份，满足条件时使用富头像预览
func (p *Pipeline) renderIdentity(msg *models.UnifiedMessage, pair *models.ForwardPair, direction models.Direction, body string) header.Rendered {
	_, nicknameMode := p.Modes()
	if !pair.EffectiveNicknameMode(nicknameMode).Enabled(direction) {
		return header.Rendered{Text: body}
	}

	name := displayName(msg.Sender)
	if p.richHeaderAllowed(pair, direction) {
		url := p.header.BuildHeaderURL(pair.APIKey, msg.Sender.ID, name)
		return header.ApplyHeader(body, url)
	}
	return header.Rendered{Text: header.Plain(name, body)}
}

func (p *Pipeline) richHeaderAllowed(pair *models.ForwardPair, direction models.Direction) bool {
	return p.cfg.RichHeader &&
		p.header.Enabled() &&
		pair.APIKey != "" &&
		!pair.HasFlag(models.FlagNoRichHeader) &&
		direction == models.DirectionAToB
}

func displayName(sender models.Sender) string {
	if name := strings.TrimSpace(sender.Name); name != "" {
		return name
	}
	return sender.ID
}
