package forward

import (
	"errors"
	"fmt"
	"strings"

	"go_bridge/internal/bridge/models"
)

// ErrModeUsage /mode 参数错误
var ErrModeUsage = errors.New("usage: /mode <direction|nickname> <2-bit pattern>")

// ApplyModeCommand 处理 /mode 命令参数并返回回复文本
//
//	/mode                     查看当前设置
//	/mode direction 10        仅 A→B
//	/mode nickname 01         仅 B→A 显示昵称
func (p *Pipeline) ApplyModeCommand(args []string) (string, error) {
	if len(args) == 0 {
		return p.describeModes(), nil
	}
	if len(args) != 2 {
		return "", ErrModeUsage
	}

	mode, err := models.ParseMode(args[1])
	if err != nil {
		return "", err
	}

	switch strings.ToLower(args[0]) {
	case "direction", "forward", "d":
		p.SetForwardMode(mode)
	case "nickname", "nick", "n":
		p.SetNicknameMode(mode)
	default:
		return "", ErrModeUsage
	}
	return "✅ 已更新\n" + p.describeModes(), nil
}

func (p *Pipeline) describeModes() string {
	forward, nickname := p.Modes()
	return fmt.Sprintf("实例 %d\n转发方向: %s (%s %s, %s %s)\n昵称显示: %s",
		p.cfg.InstanceID,
		forward,
		models.DirectionAToB, onOff(forward.AToB),
		models.DirectionBToA, onOff(forward.BToA),
		nickname,
	)
}

func onOff(enabled bool) string {
	if enabled {
		return "开"
	}
	return "关"
}
