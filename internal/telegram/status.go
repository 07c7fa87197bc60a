package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultNetworkProbeURL = "https://api.telegram.org"

// HealthCheck 一个可在 /ping 中展示的依赖检查
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// AddHealthCheck 注册 /ping 展示的依赖检查
func (b *Bot) AddHealthCheck(name string, check func(ctx context.Context) error) {
	b.health = append(b.health, HealthCheck{Name: name, Check: check})
}

// buildPingMessage 构建 /ping 命令的响应文本
func (b *Bot) buildPingMessage(ctx context.Context) string {
	lines := []string{"🏓 Pong!"}

	if !b.startTime.IsZero() {
		uptime := time.Since(b.startTime)
		lines = append(lines, fmt.Sprintf("⏱ 运行时间: %s", formatDuration(uptime)))
	}

	if b.pool != nil {
		stats := b.pool.Stats()
		lines = append(lines, fmt.Sprintf("🛠 工作池: %d 个协程，队列 %d/%d", stats.Workers, stats.QueueLength, stats.QueueCapacity))
	}

	if b.engine != nil {
		lines = append(lines, fmt.Sprintf("🔗 实例: %d 个", len(b.engine.Pipelines())))
	}

	for _, hc := range b.health {
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := hc.Check(checkCtx)
		cancel()
		if err != nil {
			lines = append(lines, fmt.Sprintf("%s: ⚠️ %v", hc.Name, err))
		} else {
			lines = append(lines, fmt.Sprintf("%s: ✅ 正常", hc.Name))
		}
	}

	if b.probeURL != "" {
		networkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()

		latency, statusCode, err := probeNetwork(networkCtx, b.probeURL)
		if err != nil {
			lines = append(lines, fmt.Sprintf("🌐 网络: ⚠️ 测速失败 (%v)", err))
		} else {
			lines = append(lines, fmt.Sprintf("🌐 网络延迟: %s（HTTP %d）", latency.Round(time.Millisecond), statusCode))
		}
	}

	return strings.Join(lines, "\n")
}

// probeNetwork 测试与指定地址的网络连通性，返回耗时与状态码
func probeNetwork(ctx context.Context, target string) (time.Duration, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, 0, err
	}

	client := &http.Client{Timeout: 3 * time.Second}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return time.Since(start), resp.StatusCode, nil
}

// formatDuration 将持续时间格式化为人类可读的字符串
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	d = d.Round(time.Second)

	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second

	parts := make([]string, 0, 4)
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%d天", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%d小时", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%d分钟", minutes))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%d秒", seconds))
	}

	return strings.Join(parts, " ")
}
