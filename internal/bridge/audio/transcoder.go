package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go_bridge/internal/logger"

	"github.com/google/uuid"
)

// Target 目标语音格式
type Target int

const (
	TargetVoice Target = iota // B 侧语音：ogg/opus
	TargetSilk                // A 侧语音：silk v3
)

func (t Target) String() string {
	if t == TargetSilk {
		return "silk"
	}
	return "ogg"
}

// 同一条语音可能以这些扩展名落盘
var siblingExtensions = []string{".wav", ".mp3", ".amr", ".ogg", ".silk"}

const silkSampleRate = "24000"

// Config 转码器配置
type Config struct {
	FFmpegPath      string
	SilkDecoderPath string
	SilkEncoderPath string
	TempDir         string
	StableInterval  time.Duration
	StableAttempts  int
}

// Result 转码结果；Converted 为 false 时 Path 是原文件，应按普通文件发送
type Result struct {
	Path      string
	Converted bool
}

// Transcoder 语音转码
type Transcoder struct {
	cfg    Config
	target Target
	runner Runner
}

// Option 自定义转码器
type Option func(*Transcoder)

// WithRunner 替换外部程序执行器（测试时使用）
func WithRunner(r Runner) Option {
	return func(t *Transcoder) {
		if r != nil {
			t.runner = r
		}
	}
}

// NewTranscoder 创建转码器
func NewTranscoder(cfg Config, target Target, opts ...Option) *Transcoder {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.StableInterval <= 0 {
		cfg.StableInterval = 200 * time.Millisecond
	}
	if cfg.StableAttempts <= 0 {
		cfg.StableAttempts = 10
	}

	t := &Transcoder{cfg: cfg, target: target, runner: execRunner{}}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Target 目标格式
func (t *Transcoder) Target() Target {
	return t.target
}

// ToDestinationFormat 把语音文件转为目标格式
//
// 顺序：原生签名解码 → 外部转码 → 同名其他扩展名文件重试 → 原样返回。
// 生成的文件位于 TempDir，由调用方负责清理。
func (t *Transcoder) ToDestinationFormat(ctx context.Context, sourcePath string) (Result, error) {
	if err := t.waitStable(ctx, sourcePath); err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		logger.L().Warnf("Audio source not stable: path=%s err=%v", sourcePath, err)
	}

	candidates := append([]string{sourcePath}, siblings(sourcePath)...)
	var lastErr error
	for _, candidate := range candidates {
		out, err := t.convert(ctx, candidate)
		if err == nil {
			if candidate != sourcePath {
				logger.L().Infof("Audio transcoded via sibling file: source=%s sibling=%s", sourcePath, candidate)
			}
			return Result{Path: out, Converted: true}, nil
		}
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		lastErr = err
		logger.L().Debugf("Audio transcode attempt failed: path=%s target=%s err=%v", candidate, t.target, err)
	}

	if _, err := os.Stat(sourcePath); err != nil {
		return Result{}, fmt.Errorf("audio source unavailable: %w", err)
	}

	logger.L().Warnf("Audio transcode failed, sending as file: path=%s target=%s err=%v", sourcePath, t.target, lastErr)
	return Result{Path: sourcePath, Converted: false}, nil
}

func (t *Transcoder) convert(ctx context.Context, path string) (string, error) {
	header, err := readHeader(path)
	if err != nil {
		return "", err
	}

	if t.target == TargetSilk {
		if IsSilk(header) {
			return path, nil
		}
		return t.encodeSilk(ctx, path)
	}

	var errs []error
	if IsSilk(header) {
		out, err := t.decodeSilk(ctx, path)
		if err == nil {
			return out, nil
		}
		errs = append(errs, err)
	}

	out, err := t.ffmpegToVoice(ctx, path)
	if err == nil {
		return out, nil
	}
	errs = append(errs, err)
	return "", errors.Join(errs...)
}

// decodeSilk silk → pcm → ogg/opus
func (t *Transcoder) decodeSilk(ctx context.Context, path string) (string, error) {
	if t.cfg.SilkDecoderPath == "" {
		return "", errors.New("silk decoder not configured")
	}

	pcm := t.tempPath(".pcm")
	defer os.Remove(pcm)

	if err := t.runner.Run(ctx, t.cfg.SilkDecoderPath, path, pcm); err != nil {
		return "", err
	}
	if err := checkOutput(pcm); err != nil {
		return "", err
	}

	out := t.tempPath(".ogg")
	if err := t.runner.Run(ctx, t.cfg.FFmpegPath,
		"-y", "-f", "s16le", "-ar", silkSampleRate, "-ac", "1", "-i", pcm,
		"-c:a", "libopus", "-b:a", "32k", out); err != nil {
		os.Remove(out)
		return "", err
	}
	return out, checkOutput(out)
}

func (t *Transcoder) ffmpegToVoice(ctx context.Context, path string) (string, error) {
	out := t.tempPath(".ogg")
	if err := t.runner.Run(ctx, t.cfg.FFmpegPath,
		"-y", "-i", path, "-vn", "-c:a", "libopus", "-b:a", "32k", "-ac", "1", out); err != nil {
		os.Remove(out)
		return "", err
	}
	return out, checkOutput(out)
}

// encodeSilk 任意格式 → pcm → silk
func (t *Transcoder) encodeSilk(ctx context.Context, path string) (string, error) {
	if t.cfg.SilkEncoderPath == "" {
		return "", errors.New("silk encoder not configured")
	}

	pcm := t.tempPath(".pcm")
	defer os.Remove(pcm)

	if err := t.runner.Run(ctx, t.cfg.FFmpegPath,
		"-y", "-i", path, "-vn", "-f", "s16le", "-ar", silkSampleRate, "-ac", "1", pcm); err != nil {
		return "", err
	}
	if err := checkOutput(pcm); err != nil {
		return "", err
	}

	out := t.tempPath(".silk")
	if err := t.runner.Run(ctx, t.cfg.SilkEncoderPath, pcm, out, "-tencent"); err != nil {
		os.Remove(out)
		return "", err
	}
	return out, checkOutput(out)
}

// waitStable 等待文件大小连续两次相同且非零（对端可能仍在写入）
func (t *Transcoder) waitStable(ctx context.Context, path string) error {
	last := int64(-1)
	for i := 0; i < t.cfg.StableAttempts; i++ {
		info, err := os.Stat(path)
		if err == nil {
			size := info.Size()
			if size > 0 && size == last {
				return nil
			}
			last = size
		}

		timer := time.NewTimer(t.cfg.StableInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("size not stable after %d checks (last=%d)", t.cfg.StableAttempts, last)
}

func (t *Transcoder) tempPath(ext string) string {
	return filepath.Join(t.cfg.TempDir, "voice-"+uuid.NewString()+ext)
}

func siblings(path string) []string {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)

	var found []string
	for _, candidate := range siblingExtensions {
		if strings.EqualFold(candidate, ext) {
			continue
		}
		p := stem + candidate
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() && info.Size() > 0 {
			found = append(found, p)
		}
	}
	return found
}

func checkOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("missing output %s: %w", filepath.Base(path), err)
	}
	if info.Size() == 0 {
		os.Remove(path)
		return fmt.Errorf("empty output %s", filepath.Base(path))
	}
	return nil
}
