package models

import (
	"errors"
	"fmt"
)

// Direction 转发方向
type Direction int

const (
	DirectionAToB Direction = iota // A 侧 -> B 侧
	DirectionBToA                  // B 侧 -> A 侧
)

func (d Direction) String() string {
	if d == DirectionBToA {
		return "B->A"
	}
	return "A->B"
}

// ErrInvalidMode 模式串格式错误
var ErrInvalidMode = errors.New("mode must be a 2-bit pattern such as \"10\"")

// Mode 两个独立开关：第一位 A->B，第二位 B->A
type Mode struct {
	AToB bool
	BToA bool
}

// DefaultMode 双向全开
var DefaultMode = Mode{AToB: true, BToA: true}

// ParseMode 解析 "11"/"10"/"01"/"00"
func ParseMode(pattern string) (Mode, error) {
	if len(pattern) != 2 {
		return Mode{}, fmt.Errorf("%w: got %q", ErrInvalidMode, pattern)
	}
	var bits [2]bool
	for i := 0; i < 2; i++ {
		switch pattern[i] {
		case '1':
			bits[i] = true
		case '0':
		default:
			return Mode{}, fmt.Errorf("%w: got %q", ErrInvalidMode, pattern)
		}
	}
	return Mode{AToB: bits[0], BToA: bits[1]}, nil
}

// Enabled 指定方向是否开启
func (m Mode) Enabled(d Direction) bool {
	if d == DirectionBToA {
		return m.BToA
	}
	return m.AToB
}

func (m Mode) String() string {
	b := []byte("00")
	if m.AToB {
		b[0] = '1'
	}
	if m.BToA {
		b[1] = '1'
	}
	return string(b)
}
