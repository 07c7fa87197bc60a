package forward

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go_bridge/internal/bridge/models"
	"go_bridge/internal/logger"
)

// mediaGroupBuffer 媒体组缓冲区，timer 由缓冲区独占
type mediaGroupBuffer struct {
	messages   []*models.UnifiedMessage
	pair       *models.ForwardPair
	timer      *time.Timer
	generation uint64
}

// MediaGroupBatcher 媒体组收集器
//
// 同一媒体组的消息在最后一条到达 timeout 之后统一交给 onFlush，按原生 ID 升序。
type MediaGroupBatcher struct {
	buffers   map[string]*mediaGroupBuffer
	mutex     sync.Mutex
	timeout   time.Duration
	onFlush   func(messages []*models.UnifiedMessage, pair *models.ForwardPair)
	destroyed bool
}

// NewMediaGroupBatcher 创建媒体组收集器
func NewMediaGroupBatcher(timeout time.Duration, onFlush func([]*models.UnifiedMessage, *models.ForwardPair)) *MediaGroupBatcher {
	return &MediaGroupBatcher{
		buffers: make(map[string]*mediaGroupBuffer),
		timeout: timeout,
		onFlush: onFlush,
	}
}

// Add 添加消息到收集器并重置计时
func (c *MediaGroupBatcher) Add(message *models.UnifiedMessage, pair *models.ForwardPair) {
	key := batchKey(message)

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.destroyed {
		logger.L().Debugf("Media group batcher destroyed, dropping message: key=%s msg=%d", key, message.ID)
		return
	}

	buffer, exists := c.buffers[key]
	if !exists {
		buffer = &mediaGroupBuffer{pair: pair}
		c.buffers[key] = buffer
		logger.L().Debugf("Created new media group buffer: key=%s", key)
	}
	buffer.messages = append(buffer.messages, message)
	logger.L().Debugf("Added message to media group: key=%s, total_messages=%d", key, len(buffer.messages))

	// 重置定时器
	if buffer.timer != nil {
		buffer.timer.Stop()
	}
	buffer.generation++
	generation := buffer.generation
	buffer.timer = time.AfterFunc(c.timeout, func() {
		c.collect(key, generation)
	})
}

// collect 取出缓冲区并投递；过期的计时回调直接忽略
func (c *MediaGroupBatcher) collect(key string, generation uint64) {
	c.mutex.Lock()
	buffer, exists := c.buffers[key]
	if !exists || buffer.generation != generation {
		c.mutex.Unlock()
		return
	}
	delete(c.buffers, key)
	buffer.timer = nil
	c.mutex.Unlock()

	messages := buffer.messages
	if len(messages) == 0 {
		return
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].ID < messages[j].ID
	})

	logger.L().Infof("Media group collection completed: key=%s, message_count=%d", key, len(messages))
	c.onFlush(messages, buffer.pair)
}

// Pending 尚未投递的媒体组数量
func (c *MediaGroupBatcher) Pending() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.buffers)
}

// Destroy 停止全部计时器并丢弃缓冲，之后的 Add 无效
func (c *MediaGroupBatcher) Destroy() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for key, buffer := range c.buffers {
		if buffer.timer != nil {
			buffer.timer.Stop()
			buffer.timer = nil
		}
		delete(c.buffers, key)
	}
	c.destroyed = true
}

func batchKey(message *models.UnifiedMessage) string {
	return fmt.Sprintf("%s:%d:%s", message.Platform, message.Chat.ID, message.Metadata.MediaGroupID)
}
