package onebot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go_bridge/internal/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	defaultReconnectInterval = 3 * time.Second
	maxReconnectInterval     = time.Minute
	defaultActionTimeout     = 30 * time.Second
	writeTimeout             = 10 * time.Second
	eventQueueSize           = 256
)

var (
	// ErrNotConnected 连接尚未建立或已断开
	ErrNotConnected = errors.New("onebot not connected")
	errDisconnected = errors.New("onebot connection closed while waiting for response")
)

// Config 正向 WebSocket 连接配置
type Config struct {
	URL               string
	AccessToken       string
	ReconnectInterval time.Duration
	ActionTimeout     time.Duration
}

// EventHandler 事件处理函数，在单独的分发协程中按到达顺序调用
type EventHandler func(ctx context.Context, ev *Event)

// Client OneBot v11 正向 WebSocket 客户端：同一连接上收事件、发动作
type Client struct {
	cfg     Config
	dialer  *websocket.Dialer
	handler EventHandler

	connMu sync.Mutex
	conn   *websocket.Conn

	pendingMu sync.Mutex
	pending   map[string]chan *actionResponse

	events chan *Event
	selfID atomic.Int64
}

// NewClient 创建客户端
func NewClient(cfg Config, handler EventHandler) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("onebot url cannot be empty")
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = defaultActionTimeout
	}
	return &Client{
		cfg:     cfg,
		dialer:  websocket.DefaultDialer,
		handler: handler,
		pending: make(map[string]chan *actionResponse),
		events:  make(chan *Event, eventQueueSize),
	}, nil
}

// SelfID 当前登录账号（收到第一个事件后可用）
func (c *Client) SelfID() int64 {
	return c.selfID.Load()
}

// Connected 是否已建立连接
func (c *Client) Connected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn != nil
}

// Run 保持连接直到 ctx 取消，断线后按指数退避重连（阻塞式）
func (c *Client) Run(ctx context.Context) error {
	go c.dispatchEvents(ctx)

	delay := c.cfg.ReconnectInterval
	for {
		connected, err := c.connectAndServe(ctx)
		if ctx.Err() != nil {
			logger.L().Infof("OneBot client stopped: url=%s", c.cfg.URL)
			return nil
		}
		if connected {
			delay = c.cfg.ReconnectInterval
		}

		logger.L().Warnf("OneBot connection lost: url=%s err=%v, reconnecting in %v", c.cfg.URL, err, delay)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		delay = min(delay*2, maxReconnectInterval)
	}
}

// connectAndServe 建立连接并读取直到出错，返回是否曾连接成功
func (c *Client) connectAndServe(ctx context.Context) (bool, error) {
	header := http.Header{}
	if c.cfg.AccessToken != "" {
		header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return false, fmt.Errorf("failed to dial: %w", err)
	}

	c.setConn(conn)
	logger.L().Infof("OneBot connected: url=%s", c.cfg.URL)

	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer func() {
		stop()
		c.setConn(nil)
		conn.Close()
		c.failPending()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		c.handleFrame(ctx, data)
	}
}

func (c *Client) handleFrame(ctx context.Context, data []byte) {
	var envelope struct {
		PostType string          `json:"post_type"`
		Echo     json.RawMessage `json:"echo"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		logger.L().Warnf("OneBot frame decode failed: %v", err)
		return
	}

	if envelope.PostType != "" {
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			logger.L().Warnf("OneBot event decode failed: %v", err)
			return
		}
		if ev.SelfID != 0 {
			c.selfID.Store(ev.SelfID)
		}
		if ev.PostType == PostTypeMetaEvent {
			return
		}
		select {
		case c.events <- &ev:
		case <-ctx.Done():
		}
		return
	}

	if len(envelope.Echo) == 0 {
		return
	}
	var resp actionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		logger.L().Warnf("OneBot response decode failed: %v", err)
		return
	}

	c.pendingMu.Lock()
	ch, ok := c.pending[resp.Echo]
	delete(c.pending, resp.Echo)
	c.pendingMu.Unlock()
	if ok {
		ch <- &resp
	}
}

func (c *Client) dispatchEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.events:
			if c.handler != nil {
				c.handler(ctx, ev)
			}
		}
	}
}

// Call 调用动作并等待响应
func (c *Client) Call(ctx context.Context, action string, params any) (json.RawMessage, error) {
	echo := uuid.NewString()
	ch := make(chan *actionResponse, 1)

	c.pendingMu.Lock()
	c.pending[echo] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, echo)
		c.pendingMu.Unlock()
	}()

	if err := c.write(actionRequest{Action: action, Params: params, Echo: echo}); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ActionTimeout)
	defer cancel()

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("onebot action %s: %w", action, errDisconnected)
		}
		if resp.RetCode != 0 || (resp.Status != "" && resp.Status != "ok" && resp.Status != "async") {
			msg := resp.Wording
			if msg == "" {
				msg = resp.Message
			}
			return nil, &ActionError{Action: action, RetCode: resp.RetCode, Message: msg}
		}
		return resp.Data, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("onebot action %s: %w", action, ctx.Err())
	}
}

func (c *Client) write(req actionRequest) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := c.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("failed to write action %s: %w", req.Action, err)
	}
	return nil
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
}

// failPending 断线时唤醒所有等待中的调用
func (c *Client) failPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for echo, ch := range c.pending {
		close(ch)
		delete(c.pending, echo)
	}
}
