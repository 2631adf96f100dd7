package connection

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quic-go/webtransport-go"

	"taskloom.rt.gateway/internal/auth"
)

var ErrConnectionClosed = errors.New("connection closed")

var connIDCounter int64

// Connection 表示一个客户端连接
// 身份信息在握手认证通过后绑定，连接关闭时由 Server 统一清理
type Connection struct {
	id         int64
	session    *webtransport.Session
	logger     *slog.Logger
	writeChan  chan []byte
	closeChan  chan struct{}
	closeOnce  sync.Once
	createTime time.Time

	identity   atomic.Pointer[auth.Identity]
	lastActive atomic.Int64 // UnixNano
}

func NewFromWebTransport(session *webtransport.Session, logger *slog.Logger) *Connection {
	id := atomic.AddInt64(&connIDCounter, 1)
	c := &Connection{
		id:         id,
		session:    session,
		logger:     logger,
		writeChan:  make(chan []byte, 256),
		closeChan:  make(chan struct{}),
		createTime: time.Now(),
	}
	c.lastActive.Store(time.Now().UnixNano())
	go c.writeLoop()
	return c
}

func (c *Connection) ID() int64 {
	return c.id
}

// BindIdentity 绑定认证身份，认证通过后调用一次
func (c *Connection) BindIdentity(identity *auth.Identity) {
	c.identity.Store(identity)
}

// Identity 返回绑定的身份，未认证返回 nil
func (c *Connection) Identity() *auth.Identity {
	return c.identity.Load()
}

// UserID 返回绑定的用户 ID，未认证返回空串
func (c *Connection) UserID() string {
	if id := c.identity.Load(); id != nil {
		return id.UserID
	}
	return ""
}

// TenantID 返回绑定的租户 ID，未认证或无租户返回空串
func (c *Connection) TenantID() string {
	if id := c.identity.Load(); id != nil {
		return id.TenantID
	}
	return ""
}

func (c *Connection) Send(data []byte) error {
	select {
	case c.writeChan <- data:
		return nil
	case <-c.closeChan:
		return ErrConnectionClosed
	}
}

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeChan:
			stream, err := c.session.OpenStream()
			if err != nil {
				c.logger.Error("Failed to open stream", "conn_id", c.id, "error", err)
				continue
			}
			if _, err := stream.Write(data); err != nil {
				c.logger.Error("Failed to write to stream", "conn_id", c.id, "error", err)
			}
			stream.Close()
		case <-c.closeChan:
			return
		}
	}
}

func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closeChan)
		c.session.CloseWithError(0, "connection closed")
	})
}

// UpdateActive 刷新最近活跃时间，收到任何客户端帧时调用
func (c *Connection) UpdateActive() {
	c.lastActive.Store(time.Now().UnixNano())
}

func (c *Connection) LastActiveTime() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

func (c *Connection) CreateTime() time.Time {
	return c.createTime
}
