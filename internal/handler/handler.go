package handler

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"sync"

	"taskloom.rt.gateway/internal/auth"
	"taskloom.rt.gateway/internal/metrics"
	"taskloom.rt.gateway/internal/protocol"
	"taskloom.rt.gateway/internal/registry"
	"taskloom.rt.gateway/internal/relay"
	"taskloom.rt.gateway/internal/workerpool"
)

const (
	// 单帧消息体上限，超限视为协议违规，断开连接
	maxFrameSize = 64 * 1024

	// Buffer Pool 默认容量（4KB，适合大多数事件）
	defaultBufferCap = 4096
)

// Conn 处理器视角的连接
type Conn interface {
	registry.Conn
	UserID() string
	TenantID() string
	UpdateActive()
	BindIdentity(identity *auth.Identity)
	Identity() *auth.Identity
}

// TokenVerifier 握手凭证校验
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Identity, error)
}

// Presence 在线状态协调
type Presence interface {
	Connect(ctx context.Context, tenantID, userID string) error
	Heartbeat(ctx context.Context, tenantID, userID string) error
}

// Handler 事件帧处理器
// 读循环按接收顺序取帧，处理提交到协程池；同一连接的处理器之间
// 可能与早先事件的在途异步工作交错，下游操作因此都要求幂等
type Handler struct {
	registry   *registry.Registry
	relay      *relay.Relay
	presence   Presence
	verifier   TokenVerifier
	pool       *workerpool.Pool
	logger     *slog.Logger
	bufferPool *sync.Pool
}

func NewHandler(reg *registry.Registry, rl *relay.Relay, presence Presence, verifier TokenVerifier, pool *workerpool.Pool, logger *slog.Logger) *Handler {
	return &Handler{
		registry: reg,
		relay:    rl,
		presence: presence,
		verifier: verifier,
		pool:     pool,
		logger:   logger,
		bufferPool: &sync.Pool{
			New: func() interface{} {
				return make([]byte, 0, defaultBufferCap)
			},
		},
	}
}

// HandleStream 处理客户端事件流（连接已认证）
func (h *Handler) HandleStream(ctx context.Context, conn Conn, r io.Reader) {
	for {
		frameType, body, err := readFrame(r)
		if err != nil {
			if err != io.EOF {
				h.logger.Debug("Stream read ended", "conn_id", conn.ID(), "error", err)
			}
			return
		}

		conn.UpdateActive()

		switch frameType {
		case protocol.FrameTypeAuth:
			h.logger.Warn("Unexpected auth request after authentication", "conn_id", conn.ID())
		case protocol.FrameTypeEvent:
			h.submitEvent(ctx, conn, body)
		default:
			h.logger.Warn("Unknown frame type", "conn_id", conn.ID(), "frame_type", frameType)
		}
	}
}

// submitEvent 复制消息体并提交到协程池，避免阻塞读循环
func (h *Handler) submitEvent(ctx context.Context, conn Conn, body []byte) {
	buf := h.bufferPool.Get().([]byte)
	if cap(buf) < len(body) {
		buf = make([]byte, len(body))
	} else {
		buf = buf[:len(body)]
	}
	copy(buf, body)

	submitted := h.pool.TrySubmit(func() {
		defer h.bufferPool.Put(buf[:0])
		h.dispatch(ctx, conn, buf)
	})

	if !submitted {
		h.logger.Warn("Worker pool saturated, event dropped", "conn_id", conn.ID())
		metrics.EventsDropped.Inc()
		h.bufferPool.Put(buf[:0])
	}
}

// dispatch 按事件名分发
// 未知事件和畸形载荷一律丢弃：不可信客户端的输入不构成协议错误
func (h *Handler) dispatch(ctx context.Context, conn Conn, body []byte) {
	env, ok := protocol.DecodeEnvelope(body)
	if !ok {
		h.logger.Debug("Dropped malformed envelope", "conn_id", conn.ID())
		metrics.EventsDropped.Inc()
		return
	}

	metrics.EventsReceived.WithLabelValues(env.Event).Inc()

	switch env.Event {
	case protocol.EventChatJoin:
		h.relay.HandleJoin(conn, env.Data)
	case protocol.EventChatLeave:
		h.relay.HandleLeave(conn, env.Data)
	case protocol.EventChatTyping:
		h.relay.HandleTyping(conn, env.Data)
	case protocol.EventChatVerifyRooms:
		h.relay.HandleVerifyRooms(conn, env.Data)
	case protocol.EventChatDelivered:
		h.relay.HandleDelivered(conn, env.Data)
	case protocol.EventPresencePing:
		// fire-and-forget：失败在协调器内部记录，不回传客户端
		if err := h.presence.Heartbeat(ctx, conn.TenantID(), conn.UserID()); err != nil {
			h.logger.Debug("Heartbeat refresh incomplete", "conn_id", conn.ID(), "error", err)
		}
	default:
		h.logger.Debug("Dropped unknown event", "conn_id", conn.ID(), "event", env.Event)
		metrics.EventsDropped.Inc()
	}
}

// readFrame 读取一个完整数据帧
func readFrame(r io.Reader) (byte, []byte, error) {
	header := make([]byte, protocol.FrameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}

	length := binary.BigEndian.Uint32(header[:4])
	frameType := header[4]

	if length > maxFrameSize {
		return 0, nil, io.ErrUnexpectedEOF
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}

	return frameType, body, nil
}
