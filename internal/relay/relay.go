package relay

import (
	"encoding/json"
	"log/slog"

	"taskloom.rt.gateway/internal/protocol"
	"taskloom.rt.gateway/internal/registry"
)

// Conn 中继视角的连接
type Conn interface {
	registry.Conn
	UserID() string
}

// Broadcaster 房间广播
type Broadcaster interface {
	Broadcast(room, event string, data any, exceptID int64)
}

// Relay 会话事件中继
// 只做房间维度的扇出（typing、回执），自身不持久化任何内容；
// 所有载荷在边界上防御性校验，畸形输入一律静默丢弃，绝不中断连接
type Relay struct {
	registry    *registry.Registry
	broadcaster Broadcaster
	logger      *slog.Logger
}

// New 创建事件中继
func New(reg *registry.Registry, broadcaster Broadcaster, logger *slog.Logger) *Relay {
	return &Relay{
		registry:    reg,
		broadcaster: broadcaster,
		logger:      logger.With("component", "relay"),
	}
}

// HandleJoin 加入列表中的会话房间，空 ID 条目丢弃
func (r *Relay) HandleJoin(conn Conn, data json.RawMessage) {
	p, ok := protocol.DecodeConversations(data)
	if !ok {
		r.logger.Debug("Dropped malformed join payload", "conn_id", conn.ID())
		return
	}

	for _, id := range p.ConversationIDs {
		if id == "" {
			continue
		}
		r.registry.Join(conn, registry.ConversationRoom(id))
	}
}

// HandleLeave 退出列表中的会话房间，空 ID 条目丢弃
func (r *Relay) HandleLeave(conn Conn, data json.RawMessage) {
	p, ok := protocol.DecodeConversations(data)
	if !ok {
		r.logger.Debug("Dropped malformed leave payload", "conn_id", conn.ID())
		return
	}

	for _, id := range p.ConversationIDs {
		if id == "" {
			continue
		}
		r.registry.Leave(conn, registry.ConversationRoom(id))
	}
}

// HandleTyping 将输入提示转发给会话房间的其他成员，绝不回显给发送方
func (r *Relay) HandleTyping(conn Conn, data json.RawMessage) {
	p, ok := protocol.DecodeTyping(data)
	if !ok {
		r.logger.Debug("Dropped malformed typing payload", "conn_id", conn.ID())
		return
	}

	r.broadcaster.Broadcast(registry.ConversationRoom(p.ConversationID), protocol.EventChatTyping, protocol.TypingNotice{
		ConversationID: p.ConversationID,
		UserID:         conn.UserID(),
	}, conn.ID())
}

// HandleVerifyRooms 逐个会话 ID 直接回复当前是否在房间内（不广播）
// 客户端用它在重连后探测被静默丢掉的房间成员关系
func (r *Relay) HandleVerifyRooms(conn Conn, data json.RawMessage) {
	p, ok := protocol.DecodeConversations(data)
	if !ok {
		r.logger.Debug("Dropped malformed verify-rooms payload", "conn_id", conn.ID())
		return
	}

	for _, id := range p.ConversationIDs {
		if id == "" {
			continue
		}
		joined := r.registry.InRoom(conn, registry.ConversationRoom(id))
		if err := conn.Send(protocol.BuildPush(protocol.EventChatRoomStatus, protocol.RoomStatus{
			ConversationID: id,
			Joined:         joined,
		})); err != nil {
			return
		}
	}
}

// HandleDelivered 送达回执
// 自己给自己的回执没有意义，未认证调用方同样忽略；
// 有效回执直接通知原发送者的个人房间，并转发进会话房间便于观测。
// 去重和确认跟踪不是中继的职责，归客户端
func (r *Relay) HandleDelivered(conn Conn, data json.RawMessage) {
	p, ok := protocol.DecodeDelivered(data)
	if !ok {
		r.logger.Debug("Dropped malformed delivered payload", "conn_id", conn.ID())
		return
	}

	callerID := conn.UserID()
	if callerID == "" || callerID == p.SenderID {
		return
	}

	r.broadcaster.Broadcast(registry.UserRoom(p.SenderID), protocol.EventChatDelivered, protocol.DeliveredNotice{
		MessageID: p.MessageID,
	}, 0)

	r.broadcaster.Broadcast(registry.ConversationRoom(p.ConversationID), protocol.EventChatDelivered, protocol.DeliveredNotice{
		MessageID:      p.MessageID,
		ConversationID: p.ConversationID,
		UserID:         callerID,
	}, conn.ID())
}
