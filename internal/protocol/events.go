package protocol

import "encoding/json"

// 客户端上行事件
const (
	EventChatJoin        = "chat:join"
	EventChatLeave       = "chat:leave"
	EventChatTyping      = "chat:typing"
	EventChatVerifyRooms = "chat:verify-rooms"
	EventChatDelivered   = "chat:delivered"
	EventPresencePing    = "presence:ping"
)

// 服务端下行事件
const (
	EventPresenceUpdate = "presence:update"
	EventChatRoomStatus = "chat:room-status"
)

// ConversationsPayload chat:join / chat:leave / chat:verify-rooms 载荷
type ConversationsPayload struct {
	ConversationIDs []string `json:"conversationIds"`
}

// TypingPayload chat:typing 载荷
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
}

// DeliveredPayload chat:delivered 载荷
type DeliveredPayload struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
}

// PresenceUpdate presence:update 推送
type PresenceUpdate struct {
	UserID       string `json:"userId"`
	Online       bool   `json:"online"`
	LastActiveAt int64  `json:"lastActiveAt,omitempty"`
}

// TypingNotice chat:typing 推送
type TypingNotice struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

// RoomStatus chat:room-status 直接回复
type RoomStatus struct {
	ConversationID string `json:"conversationId"`
	Joined         bool   `json:"joined"`
}

// DeliveredNotice chat:delivered 推送
type DeliveredNotice struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId,omitempty"`
	UserID         string `json:"userId,omitempty"`
}

// DecodeConversations 解析会话 ID 列表载荷
// 字段缺失或类型不符返回 ok=false，调用方静默丢弃
func DecodeConversations(data json.RawMessage) (*ConversationsPayload, bool) {
	var p ConversationsPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, false
	}
	return &p, true
}

// DecodeTyping 解析 typing 载荷
func DecodeTyping(data json.RawMessage) (*TypingPayload, bool) {
	var p TypingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, false
	}
	if p.ConversationID == "" {
		return nil, false
	}
	return &p, true
}

// DecodeDelivered 解析 delivered 载荷
func DecodeDelivered(data json.RawMessage) (*DeliveredPayload, bool) {
	var p DeliveredPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, false
	}
	if p.MessageID == "" || p.ConversationID == "" || p.SenderID == "" {
		return nil, false
	}
	return &p, true
}
