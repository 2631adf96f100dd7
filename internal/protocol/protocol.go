package protocol

import (
	"encoding/binary"
	"encoding/json"
)

const (
	// 帧头大小：4 bytes length + 1 byte frame type
	FrameHeaderSize = 5

	// 帧类型
	FrameTypeAuth  byte = 1 // 认证请求（AuthRequest）
	FrameTypeEvent byte = 2 // 客户端事件（Envelope）

	// 响应帧类型
	FrameTypeAuthAck byte = 3 // 认证响应
	FrameTypePush    byte = 4 // 服务端推送（Envelope）
)

// 客户端可见错误码
const (
	CodeSuccess    = 0
	CodeAuthFailed = 4001
	CodeBadRequest = 4002
	CodeInternal   = 5000
)

// AuthRequest 握手认证请求，必须是连接上的第一帧
type AuthRequest struct {
	Token string `json:"token"`
}

// AuthAck 认证响应
type AuthAck struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	UserID  string `json:"userId,omitempty"`
}

// Envelope 命名事件封装，Event/Push 帧的消息体
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// BuildFrame 构建带帧头的数据帧
func BuildFrame(frameType byte, body []byte) []byte {
	frame := make([]byte, FrameHeaderSize+len(body))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(body)))
	frame[4] = frameType
	copy(frame[FrameHeaderSize:], body)
	return frame
}

// BuildPush 构建服务端推送帧
// data 序列化失败属于编程错误，此处与上游一致直接忽略
func BuildPush(event string, data any) []byte {
	raw, _ := json.Marshal(data)
	body, _ := json.Marshal(Envelope{Event: event, Data: raw})
	return BuildFrame(FrameTypePush, body)
}

// DecodeEnvelope 解析事件封装
// 返回 ok=false 表示消息体格式非法，调用方应静默丢弃
func DecodeEnvelope(body []byte) (*Envelope, bool) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, false
	}
	if env.Event == "" {
		return nil, false
	}
	return &env, true
}
