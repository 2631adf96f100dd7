package fanout

import (
	"encoding/json"
	"log/slog"

	natsx "taskloom.rt.gateway/internal/nats"
	"taskloom.rt.gateway/internal/protocol"
	"taskloom.rt.gateway/internal/registry"
)

// Publisher 节点间事件发布
type Publisher interface {
	Publish(subject string, data []byte) error
}

// RemoteEvent 跨节点房间事件
type RemoteEvent struct {
	NodeID string          `json:"nodeId"`
	Room   string          `json:"room"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Fanout 房间广播器
// 先投递给本节点房间成员，再经 NATS 广播给其余网关节点；
// 发布失败只记录日志——跨节点扇出是尽力而为，绝不影响本地投递
type Fanout struct {
	registry  *registry.Registry
	publisher Publisher
	nodeID    string
	logger    *slog.Logger
}

// New 创建房间广播器
func New(reg *registry.Registry, publisher Publisher, nodeID string, logger *slog.Logger) *Fanout {
	return &Fanout{
		registry:  reg,
		publisher: publisher,
		nodeID:    nodeID,
		logger:    logger.With("component", "fanout"),
	}
}

// Broadcast 向房间广播命名事件，exceptID 排除发送方连接（0 表示不排除）
func (f *Fanout) Broadcast(room, event string, data any, exceptID int64) {
	raw, err := json.Marshal(data)
	if err != nil {
		f.logger.Error("Failed to marshal event data", "event", event, "error", err)
		return
	}

	body, _ := json.Marshal(protocol.Envelope{Event: event, Data: raw})
	f.registry.Broadcast(room, protocol.BuildFrame(protocol.FrameTypePush, body), exceptID)

	if f.publisher == nil {
		return
	}
	remote, _ := json.Marshal(RemoteEvent{
		NodeID: f.nodeID,
		Room:   room,
		Event:  event,
		Data:   raw,
	})
	if err := f.publisher.Publish(natsx.SubjectGatewayFanout, remote); err != nil {
		f.logger.Error("Failed to publish fanout event", "event", event, "error", err)
	}
}

// HandleRemote 处理其它节点广播来的房间事件
// 源节点是自己时跳过（本地已投递过），排除发送方的语义只在源节点生效
func (f *Fanout) HandleRemote(data []byte) {
	var ev RemoteEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		f.logger.Warn("Dropped malformed remote event", "error", err)
		return
	}
	if ev.NodeID == f.nodeID || ev.Room == "" || ev.Event == "" {
		return
	}

	body, _ := json.Marshal(protocol.Envelope{Event: ev.Event, Data: ev.Data})
	f.registry.Broadcast(ev.Room, protocol.BuildFrame(protocol.FrameTypePush, body), 0)
}
