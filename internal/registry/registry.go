package registry

import (
	"sync"
	"time"
)

// 房间命名：user:{id} 每会话必入且仅一个；tenant:{id} 有租户时加入；
// conversation:{id} 由客户端显式加入/退出
const (
	userRoomPrefix         = "user:"
	tenantRoomPrefix       = "tenant:"
	conversationRoomPrefix = "conversation:"
)

// UserRoom 构建用户个人房间名
func UserRoom(userID string) string {
	return userRoomPrefix + userID
}

// TenantRoom 构建租户房间名
func TenantRoom(tenantID string) string {
	return tenantRoomPrefix + tenantID
}

// ConversationRoom 构建会话房间名
func ConversationRoom(conversationID string) string {
	return conversationRoomPrefix + conversationID
}

// Conn 注册表视角的连接
type Conn interface {
	ID() int64
	Send(data []byte) error
	LastActiveTime() time.Time
	Close()
}

// Registry 连接与房间成员关系注册表
// 进程内共享，所有连接的 join/leave/broadcast 并发调用必须安全，
// 因此全部操作在内部加锁，不依赖调用方的任何串行化
type Registry struct {
	mu     sync.RWMutex
	conns  map[int64]Conn
	rooms  map[string]map[int64]Conn
	byConn map[int64]map[string]struct{}
}

// New 创建注册表
func New() *Registry {
	return &Registry{
		conns:  make(map[int64]Conn),
		rooms:  make(map[string]map[int64]Conn),
		byConn: make(map[int64]map[string]struct{}),
	}
}

// Add 登记一个存活连接
func (r *Registry) Add(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID()] = c
}

// Remove 注销连接并清除其全部房间成员关系
func (r *Registry) Remove(connID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[connID]; !ok {
		return
	}
	delete(r.conns, connID)

	for room := range r.byConn[connID] {
		r.leaveLocked(connID, room)
	}
	delete(r.byConn, connID)
}

// Get 根据连接 ID 查找连接
func (r *Registry) Get(connID int64) Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[connID]
}

// Count 返回存活连接数
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Join 将连接加入房间，重复加入是 no-op
// 空房间名静默忽略：恶意或畸形的客户端输入不构成协议错误
func (r *Registry) Join(c Conn, room string) {
	if room == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[c.ID()]; !ok {
		return
	}

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[int64]Conn)
		r.rooms[room] = members
	}
	members[c.ID()] = c

	joined, ok := r.byConn[c.ID()]
	if !ok {
		joined = make(map[string]struct{})
		r.byConn[c.ID()] = joined
	}
	joined[room] = struct{}{}
}

// Leave 将连接移出房间，未加入时是 no-op
func (r *Registry) Leave(c Conn, room string) {
	if room == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.leaveLocked(c.ID(), room)
	if joined, ok := r.byConn[c.ID()]; ok {
		delete(joined, room)
	}
}

func (r *Registry) leaveLocked(connID int64, room string) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// InRoom 连接当前是否是房间成员
func (r *Registry) InRoom(c Conn, room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.rooms[room]
	if !ok {
		return false
	}
	_, ok = members[c.ID()]
	return ok
}

// Members 返回房间当前成员快照
func (r *Registry) Members(room string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.rooms[room]
	if !ok {
		return nil
	}

	conns := make([]Conn, 0, len(members))
	for _, c := range members {
		conns = append(conns, c)
	}
	return conns
}

// Rooms 返回连接已加入的房间快照
func (r *Registry) Rooms(c Conn) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	joined := r.byConn[c.ID()]
	rooms := make([]string, 0, len(joined))
	for room := range joined {
		rooms = append(rooms, room)
	}
	return rooms
}

// Broadcast 向房间所有成员投递数据帧，exceptID 指定要排除的发送方（0 表示不排除）
// 成员间的投递顺序不保证；返回实际投递的连接数
func (r *Registry) Broadcast(room string, frame []byte, exceptID int64) int {
	members := r.Members(room)

	sent := 0
	for _, c := range members {
		if c.ID() == exceptID {
			continue
		}
		if err := c.Send(frame); err == nil {
			sent++
		}
	}
	return sent
}

// Connections 返回所有存活连接快照（用于心跳超时扫描）
func (r *Registry) Connections() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}
