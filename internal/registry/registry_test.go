package registry

import (
	"sync"
	"testing"
	"time"
)

// fakeConn 测试用连接存根
type fakeConn struct {
	id int64

	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func (c *fakeConn) ID() int64 { return c.id }

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeConn) LastActiveTime() time.Time { return time.Now() }

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

// TestAddRemove 测试连接登记与注销
func TestAddRemove(t *testing.T) {
	r := New()
	c := &fakeConn{id: 1}

	r.Add(c)
	if r.Count() != 1 {
		t.Fatalf("连接数不匹配，期望: 1, 实际: %d", r.Count())
	}
	if r.Get(1) == nil {
		t.Fatal("登记后应能查到连接")
	}

	r.Remove(1)
	if r.Count() != 0 {
		t.Errorf("注销后连接数应为 0，实际: %d", r.Count())
	}
	if r.Get(1) != nil {
		t.Error("注销后不应查到连接")
	}
}

// TestJoinLeaveRoundTrip 测试加入再退出后状态与从未加入一致
func TestJoinLeaveRoundTrip(t *testing.T) {
	r := New()
	c := &fakeConn{id: 1}
	r.Add(c)

	room := ConversationRoom("c1")

	r.Join(c, room)
	if !r.InRoom(c, room) {
		t.Fatal("加入后应在房间内")
	}

	r.Leave(c, room)
	if r.InRoom(c, room) {
		t.Error("退出后不应在房间内")
	}
	if len(r.Members(room)) != 0 {
		t.Error("退出后房间成员应为空")
	}
	if len(r.Rooms(c)) != 0 {
		t.Error("退出后连接的房间列表应为空")
	}
}

// TestJoinIdempotent 测试重复加入是 no-op
func TestJoinIdempotent(t *testing.T) {
	r := New()
	c := &fakeConn{id: 1}
	r.Add(c)

	room := ConversationRoom("c1")
	r.Join(c, room)
	r.Join(c, room)

	if len(r.Members(room)) != 1 {
		t.Errorf("重复加入后成员数应为 1，实际: %d", len(r.Members(room)))
	}
}

// TestLeaveNotJoined 测试退出未加入的房间是 no-op
func TestLeaveNotJoined(t *testing.T) {
	r := New()
	c := &fakeConn{id: 1}
	r.Add(c)

	// 不应 panic，也不应产生任何状态
	r.Leave(c, ConversationRoom("never-joined"))
	if len(r.Rooms(c)) != 0 {
		t.Error("退出未加入的房间不应产生成员关系")
	}
}

// TestJoinEmptyRoom 测试空房间名被静默忽略
func TestJoinEmptyRoom(t *testing.T) {
	r := New()
	c := &fakeConn{id: 1}
	r.Add(c)

	r.Join(c, "")
	if len(r.Rooms(c)) != 0 {
		t.Error("空房间名不应产生成员关系")
	}
}

// TestJoinUnregisteredConn 测试未登记的连接无法加入房间
func TestJoinUnregisteredConn(t *testing.T) {
	r := New()
	c := &fakeConn{id: 1}

	r.Join(c, ConversationRoom("c1"))
	if r.InRoom(c, ConversationRoom("c1")) {
		t.Error("未登记的连接不应加入房间")
	}
}

// TestRemoveClearsMemberships 测试注销清除全部房间成员关系
func TestRemoveClearsMemberships(t *testing.T) {
	r := New()
	c := &fakeConn{id: 1}
	r.Add(c)

	r.Join(c, UserRoom("u1"))
	r.Join(c, TenantRoom("t1"))
	r.Join(c, ConversationRoom("c1"))

	r.Remove(1)

	for _, room := range []string{UserRoom("u1"), TenantRoom("t1"), ConversationRoom("c1")} {
		if len(r.Members(room)) != 0 {
			t.Errorf("注销后房间 %s 成员应为空", room)
		}
	}
}

// TestBroadcastExcludesSender 测试广播排除发送方
func TestBroadcastExcludesSender(t *testing.T) {
	r := New()
	sender := &fakeConn{id: 1}
	other := &fakeConn{id: 2}
	r.Add(sender)
	r.Add(other)

	room := ConversationRoom("c1")
	r.Join(sender, room)
	r.Join(other, room)

	sent := r.Broadcast(room, []byte("frame"), sender.ID())
	if sent != 1 {
		t.Errorf("投递数不匹配，期望: 1, 实际: %d", sent)
	}
	if sender.sentCount() != 0 {
		t.Error("发送方不应收到自己的广播")
	}
	if other.sentCount() != 1 {
		t.Errorf("其他成员应收到广播，实际收到: %d", other.sentCount())
	}
}

// TestBroadcastEmptyRoom 测试向空房间广播
func TestBroadcastEmptyRoom(t *testing.T) {
	r := New()
	if sent := r.Broadcast(ConversationRoom("empty"), []byte("frame"), 0); sent != 0 {
		t.Errorf("空房间广播投递数应为 0，实际: %d", sent)
	}
}

// TestRoomNames 测试房间命名约定
func TestRoomNames(t *testing.T) {
	if UserRoom("u1") != "user:u1" {
		t.Errorf("用户房间名不匹配: %s", UserRoom("u1"))
	}
	if TenantRoom("t1") != "tenant:t1" {
		t.Errorf("租户房间名不匹配: %s", TenantRoom("t1"))
	}
	if ConversationRoom("c1") != "conversation:c1" {
		t.Errorf("会话房间名不匹配: %s", ConversationRoom("c1"))
	}
}
