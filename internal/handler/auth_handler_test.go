package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"taskloom.rt.gateway/internal/auth"
	"taskloom.rt.gateway/internal/protocol"
	"taskloom.rt.gateway/internal/registry"
)

// TestHandleFirstStreamSuccess 测试握手认证成功
func TestHandleFirstStreamSuccess(t *testing.T) {
	f := newFixture(t)
	c := &fakeConn{id: 1}
	f.registry.Add(c)

	r := bytes.NewReader(buildAuthFrame(t, "valid-token"))
	if err := f.handler.HandleFirstStream(context.Background(), c, r); err != nil {
		t.Fatalf("合法握手不应失败: %v", err)
	}

	// 身份绑定
	identity := c.Identity()
	if identity == nil || identity.UserID != "u1" {
		t.Fatalf("身份未绑定: %+v", identity)
	}

	// 个人房间和租户房间
	if !f.registry.InRoom(c, registry.UserRoom("u1")) {
		t.Error("认证后应加入个人房间")
	}
	if !f.registry.InRoom(c, registry.TenantRoom("t1")) {
		t.Error("有租户的用户应加入租户房间")
	}

	// 在线登记
	if f.presence.connectCount() != 1 {
		t.Errorf("认证后应登记在线，实际调用: %d", f.presence.connectCount())
	}

	// AuthAck 回复
	frames := c.sentFrames()
	if len(frames) != 1 {
		t.Fatalf("应回复一帧 AuthAck，实际: %d", len(frames))
	}
	if frames[0][4] != protocol.FrameTypeAuthAck {
		t.Fatalf("回复帧类型应为 AuthAck，实际: %d", frames[0][4])
	}
	var ack protocol.AuthAck
	if err := json.Unmarshal(frames[0][protocol.FrameHeaderSize:], &ack); err != nil {
		t.Fatalf("AuthAck 解析失败: %v", err)
	}
	if ack.Code != protocol.CodeSuccess || ack.UserID != "u1" {
		t.Errorf("AuthAck 内容不匹配: %+v", ack)
	}
}

// TestHandleFirstStreamWithoutTenant 测试无租户用户只加入个人房间
func TestHandleFirstStreamWithoutTenant(t *testing.T) {
	f := newFixture(t)
	f.verifier.identity = &auth.Identity{UserID: "u1", Role: auth.RoleAdmin}
	c := &fakeConn{id: 1}
	f.registry.Add(c)

	r := bytes.NewReader(buildAuthFrame(t, "valid-token"))
	if err := f.handler.HandleFirstStream(context.Background(), c, r); err != nil {
		t.Fatalf("无租户握手不应失败: %v", err)
	}

	if !f.registry.InRoom(c, registry.UserRoom("u1")) {
		t.Error("认证后应加入个人房间")
	}
	if len(f.registry.Rooms(c)) != 1 {
		t.Errorf("无租户用户应只在个人房间，实际房间数: %d", len(f.registry.Rooms(c)))
	}
}

// TestHandleFirstStreamRejectsBadToken 测试凭证校验失败拒绝连接
func TestHandleFirstStreamRejectsBadToken(t *testing.T) {
	f := newFixture(t)
	f.verifier.err = auth.ErrUnauthorized
	c := &fakeConn{id: 1}
	f.registry.Add(c)

	r := bytes.NewReader(buildAuthFrame(t, "bad-token"))
	if err := f.handler.HandleFirstStream(context.Background(), c, r); err == nil {
		t.Fatal("非法凭证握手应失败")
	}

	// 连接不建立：没有身份、没有房间、没有在线登记、没有回复
	if c.Identity() != nil {
		t.Error("握手失败不应绑定身份")
	}
	if len(f.registry.Rooms(c)) != 0 {
		t.Error("握手失败不应加入任何房间")
	}
	if f.presence.connectCount() != 0 {
		t.Error("握手失败不应登记在线")
	}
	if len(c.sentFrames()) != 0 {
		t.Error("握手失败不应回复 AuthAck")
	}
}

// TestHandleFirstStreamRejectsNonAuthFrame 测试首帧非认证请求被拒绝
func TestHandleFirstStreamRejectsNonAuthFrame(t *testing.T) {
	f := newFixture(t)
	c := &fakeConn{id: 1}
	f.registry.Add(c)

	r := bytes.NewReader(buildEventFrame(t, protocol.EventChatJoin, protocol.ConversationsPayload{
		ConversationIDs: []string{"c1"},
	}))
	if err := f.handler.HandleFirstStream(context.Background(), c, r); err == nil {
		t.Fatal("首帧非认证请求应拒绝")
	}

	if len(f.registry.Rooms(c)) != 0 {
		t.Error("未认证的事件帧不应产生任何房间成员关系")
	}
	if len(f.verifier.tokens) != 0 {
		t.Error("非认证帧不应触发凭证校验")
	}
}

// TestHandleFirstStreamMalformedAuthBody 测试畸形认证消息体按空凭证拒绝
func TestHandleFirstStreamMalformedAuthBody(t *testing.T) {
	f := newFixture(t)
	f.verifier.err = auth.ErrUnauthorized
	c := &fakeConn{id: 1}
	f.registry.Add(c)

	r := bytes.NewReader(protocol.BuildFrame(protocol.FrameTypeAuth, []byte(`not json`)))
	if err := f.handler.HandleFirstStream(context.Background(), c, r); err == nil {
		t.Fatal("畸形认证消息体应拒绝")
	}

	// 仍走统一校验路径（空凭证）
	if len(f.verifier.tokens) != 1 || f.verifier.tokens[0] != "" {
		t.Errorf("畸形消息体应按空凭证校验，实际: %v", f.verifier.tokens)
	}
}

// TestHandleFirstStreamEmptyStream 测试空流握手失败
func TestHandleFirstStreamEmptyStream(t *testing.T) {
	f := newFixture(t)
	c := &fakeConn{id: 1}
	f.registry.Add(c)

	if err := f.handler.HandleFirstStream(context.Background(), c, bytes.NewReader(nil)); err == nil {
		t.Fatal("空流握手应失败")
	}
}
