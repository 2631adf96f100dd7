package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"taskloom.rt.gateway/internal/metrics"
	"taskloom.rt.gateway/internal/protocol"
	"taskloom.rt.gateway/internal/registry"
)

// HandleFirstStream 处理连接上的首帧，必须是认证请求
// 返回 error 表示握手失败，调用方应拒绝连接（连接不建立，没有任何房间加入）
// 认证成功后：绑定身份、加入个人房间和租户房间、登记在线，并回复 AuthAck
func (h *Handler) HandleFirstStream(ctx context.Context, conn Conn, r io.Reader) error {
	frameType, body, err := readFrame(r)
	if err != nil {
		return fmt.Errorf("failed to read first frame: %w", err)
	}

	if frameType != protocol.FrameTypeAuth {
		h.logger.Warn("First frame must be auth request", "conn_id", conn.ID(), "frame_type", frameType)
		metrics.AuthFailures.Inc()
		return fmt.Errorf("first frame is not auth request")
	}

	conn.UpdateActive()

	// 解析失败时 token 为空串，统一走校验拒绝路径
	var authReq protocol.AuthRequest
	if err := json.Unmarshal(body, &authReq); err != nil {
		h.logger.Warn("Malformed auth request", "conn_id", conn.ID())
	}

	identity, err := h.verifier.Verify(ctx, authReq.Token)
	if err != nil {
		metrics.AuthFailures.Inc()
		return fmt.Errorf("handshake rejected: %w", err)
	}

	conn.BindIdentity(identity)

	// 每个会话恰好一个个人房间；有租户则恰好一个租户房间
	h.registry.Join(conn, registry.UserRoom(identity.UserID))
	if identity.TenantID != "" {
		h.registry.Join(conn, registry.TenantRoom(identity.TenantID))
	}

	if err := h.presence.Connect(ctx, identity.TenantID, identity.UserID); err != nil {
		// 在线集合写入失败不拒绝连接，心跳会补救
		h.logger.Warn("Presence connect incomplete", "conn_id", conn.ID(), "error", err)
	}

	metrics.AuthSuccess.Inc()

	ack, _ := json.Marshal(protocol.AuthAck{
		Code:    protocol.CodeSuccess,
		Message: "success",
		UserID:  identity.UserID,
	})
	if err := conn.Send(protocol.BuildFrame(protocol.FrameTypeAuthAck, ack)); err != nil {
		return fmt.Errorf("failed to send auth ack: %w", err)
	}

	h.logger.Info("User authenticated",
		"conn_id", conn.ID(),
		"user_id", identity.UserID,
		"tenant_id", identity.TenantID,
		"role", identity.Role)

	return nil
}
