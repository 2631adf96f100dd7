package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"taskloom.rt.gateway/internal/metrics"
	"taskloom.rt.gateway/internal/model"
	"taskloom.rt.gateway/internal/protocol"
	"taskloom.rt.gateway/internal/registry"
)

// LivenessStore 共享存活存储的在线集合操作
// 集合归外部存储所有，必须使用其原子原语（SADD/SREM），不做读-改-写
type LivenessStore interface {
	AddOnline(ctx context.Context, tenantID, userID string) error
	RemoveOnline(ctx context.Context, tenantID, userID string) error
}

// IdentityDirectory 核心身份库查询
type IdentityDirectory interface {
	FindProfile(ctx context.Context, userID string) (*model.UserProfile, error)
}

// TenantData 单个租户的在线记录写入
type TenantData interface {
	UpsertLastActive(ctx context.Context, rec *model.LastActiveRecord) error
}

// TenantDirectory 按租户取数据访问对象
type TenantDirectory interface {
	Tenant(tenantID string) TenantData
}

// Broadcaster 房间广播
type Broadcaster interface {
	Broadcast(room, event string, data any, exceptID int64)
}

// Coordinator 在线状态协调器
// 维护 (租户, 用户) 维度的存活会话引用计数：同一用户可能同时持有多个会话
// （多端、多标签页），仅当计数归零时才发生 Online→Offline 迁移，
// 避免先断开的会话把仍在线的用户从在线集合中移除
type Coordinator struct {
	liveness    LivenessStore
	directory   IdentityDirectory
	tenants     TenantDirectory
	broadcaster Broadcaster
	logger      *slog.Logger

	mu       sync.Mutex
	sessions map[string]map[string]int // tenantID -> userID -> 存活会话数
}

// NewCoordinator 创建在线状态协调器
func NewCoordinator(liveness LivenessStore, directory IdentityDirectory, tenants TenantDirectory, broadcaster Broadcaster, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		liveness:    liveness,
		directory:   directory,
		tenants:     tenants,
		broadcaster: broadcaster,
		logger:      logger.With("component", "presence"),
		sessions:    make(map[string]map[string]int),
	}
}

// Connect 会话认证通过后登记在线
// 无租户用户没有共享在线视图，直接返回；
// SADD 幂等，每次连接都执行以顺带续期，并向租户房间广播上线事件
func (c *Coordinator) Connect(ctx context.Context, tenantID, userID string) error {
	if tenantID == "" || userID == "" {
		return nil
	}

	c.mu.Lock()
	users, ok := c.sessions[tenantID]
	if !ok {
		users = make(map[string]int)
		c.sessions[tenantID] = users
	}
	users[userID]++
	c.mu.Unlock()

	var err error
	if addErr := c.liveness.AddOnline(ctx, tenantID, userID); addErr != nil {
		c.logger.Error("Failed to add user to online set", "tenant_id", tenantID, "user_id", userID, "error", addErr)
		err = fmt.Errorf("add online: %w", addErr)
	}

	c.broadcaster.Broadcast(registry.TenantRoom(tenantID), protocol.EventPresenceUpdate, protocol.PresenceUpdate{
		UserID: userID,
		Online: true,
	}, 0)
	metrics.PresenceTransitions.WithLabelValues("online").Inc()

	return err
}

// Heartbeat 心跳续期
// 重新加入在线集合（刷新 TTL）并重播上线事件；调用方 fire-and-forget，
// 失败仅记录日志。无租户用户不产生任何存储写入和广播。
func (c *Coordinator) Heartbeat(ctx context.Context, tenantID, userID string) error {
	if tenantID == "" || userID == "" {
		return nil
	}

	var err error
	if addErr := c.liveness.AddOnline(ctx, tenantID, userID); addErr != nil {
		c.logger.Error("Failed to refresh online set", "tenant_id", tenantID, "user_id", userID, "error", addErr)
		err = fmt.Errorf("refresh online: %w", addErr)
	}

	c.broadcaster.Broadcast(registry.TenantRoom(tenantID), protocol.EventPresenceUpdate, protocol.PresenceUpdate{
		UserID: userID,
		Online: true,
	}, 0)

	return err
}

// Disconnect 会话终止对账，任何终止路径（正常关闭、网络掉线、协议错误）都必须执行
// 持久记录按会话回写；在线集合移除与下线广播仅在该用户最后一个会话终止时发生。
// 身份查询或持久写入失败只记录日志，绝不阻止在线集合移除和下线广播——
// 不能因为一次持久化失败让用户在共享视图里永远"在线"
func (c *Coordinator) Disconnect(ctx context.Context, tenantID, userID string) error {
	if tenantID == "" || userID == "" {
		return nil
	}

	c.mu.Lock()
	last := false
	if users, ok := c.sessions[tenantID]; ok {
		if users[userID] > 0 {
			users[userID]--
		}
		if users[userID] <= 0 {
			delete(users, userID)
			last = true
		}
		if len(users) == 0 {
			delete(c.sessions, tenantID)
		}
	} else {
		last = true
	}
	c.mu.Unlock()

	now := time.Now()
	var errs []error

	if last {
		if remErr := c.liveness.RemoveOnline(ctx, tenantID, userID); remErr != nil {
			c.logger.Error("Failed to remove user from online set", "tenant_id", tenantID, "user_id", userID, "error", remErr)
			errs = append(errs, fmt.Errorf("remove online: %w", remErr))
		}
	}

	if upErr := c.writeLastActive(ctx, tenantID, userID, now); upErr != nil {
		c.logger.Error("Failed to reconcile last-active record", "tenant_id", tenantID, "user_id", userID, "error", upErr)
		errs = append(errs, upErr)
	}

	if last {
		c.broadcaster.Broadcast(registry.TenantRoom(tenantID), protocol.EventPresenceUpdate, protocol.PresenceUpdate{
			UserID:       userID,
			Online:       false,
			LastActiveAt: now.UnixMilli(),
		}, 0)
		metrics.PresenceTransitions.WithLabelValues("offline").Inc()
	}

	if len(errs) > 0 {
		metrics.ReconcileFailures.Inc()
	}
	return errors.Join(errs...)
}

// writeLastActive 查身份字段并 upsert 最后活跃记录
func (c *Coordinator) writeLastActive(ctx context.Context, tenantID, userID string, at time.Time) error {
	rec := &model.LastActiveRecord{
		UserID:       userID,
		LastActiveAt: at,
	}

	profile, err := c.directory.FindProfile(ctx, userID)
	if err != nil {
		// 身份查询失败不阻止回写：记录里至少要有用户 ID 和时间戳
		c.logger.Warn("Profile lookup failed, writing partial record", "user_id", userID, "error", err)
	} else {
		rec.DisplayName = profile.DisplayName
		rec.Email = profile.Email
	}

	if err := c.tenants.Tenant(tenantID).UpsertLastActive(ctx, rec); err != nil {
		return fmt.Errorf("upsert last active: %w", err)
	}
	return nil
}

// SessionCount 返回 (租户, 用户) 当前存活会话数（测试与诊断用）
func (c *Coordinator) SessionCount(tenantID, userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[tenantID][userID]
}
