package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"taskloom.rt.gateway/internal/config"
)

const (
	// OnlineKeyPrefix 租户在线集合 Key 前缀
	// Key: tl:presence:online:{tenantId}，成员为在线用户 ID
	OnlineKeyPrefix = "tl:presence:online:"

	// BlacklistKeyPrefix 已吊销凭证 Key 前缀（由账号服务写入，网关只读）
	BlacklistKeyPrefix = "tl:token:blacklist:"

	// defaultOnlineTTL 在线集合滑动过期时间，心跳续期
	defaultOnlineTTL = 2 * time.Minute
)

// BuildOnlineKey 构建租户在线集合 Key
func BuildOnlineKey(tenantID string) string {
	return OnlineKeyPrefix + tenantID
}

// BuildBlacklistKey 构建凭证黑名单 Key
func BuildBlacklistKey(token string) string {
	return BlacklistKeyPrefix + token
}

// Client 共享存活存储客户端（在线集合 + 凭证黑名单）
type Client struct {
	client    *redis.Client
	onlineTTL time.Duration
	logger    *slog.Logger
}

// NewClient 创建存活存储客户端
func NewClient(cfg config.RedisConfig, onlineTTL time.Duration) *Client {
	if onlineTTL <= 0 {
		onlineTTL = defaultOnlineTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	return &Client{
		client:    client,
		onlineTTL: onlineTTL,
		logger:    slog.Default().With("component", "redis"),
	}
}

// IsTokenBlacklisted 查询凭证是否已被吊销
// 存储不可用时返回 error，由调用方决定失败语义（认证侧 fail closed）
func (c *Client) IsTokenBlacklisted(ctx context.Context, token string) (bool, error) {
	n, err := c.client.Exists(ctx, BuildBlacklistKey(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AddOnline 将用户加入租户在线集合并续期
// SADD 幂等：同一用户多个并发会话重复加入是无害的 no-op
func (c *Client) AddOnline(ctx context.Context, tenantID, userID string) error {
	key := BuildOnlineKey(tenantID)

	pipe := c.client.Pipeline()
	pipe.SAdd(ctx, key, userID)
	pipe.Expire(ctx, key, c.onlineTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// RemoveOnline 将用户移出租户在线集合
// SREM 幂等：重复移除同样是 no-op
func (c *Client) RemoveOnline(ctx context.Context, tenantID, userID string) error {
	return c.client.SRem(ctx, BuildOnlineKey(tenantID), userID).Err()
}

// OnlineUsers 返回租户当前在线用户 ID 集合
func (c *Client) OnlineUsers(ctx context.Context, tenantID string) ([]string, error) {
	return c.client.SMembers(ctx, BuildOnlineKey(tenantID)).Result()
}

// Ping 检查 Redis 连接
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close 关闭连接
func (c *Client) Close() error {
	return c.client.Close()
}
