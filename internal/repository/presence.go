package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"taskloom.rt.gateway/internal/model"
)

// PresenceRepository 租户库在线记录访问，按租户取作用域后使用
type PresenceRepository struct {
	db *pgxpool.Pool
}

// NewPresenceRepository 创建在线记录仓库
func NewPresenceRepository(db *pgxpool.Pool) *PresenceRepository {
	return &PresenceRepository{db: db}
}

// Tenant 返回指定租户的数据访问对象
func (r *PresenceRepository) Tenant(tenantID string) *TenantPresence {
	return &TenantPresence{db: r.db, tenantID: tenantID}
}

// TenantPresence 单个租户的在线记录访问
type TenantPresence struct {
	db       *pgxpool.Pool
	tenantID string
}

// UpsertLastActive 按用户 ID 写入最后活跃记录，存在则更新，不存在则创建
// 连接断开时的对账写入，必须可重复执行（会话乱序、重复断开都可能发生）
func (t *TenantPresence) UpsertLastActive(ctx context.Context, rec *model.LastActiveRecord) error {
	query := `
		INSERT INTO tenant_user_presence (tenant_id, user_id, display_name, email, last_active_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			email = EXCLUDED.email,
			last_active_at = EXCLUDED.last_active_at
	`

	_, err := t.db.Exec(ctx, query,
		t.tenantID,
		rec.UserID,
		rec.DisplayName,
		rec.Email,
		rec.LastActiveAt,
	)
	return err
}
