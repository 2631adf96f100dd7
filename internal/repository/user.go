package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"taskloom.rt.gateway/internal/config"
	"taskloom.rt.gateway/internal/model"
)

// NewPool 创建 PostgreSQL 连接池
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Name,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = 10 * time.Minute

	return pgxpool.NewWithConfig(ctx, poolConfig)
}

// UserRepository 核心身份库访问（只读）
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository 创建用户仓库
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// FindProfile 根据 ID 查找用户展示字段
func (r *UserRepository) FindProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	query := `
		SELECT id, display_name, email
		FROM users WHERE id = $1
	`

	var profile model.UserProfile
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&profile.ID,
		&profile.DisplayName,
		&profile.Email,
	)

	if err != nil {
		return nil, err
	}

	return &profile, nil
}
