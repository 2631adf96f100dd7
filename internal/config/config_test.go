package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testConfig = `
server:
  addr: ":4433"
  node_id: "gateway-test"
  workers: 8
  queue_size: 128
  heartbeat_timeout: 90s
  heartbeat_check_interval: 30s

quic:
  max_idle_timeout: 60s
  keep_alive_period: 20s

nats:
  url: "nats://localhost:4222"
  max_reconnects: 10
  reconnect_wait: 2s

redis:
  addr: "localhost:6379"
  db: 1

database:
  host: "localhost"
  port: 5432
  name: "taskloom"
  max_conns: 20

auth:
  token_secret: "test-secret"

presence:
  online_ttl: 2m

logging:
  level: "debug"
  format: "json"

ops:
  addr: ":8080"
`

// TestLoad 测试配置加载
func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(testConfig), 0644); err != nil {
		t.Fatalf("写入测试配置失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if cfg.Server.Addr != ":4433" {
		t.Errorf("服务地址不匹配: %s", cfg.Server.Addr)
	}
	if cfg.Server.NodeID != "gateway-test" {
		t.Errorf("节点 ID 不匹配: %s", cfg.Server.NodeID)
	}
	if cfg.Server.HeartbeatTimeout != 90*time.Second {
		t.Errorf("心跳超时不匹配: %v", cfg.Server.HeartbeatTimeout)
	}
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("NATS 地址不匹配: %s", cfg.NATS.URL)
	}
	if cfg.Redis.DB != 1 {
		t.Errorf("Redis DB 不匹配: %d", cfg.Redis.DB)
	}
	if cfg.Database.MaxConns != 20 {
		t.Errorf("数据库连接数不匹配: %d", cfg.Database.MaxConns)
	}
	if cfg.Auth.TokenSecret != "test-secret" {
		t.Errorf("凭证密钥不匹配: %s", cfg.Auth.TokenSecret)
	}
	if cfg.Presence.OnlineTTL != 2*time.Minute {
		t.Errorf("在线 TTL 不匹配: %v", cfg.Presence.OnlineTTL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("日志级别不匹配: %s", cfg.Logging.Level)
	}
}

// TestLoadMissingFile 测试配置文件缺失
func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("配置文件缺失应返回 error")
	}
}
