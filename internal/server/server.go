package server

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"

	"taskloom.rt.gateway/internal/auth"
	"taskloom.rt.gateway/internal/config"
	"taskloom.rt.gateway/internal/connection"
	"taskloom.rt.gateway/internal/fanout"
	"taskloom.rt.gateway/internal/handler"
	"taskloom.rt.gateway/internal/metrics"
	natsx "taskloom.rt.gateway/internal/nats"
	"taskloom.rt.gateway/internal/presence"
	"taskloom.rt.gateway/internal/redis"
	"taskloom.rt.gateway/internal/registry"
	"taskloom.rt.gateway/internal/relay"
	"taskloom.rt.gateway/internal/repository"
	"taskloom.rt.gateway/internal/workerpool"
)

const (
	defaultWorkers   = 64
	defaultQueueSize = 1024
)

// Server 网关入口
// 持有连接生命周期：握手认证 → 房间加入 → 在线登记 → 事件循环 →
// 终止对账。对账在会话协程的 defer 中执行，任何终止路径都不会跳过
type Server struct {
	cfg        *config.Config
	natsClient *natsx.Client
	logger     *slog.Logger

	registry  *registry.Registry
	fanout    *fanout.Fanout
	presence  *presence.Coordinator
	handler   *handler.Handler
	pool      *workerpool.Pool
	hbChecker *registry.HeartbeatChecker
	wtServer  *webtransport.Server
	wg        sync.WaitGroup
}

// tenantDirectory 适配仓库的具体返回类型到协调器接口
type tenantDirectory struct {
	repo *repository.PresenceRepository
}

func (d tenantDirectory) Tenant(tenantID string) presence.TenantData {
	return d.repo.Tenant(tenantID)
}

func New(cfg *config.Config, natsClient *natsx.Client, redisClient *redis.Client, users *repository.UserRepository, presenceRepo *repository.PresenceRepository, logger *slog.Logger) *Server {
	reg := registry.New()
	fo := fanout.New(reg, natsClient, nodeID(cfg), logger)
	coord := presence.NewCoordinator(redisClient, users, tenantDirectory{repo: presenceRepo}, fo, logger)
	rl := relay.New(reg, fo, logger)
	verifier := auth.NewVerifier(cfg.Auth.TokenSecret, redisClient, logger)

	workers := cfg.Server.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	queueSize := cfg.Server.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	pool := workerpool.New(workers, queueSize, logger)

	return &Server{
		cfg:        cfg,
		natsClient: natsClient,
		logger:     logger,
		registry:   reg,
		fanout:     fo,
		presence:   coord,
		handler:    handler.NewHandler(reg, rl, coord, verifier, pool, logger),
		pool:       pool,
		hbChecker: registry.NewHeartbeatChecker(reg,
			cfg.Server.HeartbeatTimeout,
			cfg.Server.HeartbeatCheckInterval,
			logger),
	}
}

func (s *Server) Start(ctx context.Context) error {
	tlsConfig, err := s.loadTLSConfig()
	if err != nil {
		return err
	}

	quicConfig := &quic.Config{
		MaxIdleTimeout:        s.cfg.QUIC.MaxIdleTimeout,
		KeepAlivePeriod:       s.cfg.QUIC.KeepAlivePeriod,
		MaxIncomingStreams:    s.cfg.QUIC.MaxIncomingStreams,
		MaxIncomingUniStreams: s.cfg.QUIC.MaxIncomingUniStreams,
		Allow0RTT:             s.cfg.QUIC.Allow0RTT,
		EnableDatagrams:       true, // WebTransport 需要启用数据报支持
	}

	s.wtServer = &webtransport.Server{
		H3: http3.Server{
			Addr:       s.cfg.Server.Addr,
			TLSConfig:  tlsConfig,
			QUICConfig: quicConfig,
		},
		CheckOrigin: func(r *http.Request) bool {
			// TODO: 生产环境应该检查 Origin
			return true
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/rt", func(w http.ResponseWriter, r *http.Request) {
		session, err := s.wtServer.Upgrade(w, r)
		if err != nil {
			s.logger.Error("WebTransport upgrade failed", "error", err)
			return
		}
		s.wg.Add(1)
		go s.handleSession(ctx, session)
	})
	s.wtServer.H3.Handler = mux

	if err := s.subscribeFanout(); err != nil {
		return err
	}

	go s.hbChecker.Start(ctx)

	s.logger.Info("Realtime gateway starting", "addr", s.cfg.Server.Addr, "node_id", nodeID(s.cfg))
	return s.wtServer.ListenAndServe()
}

func (s *Server) handleSession(ctx context.Context, session *webtransport.Session) {
	defer s.wg.Done()

	c := connection.NewFromWebTransport(session, s.logger)
	s.registry.Add(c)
	metrics.TotalConnections.Inc()
	metrics.ActiveConnections.Inc()

	defer func() {
		// 任何终止路径（正常关闭、网络掉线、协议错误）都执行对账；
		// 用独立的 context，断连对账不随服务 context 一起被取消
		if ident := c.Identity(); ident != nil {
			reconcileCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := s.presence.Disconnect(reconcileCtx, ident.TenantID, ident.UserID); err != nil {
				s.logger.Warn("Disconnect reconciliation incomplete", "conn_id", c.ID(), "error", err)
			}
			cancel()
		}
		s.registry.Remove(c.ID())
		c.Close()
		metrics.ActiveConnections.Dec()
	}()

	// 首个 stream 必须是认证请求
	firstStream, err := session.AcceptStream(ctx)
	if err != nil {
		return
	}

	if err := s.handler.HandleFirstStream(ctx, c, firstStream); err != nil {
		s.logger.Warn("Handshake rejected, closing session", "conn_id", c.ID(), "error", err)
		if err := session.CloseWithError(4001, "unauthorized"); err != nil {
			s.logger.Error("Failed to close session", "conn_id", c.ID(), "error", err)
		}
		return
	}

	// 认证成功后在同一个流上同步处理事件，阻塞直到流关闭，
	// 返回后触发 defer 中的对账
	s.handler.HandleStream(ctx, c, firstStream)
}

// subscribeFanout 订阅其他网关节点广播的房间事件
func (s *Server) subscribeFanout() error {
	return s.natsClient.Subscribe(natsx.SubjectGatewayFanout, s.fanout.HandleRemote)
}

func nodeID(cfg *config.Config) string {
	if cfg.Server.NodeID != "" {
		return cfg.Server.NodeID
	}
	return "gateway-1"
}

func (s *Server) loadTLSConfig() (*tls.Config, error) {
	if s.cfg.QUIC.CertFile != "" && s.cfg.QUIC.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(s.cfg.QUIC.CertFile, s.cfg.QUIC.KeyFile)
		if err != nil {
			return nil, err
		}
		s.logger.Info("Loaded TLS certificate",
			"cert_file", s.cfg.QUIC.CertFile,
			"key_file", s.cfg.QUIC.KeyFile)
		return &tls.Config{
			Certificates: []tls.Certificate{cert},
			NextProtos:   []string{"h3", "webtransport"},
			MinVersion:   tls.VersionTLS13,
		}, nil
	}

	// 开发环境：生成自签名证书
	s.logger.Warn("No TLS certificate configured, using self-signed certificate")
	return generateSelfSignedTLSConfig()
}

// Registry 返回连接注册表（健康检查的连接计数用）
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

func (s *Server) Shutdown() {
	if s.wtServer != nil {
		s.wtServer.Close()
	}
	s.wg.Wait()
	s.pool.Shutdown()
}
