// Package main provides the coordinator's server bootstrap.
package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/larachado/coordinator/api/handlers"
	"github.com/larachado/coordinator/config"
	"github.com/larachado/coordinator/internal/agents/community"
	"github.com/larachado/coordinator/internal/agents/localdiscovery"
	"github.com/larachado/coordinator/internal/agents/mapping"
	"github.com/larachado/coordinator/internal/agents/negotiation"
	"github.com/larachado/coordinator/internal/agents/research"
	"github.com/larachado/coordinator/internal/agents/scoping"
	"github.com/larachado/coordinator/internal/cache"
	"github.com/larachado/coordinator/internal/coordinator"
	"github.com/larachado/coordinator/internal/geocoder"
	"github.com/larachado/coordinator/internal/llmgateway"
	"github.com/larachado/coordinator/internal/metrics"
	"github.com/larachado/coordinator/internal/poiprovider"
	"github.com/larachado/coordinator/internal/searchprovider"
	"github.com/larachado/coordinator/internal/server"
	"github.com/larachado/coordinator/internal/session"
	"github.com/larachado/coordinator/internal/telephony"
)

// Server is the coordinator's top-level process: it owns the HTTP listener,
// the metrics listener, and the wiring that turns a loaded Config into a
// running pipeline of agents behind the three HTTP handlers.
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger

	httpManager    *server.Manager
	metricsManager *server.Manager

	healthHandler     *handlers.HealthHandler
	chatHandler       *handlers.ChatHandler
	negotiateHandler  *handlers.NegotiateHandler

	metricsCollector *metrics.Collector
	sharedCache      cache.Cache

	wg sync.WaitGroup
}

// NewServer wires every collaborator named in the configuration into a
// Coordinator and the three HTTP handlers that front it.
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger) (*Server, error) {
	s := &Server{cfg: cfg, configPath: configPath, logger: logger}
	s.metricsCollector = metrics.NewCollector("coordinator", logger)

	sharedCache, err := cache.New(cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}
	s.sharedCache = sharedCache

	llm, aerr := llmgateway.New(llmgateway.Config{
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		Model:      cfg.LLM.Model,
		Timeout:    cfg.LLM.Timeout,
		PoolSize:   cfg.LLM.PoolSize,
		MaxRetries: cfg.LLM.MaxRetries,
	}, logger)
	if aerr != nil {
		return nil, fmt.Errorf("init llm gateway: %w", aerr)
	}
	llm.SetMetrics(s.metricsCollector)

	search := searchprovider.New(searchprovider.Config{
		APIKey:  cfg.SearchProvider.APIKey,
		BaseURL: cfg.SearchProvider.BaseURL,
		Timeout: cfg.SearchProvider.Timeout,
	}, logger)

	geo := geocoder.New(geocoder.Config{
		APIKey:  cfg.Geocoder.APIKey,
		BaseURL: cfg.Geocoder.BaseURL,
		Timeout: cfg.Geocoder.Timeout,
	}, sharedCache, logger)
	geo.SetMetrics(s.metricsCollector)

	poi := poiprovider.New(poiprovider.Config{
		APIKey:  cfg.POIProvider.APIKey,
		BaseURL: cfg.POIProvider.BaseURL,
		Timeout: cfg.POIProvider.Timeout,
	}, sharedCache, logger)
	poi.SetMetrics(s.metricsCollector)

	tel := telephony.New(telephony.Config{
		APIKey:      cfg.Telephony.APIKey,
		AssistantID: cfg.Telephony.AssistantID,
		BaseURL:     cfg.Telephony.BaseURL,
		Timeout:     cfg.Telephony.Timeout,
	}, logger)

	scopingAgent := scoping.New(llm, logger)
	researchAgent := research.New(search, llm, nil, logger)
	mappingAgent := mapping.New(geo, logger)
	localDiscoveryAgent := localdiscovery.New(poi, logger)
	communityAgent := community.New(search, llm, logger)
	negotiationAgent := negotiation.New(search, llm, tel, logger)

	store := session.New(cfg.Session.Capacity)
	coord := coordinator.New(store, scopingAgent, researchAgent, mappingAgent, localDiscoveryAgent, communityAgent, negotiationAgent, logger)
	coord.SetMetrics(s.metricsCollector)

	s.chatHandler = handlers.NewChatHandler(coord, logger)
	s.negotiateHandler = handlers.NewNegotiateHandler(coord, logger)

	s.healthHandler = handlers.NewHealthHandler(logger)
	s.healthHandler.RegisterCheck(handlers.NewCacheHealthCheck("cache", func(ctx context.Context) error {
		err := sharedCache.GetJSON(ctx, "coordinator:readiness-probe", new(map[string]any))
		if err != nil && !cache.IsCacheMiss(err) {
			return err
		}
		return nil
	}))

	return s, nil
}

// Start brings up the HTTP and metrics listeners. Both run in background
// goroutines managed by internal/server.Manager.
func (s *Server) Start() error {
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("start metrics server: %w", err)
	}

	s.logger.Info("servers started",
		zap.Int("listen_port", s.cfg.Server.ListenPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return nil
}

func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/api/chat", s.chatHandler.Handle)
	mux.HandleFunc("/api/negotiate", s.negotiateHandler.Handle)

	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz"}
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		OTelTracing(),
		SecurityHeaders(),
		CORS(s.cfg.CORS.AllowedOrigins),
		APIKeyAuth(s.cfg.Auth.APIKeys, skipAuthPaths, s.logger),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.ListenPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}
	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.ListenPort))
	return nil
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}
	s.logger.Info("metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// WaitForShutdown blocks until a termination signal arrives, then runs
// Shutdown.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown gracefully stops both listeners and releases the shared cache.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")
	ctx := context.Background()

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("http server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}
	if s.sharedCache != nil {
		if err := s.sharedCache.Close(); err != nil {
			s.logger.Error("cache close error", zap.Error(err))
		}
	}

	s.wg.Wait()
	s.logger.Info("graceful shutdown completed")
}
