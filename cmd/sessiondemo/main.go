// Command sessiondemo is a minimal HTTP server that exercises the
// Core Facade end to end: scoped sessions, auth validation behind a
// circuit breaker, and health reporting.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/R3E-Network/session-core/core"
	"github.com/R3E-Network/session-core/identity"
	"github.com/R3E-Network/session-core/scconfig"
	"github.com/R3E-Network/session-core/sclog"
	"github.com/R3E-Network/session-core/scmetrics"
	"github.com/R3E-Network/session-core/sessionfactory"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (defaults to :8080)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (in-memory provider used when empty)")
	jwtSecret := flag.String("jwt-secret", "", "HMAC secret for demo JWT validation")
	flag.Parse()

	_ = scconfig.LoadDotEnv(".env")

	logLevel := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevel == "" {
		logLevel = "info"
	}
	logFormat := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if logFormat == "" {
		logFormat = "json"
	}
	sclog.InitDefault("sessiondemo", logLevel, logFormat)
	logger := sclog.Default()

	cfg, err := scconfig.FromEnv()
	if err != nil {
		logger.WithField("error", err).Fatal("failed to load configuration")
	}

	secret := strings.TrimSpace(*jwtSecret)
	if secret == "" {
		secret = strings.TrimSpace(os.Getenv("JWT_SECRET"))
	}
	if secret == "" {
		secret = "sessiondemo-insecure-dev-secret"
		logger.Warn("JWT_SECRET not set; using an insecure development default")
	}

	var provider sessionfactory.ConnectionProvider
	dsnVal := resolveDSN(*dsn)
	if dsnVal != "" {
		db, err := sessionfactory.OpenPostgres(context.Background(), dsnVal, 5*time.Second)
		if err != nil {
			logger.WithField("error", err).Fatal("failed to connect to postgres")
		}
		defer db.Close()
		provider = sessionfactory.NewPostgresProvider(db, cfg.Session.AcquireTimeout)
	} else {
		logger.Info("no -dsn provided, using the in-memory demo connection provider")
		provider = newMemProvider(10)
	}

	authClient := newJWTAuthClient(secret)

	facadeCfg := core.Config{
		Session:       cfg.Session,
		Breaker:       cfg.Breaker,
		TokenCacheTTL: cfg.TokenCacheTTL,
	}
	facade := core.Init(provider, authClient, facadeCfg, logger)

	metricsEnabled := scmetrics.Enabled()
	var metrics *scmetrics.Metrics
	if metricsEnabled {
		metrics = scmetrics.Init("sessiondemo")
		go pollHealthIntoMetrics(facade, metrics, logger)
	}

	engine := newRouter(facade, authClient, metrics, metricsEnabled)

	listenAddr := resolveAddr(*addr)
	srv := &http.Server{Addr: listenAddr, Handler: engine}

	go func() {
		logger.WithField("addr", listenAddr).Info("sessiondemo listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithField("error", err).Fatal("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithField("error", err).Error("http server shutdown error")
	}
	if err := core.Shutdown(shutdownCtx); err != nil {
		logger.WithField("error", err).Error("facade shutdown error")
	}
}

func newRouter(facade *core.Facade, authClient *jwtAuthClient, metrics *scmetrics.Metrics, metricsEnabled bool) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())

	if metricsEnabled {
		engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	engine.GET("/health", func(c *gin.Context) {
		report := facade.Health(c.Request.Context())
		status := http.StatusOK
		if report.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, report)
	})

	engine.POST("/authenticate", func(c *gin.Context) {
		var body struct {
			Token string `json:"token"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.Token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
			return
		}
		verdict, err := facade.Authenticate(c.Request.Context(), body.Token)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, verdict)
	})

	engine.POST("/echo", func(c *gin.Context) {
		var body struct {
			UserID string `json:"user_id"`
			Text   string `json:"text"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.UserID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
			return
		}

		id, err := identity.New(body.UserID, "", "", "")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var echoed string
		err = facade.WithSession(c.Request.Context(), id, sessionfactory.Options{}, func(ctx context.Context, h *sessionfactory.Handle) error {
			h.Metrics().RecordQuery()
			echoed = body.Text
			return nil
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"session_id": id.SessionID, "echo": echoed})
	})

	engine.POST("/chaos", func(c *gin.Context) {
		var body struct {
			Enabled bool `json:"enabled"`
		}
		_ = c.ShouldBindJSON(&body)
		authClient.SetChaos(body.Enabled)
		c.JSON(http.StatusOK, gin.H{"chaos": body.Enabled})
	})

	return engine
}

func pollHealthIntoMetrics(facade *core.Facade, metrics *scmetrics.Metrics, logger *sclog.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		report := facade.Health(context.Background())
		metrics.SessionsActive.Set(float64(report.Factory.Active))
		for name, breakerReport := range report.Breakers {
			metrics.RecordBreakerState(name, breakerReport.State)
		}
	}
}

func resolveAddr(flagAddr string) string {
	addr := strings.TrimSpace(flagAddr)
	if addr != "" {
		return addr
	}
	if envAddr := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); envAddr != "" {
		return envAddr
	}
	return ":8080"
}

func resolveDSN(flagDSN string) string {
	if trimmed := strings.TrimSpace(flagDSN); trimmed != "" {
		return trimmed
	}
	return strings.TrimSpace(os.Getenv("DATABASE_URL"))
}
