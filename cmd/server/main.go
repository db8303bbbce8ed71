package main

import (
	// Standard library
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	// External dependencies
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	// Internal packages
	"github.com/diascribe/diascribe/cmd/server/internal/api"
	"github.com/diascribe/diascribe/cmd/server/internal/audit"
	"github.com/diascribe/diascribe/cmd/server/internal/config"
	"github.com/diascribe/diascribe/cmd/server/internal/degradation"
	"github.com/diascribe/diascribe/cmd/server/internal/diarize"
	"github.com/diascribe/diascribe/cmd/server/internal/health"
	"github.com/diascribe/diascribe/cmd/server/internal/middleware"
	"github.com/diascribe/diascribe/cmd/server/internal/pipeline"
	"github.com/diascribe/diascribe/cmd/server/internal/session"
	"github.com/diascribe/diascribe/cmd/server/internal/transcribe"
	"github.com/diascribe/diascribe/cmd/server/internal/watch"
	"github.com/diascribe/diascribe/cmd/server/internal/ws"
	"github.com/diascribe/diascribe/pkg/logger"
)

func main() {
	logInstance, err := logger.Init(logger.Config{
		Level:       os.Getenv("LOG_LEVEL"),
		Environment: os.Getenv("ENV"),
		WithSource:  !strings.EqualFold(os.Getenv("ENV"), "production"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	appLogger := logInstance.With("component", "server")

	// Load configuration (env first, optional YAML overlay)
	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// 配置缺陷（缺 JWT secret、script 模式缺 HUGGINGFACE_TOKEN 等）
	// 必须在监听端口之前失败
	if err := config.ValidateConfig(cfg); err != nil {
		appLogger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	appLogger.Info("configuration loaded", "env", cfg.Server.Env, "port", cfg.Server.Port)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// ffmpeg 缺失不算致命：纯 wav 流程仍可工作，mp3 会在处理时报错
	if _, err := exec.LookPath(cfg.Pipeline.FFmpegPath); err != nil {
		appLogger.Warn("ffmpeg not found, mp3 uploads will fail",
			"path", cfg.Pipeline.FFmpegPath,
			"hint", "安装 ffmpeg 或设置 FFMPEG_PATH")
	}

	// rootCtx 管理健康检查与目录监视这些后台循环的生命周期
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Build the diarization adapter
	diarizer, err := buildDiarizer(cfg)
	if err != nil {
		appLogger.Error("diarizer init failed", "error", err)
		os.Exit(1)
	}
	appLogger.Info("diarizer ready", "mode", cfg.Diarizer.Mode, "impl", diarizer.Name())

	// Build the transcription adapter, optionally wrapped in the
	// degradation controller
	checkers := make(map[string]*health.HealthChecker)
	source, dc, err := buildTranscriberSource(rootCtx, cfg, logInstance, checkers)
	if err != nil {
		appLogger.Error("transcriber init failed", "error", err)
		os.Exit(1)
	}
	appLogger.Info("transcriber ready",
		"mode", cfg.Transcriber.Mode,
		"degradation", cfg.Transcriber.EnableDegradation)

	if cfg.Diarizer.Mode != "mock" {
		hc := health.NewHealthChecker(diarizer,
			logInstance.With("component", "health-diarizer"),
			mustDuration(cfg.Transcriber.HealthCheckInterval),
			cfg.Transcriber.HealthCheckFailThreshold)
		checkers["diarizer"] = hc
		go hc.Start(rootCtx)
	}

	// Session store
	mgr, err := session.NewManager(cfg.Data.SessionsDir, cfg.Pipeline.MaxConcurrentRuns, appLogger)
	if err != nil {
		appLogger.Error("session manager init failed", "error", err)
		os.Exit(1)
	}
	if err := mgr.LoadIndex(); err != nil {
		appLogger.Warn("session index load failed, starting empty", "error", err)
	}
	appLogger.Info("session manager ready", "dir", cfg.Data.SessionsDir)

	issuer := session.NewTokenIssuer(cfg.Security.JWTSecret, cfg.TokenTTLDuration())

	auditLog := audit.NewLogger(filepath.Join(cfg.Data.AuditLogsDir, "processing.log"))
	appLogger.Info("audit logger ready", "dir", cfg.Data.AuditLogsDir)

	// Progress fan-out hub; pipeline events go to websocket subscribers
	hub := ws.NewHub(logInstance.With("component", "ws-hub"))

	pipe := pipeline.NewPipeline(diarizer, source, pipeline.Config{
		FFmpegPath: cfg.Pipeline.FFmpegPath,
		Options: transcribe.Options{
			Model:       cfg.Transcriber.Model,
			Language:    cfg.Transcriber.Language,
			Temperature: cfg.Transcriber.Temperature,
			Timeout:     mustDuration(cfg.Transcriber.Timeout),
		},
	}, logInstance.With("component", "pipeline"), hub.Publish)
	appLogger.Info("pipeline ready")

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.Security.CORSAllowedOrigins))

	// Unauthenticated surface: liveness and metrics
	r.GET("/healthz", api.HandleHealthz(checkers, dc))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	setupRoutes(r, mgr, issuer, pipe, hub, auditLog)

	// Optional inbox-folder mode
	if cfg.Watch.Enabled {
		if cfg.Data.ScratchDir != "" {
			if err := os.MkdirAll(cfg.Data.ScratchDir, 0755); err != nil {
				appLogger.Warn("cannot create scratch dir", "dir", cfg.Data.ScratchDir, "error", err)
			}
		}
		w := watch.New(watch.Config{
			Dir:         cfg.Watch.Dir,
			ScratchBase: cfg.Data.ScratchDir,
		}, pipe, logInstance.With("component", "watch"))
		go func() {
			if err := w.Run(rootCtx); err != nil && rootCtx.Err() == nil {
				appLogger.Warn("watch folder disabled", "error", err)
			}
		}()
	}

	// Create HTTP server with graceful shutdown
	srv := &http.Server{
		Addr:    cfg.GetServerAddr(),
		Handler: r,
	}

	go func() {
		appLogger.Info("server starting", "addr", srv.Addr, "env", cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-quit
	appLogger.Info("shutdown signal received, shutting down server...")

	rootCancel()
	for _, hc := range checkers {
		hc.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// 把最终会话状态落盘，重启后恢复
	if err := mgr.SaveIndex(); err != nil {
		appLogger.Warn("final session index save failed", "error", err)
	}
	appLogger.Info("server shutdown complete")
}

// setupRoutes registers the session-scoped API surface. Everything under
// /api/v1/sessions/:id requires the bearer token minted at creation.
func setupRoutes(r *gin.Engine, mgr *session.Manager, issuer *session.TokenIssuer, pipe *pipeline.Pipeline, hub *ws.Hub, auditLog *audit.Logger) {
	r.POST("/api/v1/sessions", api.HandleCreateSession(mgr, issuer))

	authed := r.Group("/api/v1/sessions/:id", api.SessionAuth(issuer))
	authed.DELETE("", api.HandleDeleteSession(mgr))
	authed.POST("/audio", api.HandleUploadAudio(mgr, auditLog))
	authed.POST("/process", api.HandleProcess(mgr, pipe, auditLog))
	authed.GET("/result", api.HandleGetResult(mgr))
	authed.GET("/transcript", api.HandleGetTranscript(mgr))
	authed.GET("/summary", api.HandleGetSummary(mgr))
	authed.GET("/export", api.HandleExport(mgr, auditLog))
	authed.GET("/progress", api.HandleProgress(mgr, hub))
}

// buildDiarizer 按配置选择说话人分离实现。
func buildDiarizer(cfg *config.Config) (diarize.Diarizer, error) {
	switch cfg.Diarizer.Mode {
	case "http":
		return diarize.NewHTTPDiarizer(cfg.Diarizer.APIURL), nil
	case "script":
		return diarize.NewScriptDiarizer(
			cfg.Diarizer.PythonBin,
			cfg.Diarizer.ScriptPath,
			cfg.Diarizer.Device,
			cfg.Diarizer.HFToken,
			mustDuration(cfg.Diarizer.Timeout))
	case "mock":
		// 演示/测试布局：两个说话人交替
		return diarize.NewMockDiarizer([]diarize.Turn{
			{Start: 0.0, End: 4.0, Speaker: "SPEAKER_00"},
			{Start: 4.0, End: 7.5, Speaker: "SPEAKER_01"},
			{Start: 7.5, End: 10.0, Speaker: "SPEAKER_00"},
		}), nil
	default:
		return nil, fmt.Errorf("unknown diarizer mode: %s", cfg.Diarizer.Mode)
	}
}

// buildTranscriberSource 按配置选择转写实现。启用降级时主实现被健康
// 检查驱动的控制器包装，探测失败自动切到 mock 兜底并持续回探。
func buildTranscriberSource(ctx context.Context, cfg *config.Config, log *slog.Logger, checkers map[string]*health.HealthChecker) (pipeline.TranscriberSource, *degradation.DegradationController, error) {
	tr, err := buildTranscriber(cfg)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Transcriber.Mode == "mock" || !cfg.Transcriber.EnableDegradation {
		return pipeline.FixedTranscriber{T: tr}, nil, nil
	}

	hc := health.NewHealthChecker(tr,
		log.With("component", "health-transcriber"),
		mustDuration(cfg.Transcriber.HealthCheckInterval),
		cfg.Transcriber.HealthCheckFailThreshold)
	checkers["transcriber"] = hc
	go hc.Start(ctx)

	dc := degradation.NewDegradationController(tr, transcribe.NewMockTranscriber(), hc,
		log.With("component", "degradation"))
	return dc, dc, nil
}

func buildTranscriber(cfg *config.Config) (transcribe.Transcriber, error) {
	switch cfg.Transcriber.Mode {
	case "http":
		return transcribe.NewHTTPTranscriber(cfg.Transcriber.APIURL), nil
	case "cli":
		return transcribe.NewCLITranscriber(cfg.Transcriber.BinaryPath)
	case "mock":
		return transcribe.NewMockTranscriber(), nil
	default:
		return nil, fmt.Errorf("unknown transcriber mode: %s", cfg.Transcriber.Mode)
	}
}

// mustDuration parses a duration already vetted by config validation.
func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
