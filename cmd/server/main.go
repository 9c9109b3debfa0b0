package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/kyiku/slide-textguard-back/internal/config"
	"github.com/kyiku/slide-textguard-back/internal/controller"
	"github.com/kyiku/slide-textguard-back/internal/handler"
	"github.com/kyiku/slide-textguard-back/internal/logging"
	"github.com/kyiku/slide-textguard-back/internal/middleware"
	"github.com/kyiku/slide-textguard-back/internal/model"
	"github.com/kyiku/slide-textguard-back/internal/response"
	"github.com/kyiku/slide-textguard-back/internal/session"
	"github.com/kyiku/slide-textguard-back/internal/storage"
)

// S3Adapter adapts AWS S3 client to our interface
type S3Adapter struct {
	client *s3.Client
	bucket string
}

func (a *S3Adapter) GetObject(key string) ([]byte, error) {
	output, err := a.client.GetObject(context.TODO(), &s3.GetObjectInput{
		Bucket: &a.bucket,
		Key:    &key,
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	defer output.Body.Close()
	return io.ReadAll(output.Body)
}

func (a *S3Adapter) PutObject(key string, data []byte) error {
	_, err := a.client.PutObject(context.TODO(), &s3.PutObjectInput{
		Bucket: &a.bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	})
	return err
}

func (a *S3Adapter) ListObjects(prefix string) ([]string, error) {
	output, err := a.client.ListObjectsV2(context.TODO(), &s3.ListObjectsV2Input{
		Bucket: &a.bucket,
		Prefix: &prefix,
	})
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(output.Contents))
	for _, obj := range output.Contents {
		keys = append(keys, *obj.Key)
	}
	return keys, nil
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Warn("failed to load .env", "err", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("failed to load config", "err", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid config", "err", err)
	}

	logger := logging.New(os.Stderr, logging.ParseLevel(cfg.LogLevel))
	settings := cfg.Solver.Settings()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// S3 is optional: without a bucket masks must be sent inline and nothing is persisted.
	var s3Client *storage.S3Client
	if cfg.S3Bucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			logger.Warn("failed to load AWS config, S3 features disabled", "err", err)
		} else {
			adapter := &S3Adapter{client: s3.NewFromConfig(awsCfg), bucket: cfg.S3Bucket}
			s3Client = storage.NewS3Client(adapter, cfg.S3Bucket, cloudfrontURL(cfg)).
				WithMaxMaskDimension(cfg.Solver.MaxMaskDimension)
		}
	}

	var persister controller.Persister
	if s3Client != nil {
		persister = s3Client
	}
	store := session.NewSessionStoreWithExpiry(func(canvas *model.Canvas) *controller.Controller {
		return controller.New(canvas, settings, persister, logger)
	}, cfg.SessionTTL)
	store.StartCleanup(ctx, time.Minute, func(n int) {
		logger.Info("expired canvases removed", "count", n)
	})

	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			logger.Info("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))
	e.Use(echomw.Recover())
	e.Use(echomw.BodyLimit("16M"))
	e.Use(middleware.CORSMiddleware(cfg.AllowedOrigin))

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(store)
	solveHandler := handler.NewSolveHandler(settings, logger)
	canvasHandler := handler.NewCanvasHandler(store, cfg.Solver.ContentPaddingPx, logger)
	canvasHandler.SetMaxDimension(cfg.Solver.MaxCanvasDimension)
	wsHandler := handler.NewWebSocketHandler(store, logger, cfg.AllowedOrigin)

	var maskHandler *handler.MaskHandler
	if s3Client != nil {
		canvasHandler.SetMaskSource(s3Client)
		canvasHandler.SetOverlayUploader(s3Client)
		maskHandler = handler.NewMaskHandler(s3Client)
	}

	// Health check (root level for ALB)
	e.GET("/health", healthHandler.Check)

	// WebSocket endpoint
	e.GET("/ws/canvas/:id", wsHandler.Connect)

	// API routes
	api := e.Group("/api")
	api.GET("/health", healthHandler.Check)

	// Each route keeps its own budget per client; see middleware.RouteKey.
	limit := middleware.RateLimitMiddleware(cfg.RateLimitPerMinute, time.Minute)

	// Stateless solver
	solve := api.Group("/solve", limit)
	solve.POST("/nearest", solveHandler.Nearest)
	solve.POST("/enforce", solveHandler.Enforce)

	// Canvas sessions
	canvas := api.Group("/canvas", limit)
	canvas.POST("", canvasHandler.Create)
	canvas.GET("/:id", canvasHandler.Get)
	canvas.DELETE("/:id", canvasHandler.Delete)
	canvas.PUT("/:id/background", canvasHandler.SetBackground)
	canvas.PUT("/:id/items/:itemId", canvasHandler.PutItem)
	canvas.DELETE("/:id/items/:itemId", canvasHandler.DeleteItem)
	canvas.POST("/:id/reflow", canvasHandler.Reflow)
	canvas.POST("/:id/realign", canvasHandler.Realign)
	canvas.POST("/:id/lock", canvasHandler.Lock)
	canvas.GET("/:id/overlay", canvasHandler.Overlay)

	// Stored silhouettes
	if maskHandler != nil {
		api.GET("/masks", maskHandler.List)
	} else {
		api.GET("/masks", unavailableHandler("S3"))
	}

	for _, r := range e.Routes() {
		logger.Debug("route", "method", r.Method, "path", r.Path)
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "s3", s3Client != nil)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down", "err", err)
	}
	logger.Info("server stopped")
}

// cloudfrontURL returns the public prefix for uploaded overlays.
func cloudfrontURL(cfg *config.Config) string {
	domain := cfg.CloudfrontDomain
	if domain == "" {
		return "https://" + cfg.S3Bucket + ".s3." + cfg.AWSRegion + ".amazonaws.com"
	}
	if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		return domain
	}
	return "https://" + domain
}

// unavailableHandler returns a handler that responds with service unavailable
func unavailableHandler(service string) echo.HandlerFunc {
	return func(c echo.Context) error {
		return response.ErrorWithCode(c, http.StatusServiceUnavailable, response.CodeStorageUnavailable, service+" is not configured")
	}
}
