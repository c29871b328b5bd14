package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kantek-project/polizei/autobahn/blacklist"
	"github.com/kantek-project/polizei/autobahn/cachestore"
	"github.com/kantek-project/polizei/autobahn/engine"
	"github.com/kantek-project/polizei/autobahn/ledger"
	"github.com/kantek-project/polizei/autobahn/platform"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogecho "github.com/samber/slog-echo"
	"gorm.io/gorm"
)

type Server struct {
	logger *slog.Logger
	engine *engine.Engine
	echo   *echo.Echo
}

type Config struct {
	Logger       *slog.Logger
	RedisURL     string
	URLRateLimit int
}

// The evaluation API is decision-only: it reports what the pipeline would
// match, and never acts on it. Enforcement is driven by the platform client,
// not over HTTP.
type readonlyActions struct{}

var _ platform.Actions = (*readonlyActions)(nil)

func (readonlyActions) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return fmt.Errorf("%w: evaluation service is read-only", platform.ErrPermissionDenied)
}
func (readonlyActions) BanLocal(ctx context.Context, chatID, userID int64) error {
	return fmt.Errorf("%w: evaluation service is read-only", platform.ErrPermissionDenied)
}
func (readonlyActions) SendText(ctx context.Context, chatID int64, text string) error {
	return fmt.Errorf("%w: evaluation service is read-only", platform.ErrPermissionDenied)
}
func (readonlyActions) BanGlobal(ctx context.Context, userID int64, reason string) error {
	return fmt.Errorf("%w: evaluation service is read-only", platform.ErrPermissionDenied)
}
func (readonlyActions) PurgeHistory(ctx context.Context, chatID, userID int64) error {
	return fmt.Errorf("%w: evaluation service is read-only", platform.ErrPermissionDenied)
}
func (readonlyActions) CountRecentMessages(ctx context.Context, chatID, userID int64) (int, error) {
	return 0, fmt.Errorf("%w: evaluation service is read-only", platform.ErrPermissionDenied)
}

type noAdmins struct{}

var _ platform.AdminSource = (*noAdmins)(nil)

func (noAdmins) IsAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	return false, nil
}

func NewServer(db *gorm.DB, config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	store, err := blacklist.NewGormStore(db)
	if err != nil {
		return nil, fmt.Errorf("initializing blacklist store: %w", err)
	}
	banLedger, err := ledger.NewGormLedger(db)
	if err != nil {
		return nil, fmt.Errorf("initializing ban ledger: %w", err)
	}

	var cache cachestore.CacheStore
	if config.RedisURL != "" {
		csh, err := cachestore.NewRedisCacheStore(config.RedisURL, 30*time.Minute)
		if err != nil {
			return nil, fmt.Errorf("initializing redis cachestore: %w", err)
		}
		cache = csh
	} else {
		cache = cachestore.NewMemCacheStore(5_000, 30*time.Minute)
	}

	cfg := engine.DefaultConfig()
	eng := &engine.Engine{
		Logger:   logger,
		Store:    store,
		Ledger:   banLedger,
		Resolver: platform.NewHTTPResolver(nil, cache, config.URLRateLimit),
		Media:    platform.NewHTTPMedia(cfg.FileSizeCeiling),
		Actions:  readonlyActions{},
		Admins:   noAdmins{},
		Config:   cfg,
	}

	s := &Server{
		logger: logger,
		engine: eng,
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))

	e.GET("/_health", s.handleHealthCheck)
	e.POST("/evaluate/message", s.handleEvaluateMessage)
	e.POST("/evaluate/profile", s.handleEvaluateProfile)
	s.echo = e

	return s, nil
}

func (s *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}

// Run serves the evaluation API until ctx is canceled or an exit signal
// arrives.
func (s *Server) Run(ctx context.Context, bind string) error {
	errchan := make(chan error, 1)
	go func() {
		s.logger.Info("starting evaluation API", "bind", bind)
		if err := s.echo.Start(bind); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errchan <- err
		}
	}()

	exitSignals := make(chan os.Signal, 1)
	signal.Notify(exitSignals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errchan:
		return err
	case sig := <-exitSignals:
		s.logger.Info("received OS exit signal", "signal", sig)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

type messageRequest struct {
	ChatID    int64  `json:"chat_id"`
	MessageID int64  `json:"message_id"`
	SenderID  int64  `json:"sender_id"`
	ViaBotID  int64  `json:"via_bot_id,omitempty"`
	Text      string `json:"text,omitempty"`
	Entities  []struct {
		Kind string `json:"kind"`
		Text string `json:"text"`
		URL  string `json:"url,omitempty"`
	} `json:"entities,omitempty"`
	Buttons []struct {
		Text string `json:"text"`
		URL  string `json:"url,omitempty"`
	} `json:"buttons,omitempty"`
	Preview *struct {
		URL         string `json:"url"`
		Title       string `json:"title,omitempty"`
		Description string `json:"description,omitempty"`
	} `json:"preview,omitempty"`
	File *struct {
		Size       int64  `json:"size"`
		Ref        string `json:"ref"`
		IsDocument bool   `json:"is_document"`
	} `json:"file,omitempty"`
	Photo string `json:"photo,omitempty"`
}

type profileRequest struct {
	UserID int64  `json:"user_id"`
	Bio    string `json:"bio,omitempty"`
	Photo  string `json:"photo,omitempty"`
}

type evaluationResponse struct {
	Match      bool   `json:"match"`
	Category   string `json:"category,omitempty"`
	ReasonCode int64  `json:"reason_code,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

func entityKind(s string) engine.EntityKind {
	switch s {
	case "url":
		return engine.KindURL
	case "text_url":
		return engine.KindTextURL
	case "mention":
		return engine.KindMention
	}
	return 0
}

func (s *Server) handleEvaluateMessage(c echo.Context) error {
	var req messageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	msg := &engine.MessageContext{
		ChatID:    req.ChatID,
		MessageID: req.MessageID,
		SenderID:  req.SenderID,
		ViaBotID:  req.ViaBotID,
		Text:      req.Text,
		Photo:     platform.MediaRef(req.Photo),
	}
	for _, ent := range req.Entities {
		kind := entityKind(ent.Kind)
		if kind == 0 {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown entity kind %q", ent.Kind))
		}
		msg.Entities = append(msg.Entities, engine.Entity{Kind: kind, Text: ent.Text, URL: ent.URL})
	}
	for _, b := range req.Buttons {
		msg.Buttons = append(msg.Buttons, engine.Button{Text: b.Text, URL: b.URL})
	}
	if req.Preview != nil {
		msg.Preview = &engine.LinkPreview{
			URL:         req.Preview.URL,
			Title:       req.Preview.Title,
			Description: req.Preview.Description,
		}
	}
	if req.File != nil {
		msg.File = &engine.FileMeta{
			Size:       req.File.Size,
			Ref:        platform.MediaRef(req.File.Ref),
			IsDocument: req.File.IsDocument,
		}
	}

	match, err := s.engine.EvaluateMessage(c.Request().Context(), msg)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, matchResponse(match))
}

func (s *Server) handleEvaluateProfile(c echo.Context) error {
	var req profileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	match, err := s.engine.EvaluateProfile(c.Request().Context(), &engine.ProfileContext{
		UserID: req.UserID,
		Bio:    req.Bio,
		Photo:  platform.MediaRef(req.Photo),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, matchResponse(match))
}

func matchResponse(m *blacklist.Match) evaluationResponse {
	if m == nil {
		return evaluationResponse{Match: false}
	}
	return evaluationResponse{
		Match:      true,
		Category:   m.Category.String(),
		ReasonCode: int64(m.Reason),
		Reason:     engine.FormatReason(*m),
	}
}

func (s *Server) handleHealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
