package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ideastormhq/ideastorm/internal/config"
	"github.com/ideastormhq/ideastorm/internal/session"
	"github.com/ideastormhq/ideastorm/internal/store"
	"github.com/ideastormhq/ideastorm/internal/ws"
	"github.com/rs/zerolog"
	zerologlog "github.com/rs/zerolog/log"
)

const version = "v0.3.0"

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help message")
		showVersion = flag.Bool("version", false, "Show version information")
		portFlag    = flag.String("port", "", "Port to listen on (overrides PORT env var)")
	)
	flag.BoolVar(showHelp, "h", false, "Show help message (shorthand)")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Parse()

	if *showHelp {
		fmt.Printf(`ideastorm - real-time brainstorm session coordinator

Usage: %s [options]

Options:
  -h, --help      Show this help message
  -v, --version   Show version information
  --port PORT     Port to listen on (default: 8080 or PORT env var)

Environment Variables:
  PORT                 Port to listen on (default: 8080)
  SESSION_TTL          Session lifetime (default: 60m)
  INACTIVITY_TIMEOUT   Expiry after no submissions/heartbeats (default: 15m)
  HEARTBEAT_INTERVAL   Expected participant heartbeat cadence (default: 10s)
  MISSED_HEARTBEATS    Beats missed before Disconnected (default: 3)
  RECONNECT_GRACE      Window to reconnect with the same identity (default: 2m)
  MAX_PARTICIPANTS     Participant cap per session (default: 24)
  EVENT_RETENTION      Events kept for backfill per session (default: 512)
  SUBSCRIBER_QUEUE     Outbound queue bound per subscriber (default: 64)
  DATABASE_PATH        SQLite database path (default: ./ideastorm.db)
`, os.Args[0])
		return
	}

	if *showVersion {
		fmt.Printf("ideastorm %s\n", version)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *portFlag != "" {
		cfg.Port = *portFlag
	}

	// zerolog setup (human-friendly console)
	zerolog.TimeFieldFormat = time.RFC3339
	cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	zerologlog.Logger = zerologlog.Output(cw)
	if cfg.IsDevelopment() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// Gin setup with custom logger (skip /socket.io noise)
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/socket.io") {
			return
		}
		status := c.Writer.Status()
		dur := time.Since(start)
		zerologlog.Info().Str("path", path).Int("status", status).Dur("dur", dur).Msg("http")
	})

	// Healthcheck
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now().UTC()})
	})

	// External collaborator store
	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		zerologlog.Fatal().Err(err).Msg("opening store")
	}
	defer st.Close()
	if err := st.Migrate(); err != nil {
		zerologlog.Fatal().Err(err).Msg("migrating store")
	}

	// Session manager + janitor
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	mgr := session.NewManager(cfg, st, st)
	mgr.Start(ctx)

	// Socket server
	sock := ws.New(mgr, st, cfg)
	io := sock.Mount(r)
	defer io.Close()

	mountAPI(r, mgr, st)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		zerologlog.Info().Str("port", cfg.Port).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerologlog.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	zerologlog.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zerologlog.Error().Err(err).Msg("shutdown failed")
	}
}

// mountAPI exposes the minimal REST surface next to the socket transport:
// session creation for facilitators and code/token resolution for joiners.
func mountAPI(r *gin.Engine, mgr *session.Manager, st *store.Store) {
	type createReq struct {
		ProjectID     string `json:"projectId"`
		FacilitatorID string `json:"facilitatorId"`
		TTLMinutes    int    `json:"ttlMinutes"`
	}

	r.POST("/api/sessions", func(c *gin.Context) {
		var req createReq
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error"})
			return
		}
		allowed, err := st.IsProjectOwnerOrCollaborator(c.Request.Context(), req.FacilitatorID, req.ProjectID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
			return
		}
		if !allowed {
			c.JSON(http.StatusForbidden, gin.H{"error": "unauthorized"})
			return
		}
		info, facilitatorToken, err := mgr.CreateSession(c.Request.Context(),
			req.ProjectID, req.FacilitatorID, time.Duration(req.TTLMinutes)*time.Minute)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": ws.ErrorCode(err)})
			return
		}
		c.JSON(http.StatusOK, gin.H{"session": info, "facilitatorToken": facilitatorToken})
	})

	r.GET("/api/sessions/resolve", func(c *gin.Context) {
		info, err := mgr.ResolveByCode(c.Query("code"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": ws.ErrorCode(err)})
			return
		}
		c.JSON(http.StatusOK, gin.H{"session": info})
	})

	r.GET("/api/sessions/scan/:token", func(c *gin.Context) {
		info, err := mgr.ResolveByScanToken(c.Param("token"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": ws.ErrorCode(err)})
			return
		}
		c.JSON(http.StatusOK, gin.H{"session": info})
	})

	r.GET("/api/sessions/:id/snapshot", func(c *gin.Context) {
		snap, err := mgr.Snapshot(c.Param("id"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": ws.ErrorCode(err)})
			return
		}
		c.JSON(http.StatusOK, snap)
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSessionExpired), errors.Is(err, session.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, session.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, session.ErrValidation), errors.Is(err, session.ErrInvalidProject):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrSessionPaused), errors.Is(err, session.ErrSessionFull):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
