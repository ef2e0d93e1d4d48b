package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
	"github.com/ideastormhq/ideastorm/internal/config"
	"github.com/ideastormhq/ideastorm/internal/session"
	"github.com/rs/zerolog/log"
)

// ConnCtx is what a connection has proven about itself: which session it
// belongs to, the access token backing that claim, and its role. Sub is the
// connection's single live event subscription, if any.
type ConnCtx struct {
	SessionID string
	Token     string
	Role      string // "facilitator" | "participant"
	Sub       *session.Subscription
}

type Server struct {
	mgr      *session.Manager
	projects session.ProjectDirectory
	config   *config.Config
}

func New(mgr *session.Manager, projects session.ProjectDirectory, cfg *config.Config) *Server {
	return &Server{mgr: mgr, projects: projects, config: cfg}
}

// Mount attaches the Socket.IO server with all handlers to the given Gin engine.
func (srv *Server) Mount(r *gin.Engine) *socketio.Server {
	io := socketio.NewServer(nil)

	io.OnConnect("/", func(s socketio.Conn) error {
		s.SetContext(&ConnCtx{})
		log.Info().Str("sid", s.ID()).Msg("socket connected")
		return nil
	})

	// session:create
	io.OnEvent("/", "session:create", func(s socketio.Conn, payload struct {
		ProjectID     string `json:"projectId"`
		FacilitatorID string `json:"facilitatorId"`
		TTLMinutes    int    `json:"ttlMinutes"`
	}) map[string]any {
		allowed, err := srv.projects.IsProjectOwnerOrCollaborator(context.Background(), payload.FacilitatorID, payload.ProjectID)
		if err != nil {
			return srv.err(s, err)
		}
		if !allowed {
			return srv.err(s, session.ErrUnauthorized)
		}
		info, facilitatorToken, err := srv.mgr.CreateSession(context.Background(),
			payload.ProjectID, payload.FacilitatorID, time.Duration(payload.TTLMinutes)*time.Minute)
		if err != nil {
			return srv.err(s, err)
		}
		s.SetContext(&ConnCtx{SessionID: info.ID, Token: facilitatorToken, Role: "facilitator"})
		log.Info().Str("sid", s.ID()).Str("sessionId", info.ID).Str("code", info.Code).Msg("session:create")
		return map[string]any{
			"session":          info,
			"facilitatorToken": facilitatorToken,
		}
	})

	// session:join
	io.OnEvent("/", "session:join", func(s socketio.Conn, payload struct {
		Code string `json:"code"`
		Name string `json:"name"`
	}) map[string]any {
		p, token, err := srv.mgr.Join(payload.Code, payload.Name)
		if err != nil {
			return srv.err(s, err)
		}
		s.SetContext(&ConnCtx{SessionID: p.SessionID, Token: token, Role: "participant"})
		log.Info().Str("sid", s.ID()).Str("sessionId", p.SessionID).Str("participantId", p.ID).Msg("session:join")
		return map[string]any{
			"participant":      p,
			"participantToken": token,
		}
	})

	// session:resume (reconnection with a previously issued token)
	io.OnEvent("/", "session:resume", func(s socketio.Conn, payload struct {
		SessionID string `json:"sessionId"`
		Role      string `json:"role"`
		Token     string `json:"token"`
	}) map[string]any {
		if payload.Role == "participant" {
			p, err := srv.mgr.Heartbeat(payload.SessionID, payload.Token)
			if err != nil {
				return srv.err(s, err)
			}
			s.SetContext(&ConnCtx{SessionID: payload.SessionID, Token: payload.Token, Role: payload.Role})
			log.Info().Str("sid", s.ID()).Str("sessionId", payload.SessionID).Str("participantId", p.ID).Msg("session:resume")
			return map[string]any{"participant": p}
		}
		s.SetContext(&ConnCtx{SessionID: payload.SessionID, Token: payload.Token, Role: "facilitator"})
		log.Info().Str("sid", s.ID()).Str("sessionId", payload.SessionID).Msg("session:resume")
		return map[string]any{"ok": true}
	})

	// session:pause / session:unpause / session:end (facilitator control)
	io.OnEvent("/", "session:pause", func(s socketio.Conn) map[string]any {
		ctx := s.Context().(*ConnCtx)
		if err := srv.mgr.PauseSession(ctx.SessionID, ctx.Token); err != nil {
			return srv.err(s, err)
		}
		log.Info().Str("sessionId", ctx.SessionID).Msg("session:pause")
		return map[string]any{"ok": true}
	})

	io.OnEvent("/", "session:unpause", func(s socketio.Conn) map[string]any {
		ctx := s.Context().(*ConnCtx)
		if err := srv.mgr.ResumeSession(ctx.SessionID, ctx.Token); err != nil {
			return srv.err(s, err)
		}
		log.Info().Str("sessionId", ctx.SessionID).Msg("session:unpause")
		return map[string]any{"ok": true}
	})

	io.OnEvent("/", "session:end", func(s socketio.Conn) map[string]any {
		ctx := s.Context().(*ConnCtx)
		if err := srv.mgr.EndSession(ctx.SessionID, ctx.Token); err != nil {
			return srv.err(s, err)
		}
		log.Info().Str("sessionId", ctx.SessionID).Msg("session:end")
		return map[string]any{"ok": true}
	})

	// session:leave
	io.OnEvent("/", "session:leave", func(s socketio.Conn) map[string]any {
		ctx := s.Context().(*ConnCtx)
		if err := srv.mgr.Leave(ctx.SessionID, ctx.Token); err != nil {
			return srv.err(s, err)
		}
		srv.closeSubscription(ctx)
		log.Info().Str("sessionId", ctx.SessionID).Msg("session:leave")
		return map[string]any{"ok": true}
	})

	// idea:submit
	io.OnEvent("/", "idea:submit", func(s socketio.Conn, payload struct {
		Content string `json:"content"`
	}) map[string]any {
		ctx := s.Context().(*ConnCtx)
		idea, err := srv.mgr.SubmitIdea(context.Background(), ctx.SessionID, ctx.Token, payload.Content)
		if err != nil {
			return srv.err(s, err)
		}
		log.Info().Str("sessionId", ctx.SessionID).Str("ideaId", idea.ID).Uint64("seq", idea.SequenceNumber).Msg("idea:submit")
		return map[string]any{"idea": idea}
	})

	// idea:update
	io.OnEvent("/", "idea:update", func(s socketio.Conn, payload struct {
		IdeaID  string `json:"ideaId"`
		Content string `json:"content"`
	}) map[string]any {
		ctx := s.Context().(*ConnCtx)
		idea, err := srv.mgr.UpdateIdea(ctx.SessionID, ctx.Token, payload.IdeaID, payload.Content)
		if err != nil {
			return srv.err(s, err)
		}
		log.Info().Str("sessionId", ctx.SessionID).Str("ideaId", idea.ID).Msg("idea:update")
		return map[string]any{"idea": idea}
	})

	// idea:delete
	io.OnEvent("/", "idea:delete", func(s socketio.Conn, payload struct {
		IdeaID string `json:"ideaId"`
	}) map[string]any {
		ctx := s.Context().(*ConnCtx)
		if err := srv.mgr.DeleteIdea(ctx.SessionID, ctx.Token, payload.IdeaID); err != nil {
			return srv.err(s, err)
		}
		log.Info().Str("sessionId", ctx.SessionID).Str("ideaId", payload.IdeaID).Msg("idea:delete")
		return map[string]any{"ok": true}
	})

	// presence:heartbeat
	io.OnEvent("/", "presence:heartbeat", func(s socketio.Conn) map[string]any {
		ctx := s.Context().(*ConnCtx)
		p, err := srv.mgr.Heartbeat(ctx.SessionID, ctx.Token)
		if err != nil {
			return srv.err(s, err)
		}
		return map[string]any{"participant": p}
	})

	// session:subscribe: the client states what it already has (its cursor).
	// The reply is either a contiguous backlog or a full snapshot, after which
	// events stream in order on "session:event".
	io.OnEvent("/", "session:subscribe", func(s socketio.Conn, payload struct {
		Cursor uint64 `json:"cursor"`
	}) map[string]any {
		ctx := s.Context().(*ConnCtx)
		srv.closeSubscription(ctx)
		sub, err := srv.mgr.Subscribe(ctx.SessionID, payload.Cursor)
		if err != nil {
			return srv.err(s, err)
		}
		ctx.Sub = sub
		go func() {
			for ev := range sub.Events {
				s.Emit("session:event", ev)
			}
			// Channel closed: overflow or session end. Tell the client to
			// resubscribe with a resync.
			s.Emit("session:resync", map[string]any{"sessionId": ctx.SessionID})
		}()
		log.Info().Str("sid", s.ID()).Str("sessionId", ctx.SessionID).Uint64("cursor", payload.Cursor).Str("mode", sub.Backfill.Mode).Msg("session:subscribe")
		return map[string]any{"backfill": sub.Backfill}
	})

	io.OnError("/", func(s socketio.Conn, e error) {
		log.Error().Str("sid", s.ID()).Err(e).Msg("socket error")
	})

	io.OnDisconnect("/", func(s socketio.Conn, reason string) {
		if ctx, ok := s.Context().(*ConnCtx); ok {
			srv.closeSubscription(ctx)
		}
		log.Info().Str("sid", s.ID()).Str("reason", reason).Msg("socket disconnected")
	})

	go io.Serve()

	r.GET("/socket.io/*any", gin.WrapH(io))
	r.POST("/socket.io/*any", gin.WrapH(io))

	r.OPTIONS("/socket.io/*any", func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		c.Status(http.StatusNoContent)
	})

	return io
}

// closeSubscription drops the connection's current event stream, if any.
// Only this connection's stream is affected.
func (srv *Server) closeSubscription(ctx *ConnCtx) {
	if ctx.Sub != nil {
		ctx.Sub.Close()
		ctx.Sub = nil
	}
}

func (srv *Server) err(s socketio.Conn, err error) map[string]any {
	code := ErrorCode(err)
	s.Emit("error", map[string]any{"code": code, "message": err.Error()})
	return map[string]any{"error": code, "message": err.Error()}
}

// ErrorCode maps the session error taxonomy onto wire codes so clients can
// tell whether to retry, wait, or give up.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return "not_found"
	case errors.Is(err, session.ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, session.ErrSessionClosed):
		return "session_closed"
	case errors.Is(err, session.ErrAlreadyPaused):
		return "already_paused"
	case errors.Is(err, session.ErrNotPaused):
		return "not_paused"
	case errors.Is(err, session.ErrSessionPaused):
		return "session_paused"
	case errors.Is(err, session.ErrSessionFull):
		return "session_full"
	case errors.Is(err, session.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, session.ErrInvalidProject):
		return "invalid_project"
	case errors.Is(err, session.ErrCodeSpaceExhausted):
		return "code_space_exhausted"
	case errors.Is(err, session.ErrValidation):
		return "validation_error"
	case errors.Is(err, session.ErrParticipantNotFound):
		return "participant_not_found"
	case errors.Is(err, session.ErrIdeaNotFound):
		return "idea_not_found"
	default:
		return "internal"
	}
}
