// Package httpapi exposes the game service over JSON HTTP routes and a
// websocket event feed.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/park285/chess-sync/internal/match"
	"github.com/park285/chess-sync/internal/notify"
	"github.com/park285/chess-sync/internal/rules"
	"github.com/park285/chess-sync/pkg/chessdto"
)

const defaultPingInterval = 30 * time.Second

type Options struct {
	// Hub serves the websocket feed. Without it the feed route is absent.
	Hub  *notify.Hub
	Auth *Authenticator
	// Health reports dependency health for /healthz.
	Health func(ctx context.Context) error
	// OriginPatterns are the websocket origins accepted besides same-host.
	OriginPatterns []string
	PingInterval   time.Duration
	Logger         *zap.Logger
}

type Server struct {
	svc    *match.Service
	hub    *notify.Hub
	auth   *Authenticator
	health func(ctx context.Context) error
	opts   Options
	logger *zap.Logger
	engine *gin.Engine
}

func New(svc *match.Service, opts Options) (*Server, error) {
	if svc == nil {
		return nil, errors.New("game service is required")
	}
	if opts.Auth == nil {
		return nil, errors.New("authenticator is required")
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		svc:    svc,
		hub:    opts.Hub,
		auth:   opts.Auth,
		health: opts.Health,
		opts:   opts,
		logger: logger,
	}
	s.engine = s.routes()
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(s.logger))

	engine.GET("/healthz", s.healthz)

	api := engine.Group("/api/games")
	api.Use(s.auth.Middleware())
	{
		api.POST("", s.createGame)
		api.GET("/:id", s.getGame)
		api.GET("/:id/sync", s.syncGame)
		api.GET("/:id/legal", s.legalMoves)
		api.POST("/:id/join", s.lifecycle("join", s.svc.Join))
		api.POST("/:id/moves", s.submitMove)
		api.POST("/:id/resign", s.lifecycle("resign", s.svc.Resign))
		api.POST("/:id/draw", s.lifecycle("draw", s.svc.OfferDraw))
		api.POST("/:id/timeout", s.lifecycle("timeout", s.svc.ClaimTimeout))
		api.POST("/:id/abort", s.lifecycle("abort", s.svc.Abort))
		api.POST("/:id/bot-move", s.playBot)
		if s.hub != nil {
			api.GET("/:id/ws", s.feed)
		}
	}
	return engine
}

func (s *Server) healthz(c *gin.Context) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.health(ctx); err != nil {
			s.logger.Warn("http_health_failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) createGame(c *gin.Context) {
	var req chessdto.CreateGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, "create", badRequest(err))
		return
	}
	g, err := s.svc.Create(c.Request.Context(), match.CreateGame{
		CreatorID:       UserID(c),
		Mode:            match.Mode(req.Mode),
		ColorPreference: match.ColorPreference(req.ColorPreference),
		TimeControl:     match.TimeControl{BaseMs: req.TimeControl.BaseMs, IncrementMs: req.TimeControl.IncrementMs},
		Difficulty:      req.Difficulty,
		InitialFEN:      req.InitialFEN,
	})
	if err != nil {
		s.fail(c, "create", err)
		return
	}
	c.JSON(http.StatusCreated, match.GameDTO(g))
}

func (s *Server) getGame(c *gin.Context) {
	g, err := s.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, "get", err)
		return
	}
	c.JSON(http.StatusOK, match.GameDTO(g))
}

func (s *Server) syncGame(c *gin.Context) {
	view, err := s.svc.Sync(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, "sync", err)
		return
	}
	c.JSON(http.StatusOK, match.SyncDTO(view))
}

func (s *Server) legalMoves(c *gin.Context) {
	square := c.Query("square")
	dests, err := s.svc.LegalMoves(c.Request.Context(), c.Param("id"), square)
	if err != nil {
		s.fail(c, "legal", err)
		return
	}
	out := chessdto.LegalMovesResponse{Square: square, Destinations: make([]string, 0, len(dests))}
	for _, sq := range dests {
		out.Destinations = append(out.Destinations, sq.String())
	}
	c.JSON(http.StatusOK, out)
}

type gameOp func(ctx context.Context, gameID, actorID string) (*match.Game, error)

// lifecycle adapts the status-only operations, which share a shape.
func (s *Server) lifecycle(op string, fn gameOp) gin.HandlerFunc {
	return func(c *gin.Context) {
		g, err := fn(c.Request.Context(), c.Param("id"), UserID(c))
		if err != nil {
			s.fail(c, op, err)
			return
		}
		c.JSON(http.StatusOK, match.GameDTO(g))
	}
}

func (s *Server) submitMove(c *gin.Context) {
	var req chessdto.SubmitMoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, "move", badRequest(err))
		return
	}
	if req.ClientPly == nil {
		s.fail(c, "move", badRequest(errors.New("clientPly is required")))
		return
	}
	mv, err := parseMove(req)
	if err != nil {
		s.fail(c, "move", badRequest(err))
		return
	}
	a, err := s.svc.SubmitMove(c.Request.Context(), match.SubmitMove{
		GameID:     c.Param("id"),
		ActorID:    UserID(c),
		Move:       mv,
		ClaimedPly: *req.ClientPly,
	})
	if err != nil {
		s.fail(c, "move", err)
		return
	}
	c.JSON(http.StatusOK, match.AcceptedDTO(a))
}

func parseMove(req chessdto.SubmitMoveRequest) (rules.MoveRequest, error) {
	var (
		mv  rules.MoveRequest
		err error
	)
	switch {
	case req.UCI != "":
		mv, err = rules.ParseCoordinate(req.UCI)
	case req.From != "" && req.To != "":
		mv, err = rules.NewMoveRequest(req.From, req.To, req.Promotion)
	default:
		err = errors.New("move requires uci or from and to")
	}
	if err != nil {
		return rules.MoveRequest{}, err
	}
	mv.DefaultQueen = req.DefaultQueen
	return mv, nil
}

func (s *Server) playBot(c *gin.Context) {
	a, err := s.svc.PlayBot(c.Request.Context(), c.Param("id"), UserID(c))
	if err != nil {
		s.fail(c, "bot_move", err)
		return
	}
	c.JSON(http.StatusOK, match.AcceptedDTO(a))
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("user_id", UserID(c)),
		}
		if status >= http.StatusInternalServerError {
			logger.Warn("http_request", fields...)
			return
		}
		logger.Debug("http_request", fields...)
	}
}
