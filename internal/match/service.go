package match

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/chess-sync/internal/replay"
	"github.com/park285/chess-sync/internal/rules"
)

const (
	defaultMaxCASRetries = 8
	defaultSideEffectTTL = 5 * time.Second
)

type Config struct {
	// Difficulties lists the accepted bot difficulty names. Empty accepts any.
	Difficulties      []string
	DefaultDifficulty string
	// MaxCASRetries bounds retries of status-only writes (resign, draw,
	// timeout, abort) when a concurrent move bumps the ply.
	MaxCASRetries int
	// SideEffectTimeout bounds publish and archive calls.
	SideEffectTimeout time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Service is the authoritative game state machine. It keeps no state
// between calls: every decision re-reads the store and replays the log.
type Service struct {
	store     Store
	publisher Publisher
	archiver  Archiver
	bot       MoveSource
	cfg       Config
	allowed   map[string]struct{}
	logger    *zap.Logger
}

func NewService(store Store, publisher Publisher, archiver Archiver, bot MoveSource, cfg Config, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("game store is required")
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if cfg.MaxCASRetries <= 0 {
		cfg.MaxCASRetries = defaultMaxCASRetries
	}
	if cfg.SideEffectTimeout <= 0 {
		cfg.SideEffectTimeout = defaultSideEffectTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]struct{})
	for _, d := range cfg.Difficulties {
		if n := normalizeDifficulty(d); n != "" {
			allowed[n] = struct{}{}
		}
	}
	cfg.DefaultDifficulty = normalizeDifficulty(cfg.DefaultDifficulty)
	if cfg.DefaultDifficulty != "" && len(allowed) > 0 {
		if _, ok := allowed[cfg.DefaultDifficulty]; !ok {
			return nil, fmt.Errorf("default difficulty %q is not a known difficulty", cfg.DefaultDifficulty)
		}
	}
	return &Service{
		store:     store,
		publisher: publisher,
		archiver:  archiver,
		bot:       bot,
		cfg:       cfg,
		allowed:   allowed,
		logger:    logger,
	}, nil
}

func normalizeDifficulty(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func (s *Service) now() time.Time { return s.cfg.Now().UTC() }

// ColorPreference selects the creator's seat.
type ColorPreference string

const (
	PreferWhite  ColorPreference = "white"
	PreferBlack  ColorPreference = "black"
	PreferRandom ColorPreference = "random"
)

type CreateGame struct {
	CreatorID       string
	Mode            Mode
	ColorPreference ColorPreference
	TimeControl     TimeControl
	Difficulty      string
	// InitialFEN defaults to the standard starting position.
	InitialFEN string
}

// Create opens a new game. Bot games start active with the engine holding
// the open seat; PvP games wait for a second player.
func (s *Service) Create(ctx context.Context, req CreateGame) (*Game, error) {
	creator := strings.TrimSpace(req.CreatorID)
	if creator == "" {
		return nil, badRequest("creator required")
	}
	if req.Mode != ModeBot && req.Mode != ModePvP {
		return nil, badRequest("invalid mode %q", req.Mode)
	}
	if req.TimeControl.BaseMs < 0 || req.TimeControl.IncrementMs < 0 {
		return nil, badRequest("time control must not be negative")
	}
	initial := strings.TrimSpace(req.InitialFEN)
	if initial == "" {
		initial = rules.StartFEN
	}
	pos, err := rules.ParseFEN(initial)
	if err != nil {
		return nil, reject(ReasonBadRequest, err)
	}
	if !pos.HasLegalMoves() {
		return nil, badRequest("initial position is already terminal")
	}

	seat := rules.White
	switch req.ColorPreference {
	case PreferWhite, "":
	case PreferBlack:
		seat = rules.Black
	case PreferRandom:
		if n, _ := rand.Int(rand.Reader, big.NewInt(2)); n != nil && n.Int64() == 1 {
			seat = rules.Black
		}
	default:
		return nil, badRequest("invalid color preference %q", req.ColorPreference)
	}

	now := s.now()
	g := &Game{
		ID:          uuid.NewString(),
		CreatorID:   creator,
		Mode:        req.Mode,
		Status:      StatusWaiting,
		InitialFEN:  pos.FEN(),
		CurrentFEN:  pos.FEN(),
		Result:      ResultNone,
		TimeControl: req.TimeControl,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if seat == rules.White {
		g.WhiteID = creator
	} else {
		g.BlackID = creator
	}

	if req.Mode == ModeBot {
		diff := normalizeDifficulty(req.Difficulty)
		if diff == "" {
			diff = s.cfg.DefaultDifficulty
		}
		if len(s.allowed) > 0 {
			if _, ok := s.allowed[diff]; !ok {
				return nil, badRequest("unknown difficulty %q", req.Difficulty)
			}
		}
		g.Difficulty = diff
		g.Start(now)
	}

	if err := s.store.CreateGame(ctx, g); err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}
	s.logger.Info("match_created",
		zap.String("game_id", g.ID),
		zap.String("mode", string(g.Mode)),
		zap.String("creator_id", creator),
		zap.String("seat", string(seat)),
		zap.Int64("base_ms", g.TimeControl.BaseMs),
		zap.String("difficulty", g.Difficulty),
	)
	s.publishGame(ctx, g)
	return g, nil
}

// Get returns the stored game row.
func (s *Service) Get(ctx context.Context, gameID string) (*Game, error) {
	return s.load(ctx, gameID)
}

// Moves returns the move log in ply order.
func (s *Service) Moves(ctx context.Context, gameID string) ([]MoveRecord, error) {
	if _, err := s.load(ctx, gameID); err != nil {
		return nil, err
	}
	moves, err := s.store.ListMoves(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("list moves: %w", err)
	}
	return moves, nil
}

// SyncView is everything a reconnecting client needs to rebuild its state.
type SyncView struct {
	Game     *Game
	Moves    []MoveRecord
	Ply      int
	FEN      string
	Turn     rules.Color
	Degraded bool
}

// Sync returns the authoritative state derived from the move log.
func (s *Service) Sync(ctx context.Context, gameID string) (*SyncView, error) {
	g, err := s.load(ctx, gameID)
	if err != nil {
		return nil, err
	}
	st, err := s.reconstruct(ctx, g)
	if err != nil {
		return nil, err
	}
	return &SyncView{
		Game:     g,
		Moves:    st.moves,
		Ply:      st.Ply,
		FEN:      st.Position.FEN(),
		Turn:     st.Position.Turn(),
		Degraded: st.Degraded,
	}, nil
}

// LegalMoves lists destinations from square in the authoritative position.
func (s *Service) LegalMoves(ctx context.Context, gameID string, square string) ([]rules.Square, error) {
	sq, err := rules.ParseSquare(square)
	if err != nil {
		return nil, reject(ReasonBadRequest, err)
	}
	g, err := s.load(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.Status != StatusActive {
		return []rules.Square{}, nil
	}
	st, err := s.reconstruct(ctx, g)
	if err != nil {
		return nil, err
	}
	return st.Position.LegalMovesFrom(sq), nil
}

func (s *Service) load(ctx context.Context, gameID string) (*Game, error) {
	id := strings.TrimSpace(gameID)
	if id == "" {
		return nil, ErrNotFound
	}
	g, err := s.store.GetGame(ctx, id)
	if errors.Is(err, ErrStoreNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get game %s: %w", id, err)
	}
	return g, nil
}

type replayed struct {
	replay.Result
	moves []MoveRecord
}

func (s *Service) reconstruct(ctx context.Context, g *Game) (*replayed, error) {
	moves, err := s.store.ListMoves(ctx, g.ID)
	if err != nil {
		return nil, fmt.Errorf("list moves %s: %w", g.ID, err)
	}
	steps := make([]replay.Step, len(moves))
	for i, mv := range moves {
		steps[i] = replay.Step{Ply: mv.Ply, UCI: mv.UCI}
	}
	res, err := replay.Reconstruct(g.InitialFEN, steps, g.CurrentFEN, g.Ply)
	if err != nil {
		return nil, fmt.Errorf("reconstruct %s: %w", g.ID, err)
	}
	if res.Degraded {
		s.logger.Warn("match_history_degraded",
			zap.String("game_id", g.ID),
			zap.Int("stored_moves", len(moves)),
			zap.Int("row_ply", g.Ply),
			zap.Error(res.Cause),
		)
	} else if res.CacheStale {
		s.logger.Warn("match_cache_stale",
			zap.String("game_id", g.ID),
			zap.String("cached_fen", g.CurrentFEN),
			zap.String("replayed_fen", res.Position.FEN()),
		)
	}
	return &replayed{Result: res, moves: moves}, nil
}

func (s *Service) sideEffectContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.cfg.SideEffectTimeout)
}

func (s *Service) publishGame(ctx context.Context, g *Game) {
	cctx, cancel := s.sideEffectContext(ctx)
	defer cancel()
	if err := s.publisher.PublishGame(cctx, g); err != nil {
		s.logger.Warn("match_publish_game_error", zap.String("game_id", g.ID), zap.Error(err))
	}
}

func (s *Service) publishMove(ctx context.Context, gameID string, mv *MoveRecord) {
	cctx, cancel := s.sideEffectContext(ctx)
	defer cancel()
	if err := s.publisher.PublishMove(cctx, gameID, mv); err != nil {
		s.logger.Warn("match_publish_move_error", zap.String("game_id", gameID), zap.Int("ply", mv.Ply), zap.Error(err))
	}
}

// persistIfFinal hands a finished game to the archiver, if one is attached.
func (s *Service) persistIfFinal(ctx context.Context, g *Game) {
	if s.archiver == nil || g == nil || g.Status != StatusFinished {
		return
	}
	cctx, cancel := s.sideEffectContext(ctx)
	defer cancel()
	moves, err := s.store.ListMoves(cctx, g.ID)
	if err == nil {
		err = s.archiver.SaveFinished(cctx, g, moves)
	}
	if err != nil {
		s.logger.Error("match_archive_error", zap.String("game_id", g.ID), zap.Error(err))
		return
	}
	s.logger.Info("match_archived",
		zap.String("game_id", g.ID),
		zap.String("result", string(g.Result)),
		zap.String("termination", string(g.Termination)),
	)
}
