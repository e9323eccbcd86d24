package match_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/chess-sync/internal/match"
	"github.com/park285/chess-sync/internal/replay"
	"github.com/park285/chess-sync/internal/rules"
	"github.com/park285/chess-sync/internal/store/memstore"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingArchiver struct {
	mu    sync.Mutex
	saved []string
}

func (a *recordingArchiver) SaveFinished(_ context.Context, g *match.Game, _ []match.MoveRecord) error {
	a.mu.Lock()
	a.saved = append(a.saved, g.ID)
	a.mu.Unlock()
	return nil
}

func (a *recordingArchiver) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.saved)
}

type scriptedBot struct{ uci string }

func (b scriptedBot) BestMove(context.Context, string, string) (string, error) { return b.uci, nil }

type harness struct {
	svc     *match.Service
	store   *memstore.Store
	clock   *fakeClock
	archive *recordingArchiver
}

func newHarness(t *testing.T, bot match.MoveSource) *harness {
	t.Helper()
	h := &harness{
		store:   memstore.New(),
		clock:   &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
		archive: &recordingArchiver{},
	}
	svc, err := match.NewService(h.store, nil, h.archive, bot, match.Config{
		Difficulties:      []string{"easy", "medium"},
		DefaultDifficulty: "medium",
		Now:               h.clock.Now,
	}, nil)
	require.NoError(t, err)
	h.svc = svc
	return h
}

// pvpGame returns an active game with alice as white and bob as black.
func (h *harness) pvpGame(t *testing.T, tc match.TimeControl) *match.Game {
	t.Helper()
	ctx := context.Background()
	g, err := h.svc.Create(ctx, match.CreateGame{CreatorID: "alice", Mode: match.ModePvP, ColorPreference: match.PreferWhite, TimeControl: tc})
	require.NoError(t, err)
	require.Equal(t, match.StatusWaiting, g.Status)
	g, err = h.svc.Join(ctx, g.ID, "bob")
	require.NoError(t, err)
	require.Equal(t, match.StatusActive, g.Status)
	return g
}

func (h *harness) move(t *testing.T, gameID, actor, uci string, ply int) (*match.Accepted, error) {
	t.Helper()
	req, err := rules.ParseCoordinate(uci)
	require.NoError(t, err)
	return h.svc.SubmitMove(context.Background(), match.SubmitMove{GameID: gameID, ActorID: actor, Move: req, ClaimedPly: ply})
}

// playAll alternates alice and bob starting with white.
func (h *harness) playAll(t *testing.T, gameID string, moves ...string) *match.Accepted {
	t.Helper()
	var last *match.Accepted
	for i, m := range moves {
		actor := "alice"
		if i%2 == 1 {
			actor = "bob"
		}
		a, err := h.move(t, gameID, actor, m, i)
		require.NoError(t, err, m)
		last = a
	}
	return last
}

func requireReason(t *testing.T, err error, want match.Reason) *match.ReasonError {
	t.Helper()
	require.Error(t, err)
	re, ok := match.ReasonOf(err)
	require.True(t, ok, "expected reason error, got %v", err)
	require.Equal(t, want, re.Reason)
	return re
}

func TestSubmitMove_OpeningMoveAtPlyZero(t *testing.T) {
	h := newHarness(t, nil)
	g := h.pvpGame(t, match.TimeControl{})

	a, err := h.move(t, g.ID, "alice", "e2e4", 0)
	require.NoError(t, err)
	assert.Equal(t, match.StatusActive, a.Game.Status)
	assert.Equal(t, 1, a.Game.Ply)
	assert.Equal(t, 1, a.Move.Ply)
	assert.Equal(t, "e2e4", a.Move.UCI)
	assert.Equal(t, "e4", a.Move.SAN)
	assert.Equal(t, "1. e4", a.Game.PGN)
	assert.Equal(t, match.ResultNone, a.Game.Result)
	assert.Empty(t, a.Game.Termination)
	assert.False(t, a.Degraded)

	stored, err := h.svc.Get(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Game.CurrentFEN, stored.CurrentFEN)
}

func TestSubmitMove_StalePlyIsOutOfSync(t *testing.T) {
	h := newHarness(t, nil)
	g := h.pvpGame(t, match.TimeControl{})
	first, err := h.move(t, g.ID, "alice", "e2e4", 0)
	require.NoError(t, err)

	_, err = h.move(t, g.ID, "bob", "e7e5", 0)
	re := requireReason(t, err, match.ReasonOutOfSync)
	assert.True(t, errors.Is(err, match.ErrOutOfSync))
	assert.Equal(t, 1, re.Ply)
	assert.Equal(t, first.Game.CurrentFEN, re.FEN)

	moves, err := h.svc.Moves(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Len(t, moves, 1)
}

func TestSubmitMove_RetryAfterLandingIsOutOfSync(t *testing.T) {
	h := newHarness(t, nil)
	g := h.pvpGame(t, match.TimeControl{})
	_, err := h.move(t, g.ID, "alice", "e2e4", 0)
	require.NoError(t, err)

	_, err = h.move(t, g.ID, "alice", "e2e4", 0)
	re := requireReason(t, err, match.ReasonOutOfSync)
	assert.Equal(t, 1, re.Ply)
}

func TestSubmitMove_FoolsMate(t *testing.T) {
	h := newHarness(t, nil)
	g := h.pvpGame(t, match.TimeControl{})

	a := h.playAll(t, g.ID, "f2f3", "e7e5", "g2g4", "d8h4")
	assert.Equal(t, match.StatusFinished, a.Game.Status)
	assert.Equal(t, match.ResultBlackWins, a.Game.Result)
	assert.Equal(t, match.TerminationCheckmate, a.Game.Termination)
	require.NotNil(t, a.Game.EndedAt)
	assert.Contains(t, a.Game.PGN, "1. f3 e5 2. g4 Qh4")
	assert.Equal(t, 1, h.archive.count())

	_, err := h.move(t, g.ID, "alice", "e2e4", 4)
	requireReason(t, err, match.ReasonGameNotActive)
}

func TestSubmitMove_ThreefoldRepetitionDraws(t *testing.T) {
	h := newHarness(t, nil)
	g := h.pvpGame(t, match.TimeControl{})

	a := h.playAll(t, g.ID, "g1f3", "g8f6", "f3g1", "f6g8", "g1f3", "g8f6", "f3g1", "f6g8")
	assert.Equal(t, match.StatusFinished, a.Game.Status)
	assert.Equal(t, match.ResultDraw, a.Game.Result)
	assert.Equal(t, match.TerminationThreefoldRepetition, a.Game.Termination)
}

func TestSubmitMove_ValidationOrder(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.move(t, "missing", "alice", "e2e4", 0)
	requireReason(t, err, match.ReasonNotFound)

	waiting, err := h.svc.Create(ctx, match.CreateGame{CreatorID: "alice", Mode: match.ModePvP})
	require.NoError(t, err)
	_, err = h.move(t, waiting.ID, "alice", "e2e4", 0)
	requireReason(t, err, match.ReasonGameNotActive)

	g := h.pvpGame(t, match.TimeControl{})
	_, err = h.move(t, g.ID, "mallory", "e2e4", 0)
	requireReason(t, err, match.ReasonNotParticipant)

	_, err = h.move(t, g.ID, "bob", "e7e5", 0)
	requireReason(t, err, match.ReasonNotYourTurn)

	_, err = h.move(t, g.ID, "alice", "e2e4", 3)
	requireReason(t, err, match.ReasonOutOfSync)

	_, err = h.move(t, g.ID, "alice", "e2e5", 0)
	requireReason(t, err, match.ReasonIllegalMove)
	assert.ErrorIs(t, err, rules.ErrIllegalMove)

	moves, err := h.svc.Moves(ctx, g.ID)
	require.NoError(t, err)
	assert.Empty(t, moves)
}

func TestSubmitMove_ConcurrentExactlyOneWinner(t *testing.T) {
	h := newHarness(t, nil)
	g := h.pvpGame(t, match.TimeControl{})

	candidates := []string{"e2e4", "d2d4", "c2c4", "g1f3", "b1c3", "f2f4", "a2a3", "h2h3"}
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		stale    int
	)
	for _, uci := range candidates {
		wg.Add(1)
		go func(uci string) {
			defer wg.Done()
			req, _ := rules.ParseCoordinate(uci)
			_, err := h.svc.SubmitMove(context.Background(), match.SubmitMove{GameID: g.ID, ActorID: "alice", Move: req, ClaimedPly: 0})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, match.ErrOutOfSync):
				stale++
			default:
				t.Errorf("unexpected error for %s: %v", uci, err)
			}
		}(uci)
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, len(candidates)-1, stale)
	moves, err := h.svc.Moves(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Len(t, moves, 1)
}

func TestSubmitMove_PlyContiguityAndTurnAlternation(t *testing.T) {
	h := newHarness(t, nil)
	g := h.pvpGame(t, match.TimeControl{})
	h.playAll(t, g.ID, "e2e4", "e7e5", "g1f3", "b8c6", "f1b5", "a7a6", "e1g1")

	ctx := context.Background()
	moves, err := h.svc.Moves(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, moves, 7)
	turn := rules.Black
	for i, mv := range moves {
		assert.Equal(t, i+1, mv.Ply)
		pos, err := rules.ParseFEN(mv.FENAfter)
		require.NoError(t, err)
		assert.Equal(t, turn, pos.Turn(), "ply %d", mv.Ply)
		turn = turn.Other()
	}

	stored, err := h.svc.Get(ctx, g.ID)
	require.NoError(t, err)
	steps := make([]replay.Step, len(moves))
	for i, mv := range moves {
		steps[i] = replay.Step{Ply: mv.Ply, UCI: mv.UCI}
	}
	res, err := replay.Reconstruct(stored.InitialFEN, steps, stored.CurrentFEN, stored.Ply)
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.False(t, res.CacheStale)
	assert.Equal(t, stored.CurrentFEN, res.Position.FEN())
	assert.Equal(t, "1. e4 e5 2. Nf3 Nc6 3. Bb5 a6 4. O-O", stored.PGN)
}

func TestSubmitMove_DegradedHistory(t *testing.T) {
	h := newHarness(t, nil)
	g := h.pvpGame(t, match.TimeControl{})
	_, err := h.move(t, g.ID, "alice", "e2e4", 0)
	require.NoError(t, err)

	h.store.Corrupt(g.ID, []match.MoveRecord{{GameID: g.ID, Ply: 1, UCI: "e2e5"}})

	a, err := h.move(t, g.ID, "bob", "e7e5", 99)
	require.NoError(t, err)
	assert.True(t, a.Degraded)
	assert.Equal(t, 2, a.Move.Ply)
	assert.Equal(t, 2, a.Game.Ply)

	view, err := h.svc.Sync(context.Background(), g.ID)
	require.NoError(t, err)
	assert.True(t, view.Degraded)
	assert.Equal(t, rules.White, view.Turn)
}

func TestResign_Idempotent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	g := h.pvpGame(t, match.TimeControl{})
	_, err := h.move(t, g.ID, "alice", "e2e4", 0)
	require.NoError(t, err)

	first, err := h.svc.Resign(ctx, g.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, match.StatusFinished, first.Status)
	assert.Equal(t, match.ResultBlackWins, first.Result)
	assert.Equal(t, match.TerminationResign, first.Termination)

	second, err := h.svc.Resign(ctx, g.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, first.Result, second.Result)
	assert.Equal(t, first.Termination, second.Termination)
	assert.Equal(t, first.Ply, second.Ply)

	moves, err := h.svc.Moves(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, moves, 1)
	assert.Equal(t, 1, h.archive.count())

	_, err = h.svc.Resign(ctx, g.ID, "mallory")
	requireReason(t, err, match.ReasonNotParticipant)
}

func TestResign_RequiresActiveGame(t *testing.T) {
	h := newHarness(t, nil)
	g, err := h.svc.Create(context.Background(), match.CreateGame{CreatorID: "alice", Mode: match.ModePvP})
	require.NoError(t, err)
	_, err = h.svc.Resign(context.Background(), g.ID, "alice")
	requireReason(t, err, match.ReasonGameNotActive)
}

func TestJoin(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	g, err := h.svc.Create(ctx, match.CreateGame{CreatorID: "alice", Mode: match.ModePvP, ColorPreference: match.PreferBlack})
	require.NoError(t, err)
	assert.Equal(t, "alice", g.BlackID)

	again, err := h.svc.Join(ctx, g.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, match.StatusWaiting, again.Status)

	joined, err := h.svc.Join(ctx, g.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", joined.WhiteID)
	assert.Equal(t, match.StatusActive, joined.Status)
	require.NotNil(t, joined.StartedAt)

	_, err = h.svc.Join(ctx, g.ID, "carol")
	requireReason(t, err, match.ReasonGameFull)

	_, err = h.svc.Join(ctx, "missing", "carol")
	requireReason(t, err, match.ReasonNotFound)
}

func TestJoin_ConcurrentThirdParties(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	g, err := h.svc.Create(ctx, match.CreateGame{CreatorID: "alice", Mode: match.ModePvP})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, who := range []string{"bob", "carol"} {
		wg.Add(1)
		go func(i int, who string) {
			defer wg.Done()
			_, errs[i] = h.svc.Join(ctx, g.ID, who)
		}(i, who)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		assert.ErrorIs(t, err, match.ErrGameFull)
	}
	assert.Equal(t, 1, won)
}

func TestBotGame_ControllerMovesForEngine(t *testing.T) {
	h := newHarness(t, scriptedBot{uci: "e7e5"})
	ctx := context.Background()
	g, err := h.svc.Create(ctx, match.CreateGame{CreatorID: "alice", Mode: match.ModeBot, ColorPreference: match.PreferWhite})
	require.NoError(t, err)
	assert.Equal(t, match.StatusActive, g.Status)
	assert.Equal(t, "medium", g.Difficulty)
	assert.Equal(t, rules.Black, g.BotColor())

	_, err = h.svc.PlayBot(ctx, g.ID, "alice")
	requireReason(t, err, match.ReasonNotYourTurn)

	_, err = h.move(t, g.ID, "alice", "e2e4", 0)
	require.NoError(t, err)

	_, err = h.svc.PlayBot(ctx, g.ID, "mallory")
	requireReason(t, err, match.ReasonNotParticipant)

	a, err := h.svc.PlayBot(ctx, g.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "e7e5", a.Move.UCI)
	assert.Equal(t, 2, a.Game.Ply)

	_, err = h.svc.Join(ctx, g.ID, "bob")
	requireReason(t, err, match.ReasonGameNotActive)
}

func TestBotGame_EngineMoveIsValidated(t *testing.T) {
	h := newHarness(t, scriptedBot{uci: "e2e4"})
	ctx := context.Background()
	g, err := h.svc.Create(ctx, match.CreateGame{CreatorID: "alice", Mode: match.ModeBot, ColorPreference: match.PreferBlack, Difficulty: "Easy"})
	require.NoError(t, err)
	assert.Equal(t, "easy", g.Difficulty)

	a, err := h.svc.PlayBot(ctx, g.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, a.Game.Ply)

	_, err = h.svc.PlayBot(ctx, g.ID, "alice")
	requireReason(t, err, match.ReasonNotYourTurn)

	h2 := newHarness(t, scriptedBot{uci: "e2e5"})
	g2, err := h2.svc.Create(ctx, match.CreateGame{CreatorID: "alice", Mode: match.ModeBot, ColorPreference: match.PreferBlack})
	require.NoError(t, err)
	_, err = h2.svc.PlayBot(ctx, g2.ID, "alice")
	requireReason(t, err, match.ReasonIllegalMove)
}

func TestCreate_Validation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	cases := []match.CreateGame{
		{CreatorID: "", Mode: match.ModePvP},
		{CreatorID: "alice", Mode: "blitz"},
		{CreatorID: "alice", Mode: match.ModeBot, Difficulty: "grandmaster"},
		{CreatorID: "alice", Mode: match.ModePvP, ColorPreference: "green"},
		{CreatorID: "alice", Mode: match.ModePvP, TimeControl: match.TimeControl{BaseMs: -1}},
		{CreatorID: "alice", Mode: match.ModePvP, InitialFEN: "not a fen"},
		{CreatorID: "alice", Mode: match.ModePvP, InitialFEN: "7k/5Q2/6K1/8/8/8/8/8 b - - 0 1"},
	}
	for _, c := range cases {
		_, err := h.svc.Create(ctx, c)
		requireReason(t, err, match.ReasonBadRequest)
	}

	g, err := h.svc.Create(ctx, match.CreateGame{CreatorID: "alice", Mode: match.ModePvP, ColorPreference: match.PreferRandom})
	require.NoError(t, err)
	assert.Equal(t, rules.StartFEN, g.InitialFEN)
	assert.Equal(t, match.ResultNone, g.Result)
	assert.True(t, g.WhiteID == "alice" || g.BlackID == "alice")
}

func TestCreate_CastlingNeedsKingAndRookAtHome(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	g, err := h.svc.Create(ctx, match.CreateGame{
		CreatorID:  "alice",
		Mode:       match.ModePvP,
		InitialFEN: "r3k2r/pppppppp/8/8/8/8/PPPPPPPP/R3K3 w KQkq - 0 1",
	})
	require.NoError(t, err)
	assert.Equal(t, "r3k2r/pppppppp/8/8/8/8/PPPPPPPP/R3K3 w Qkq - 0 1", g.InitialFEN)
	_, err = h.svc.Join(ctx, g.ID, "bob")
	require.NoError(t, err)

	_, err = h.move(t, g.ID, "alice", "e1g1", 0)
	requireReason(t, err, match.ReasonIllegalMove)

	a, err := h.move(t, g.ID, "alice", "e1c1", 0)
	require.NoError(t, err)
	assert.Equal(t, "O-O-O", a.Move.SAN)
}

func TestLegalMoves(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	g := h.pvpGame(t, match.TimeControl{})

	dests, err := h.svc.LegalMoves(ctx, g.ID, "e2")
	require.NoError(t, err)
	var got []string
	for _, sq := range dests {
		got = append(got, sq.String())
	}
	assert.Equal(t, []string{"e3", "e4"}, got)

	_, err = h.svc.LegalMoves(ctx, g.ID, "z9")
	requireReason(t, err, match.ReasonBadRequest)
}

func TestClocks(t *testing.T) {
	h := newHarness(t, nil)
	g := h.pvpGame(t, match.TimeControl{BaseMs: 60_000, IncrementMs: 2_000})
	assert.Equal(t, int64(60_000), g.WhiteClockMs)

	h.clock.Advance(10 * time.Second)
	a, err := h.move(t, g.ID, "alice", "e2e4", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(52_000), a.Game.WhiteClockMs)
	assert.Equal(t, int64(60_000), a.Game.BlackClockMs)
}

func TestClaimTimeout(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	g := h.pvpGame(t, match.TimeControl{BaseMs: 60_000})

	h.clock.Advance(30 * time.Second)
	_, err := h.svc.ClaimTimeout(ctx, g.ID, "bob")
	requireReason(t, err, match.ReasonClockRunning)

	h.clock.Advance(31 * time.Second)
	_, err = h.svc.ClaimTimeout(ctx, g.ID, "mallory")
	requireReason(t, err, match.ReasonNotParticipant)

	done, err := h.svc.ClaimTimeout(ctx, g.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, match.StatusFinished, done.Status)
	assert.Equal(t, match.ResultBlackWins, done.Result)
	assert.Equal(t, match.TerminationTimeout, done.Termination)
	assert.Zero(t, done.WhiteClockMs)

	untimed := h.pvpGame(t, match.TimeControl{})
	_, err = h.svc.ClaimTimeout(ctx, untimed.ID, "bob")
	requireReason(t, err, match.ReasonNoClock)
}

func TestClaimTimeout_DrawWithoutMatingMaterial(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	g, err := h.svc.Create(ctx, match.CreateGame{
		CreatorID:   "alice",
		Mode:        match.ModePvP,
		TimeControl: match.TimeControl{BaseMs: 1_000},
		InitialFEN:  "4k3/8/8/8/8/8/4P3/4K3 w - - 0 1",
	})
	require.NoError(t, err)
	_, err = h.svc.Join(ctx, g.ID, "bob")
	require.NoError(t, err)

	h.clock.Advance(2 * time.Second)
	done, err := h.svc.ClaimTimeout(ctx, g.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, match.ResultDraw, done.Result)
	assert.Equal(t, match.TerminationTimeout, done.Termination)
}

func TestClaimTimeout_LoneKnightWinsAgainstPawns(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	g, err := h.svc.Create(ctx, match.CreateGame{
		CreatorID:   "alice",
		Mode:        match.ModePvP,
		TimeControl: match.TimeControl{BaseMs: 1_000},
		InitialFEN:  "4k1n1/8/8/8/8/8/4P3/4K3 w - - 0 1",
	})
	require.NoError(t, err)
	_, err = h.svc.Join(ctx, g.ID, "bob")
	require.NoError(t, err)

	h.clock.Advance(2 * time.Second)
	done, err := h.svc.ClaimTimeout(ctx, g.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, match.ResultBlackWins, done.Result)
	assert.Equal(t, match.TerminationTimeout, done.Termination)
}

func TestOfferDraw(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	g := h.pvpGame(t, match.TimeControl{})

	offered, err := h.svc.OfferDraw(ctx, g.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, rules.White, offered.DrawOfferBy)
	assert.Equal(t, match.StatusActive, offered.Status)

	again, err := h.svc.OfferDraw(ctx, g.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, rules.White, again.DrawOfferBy)

	a, err := h.move(t, g.ID, "alice", "e2e4", 0)
	require.NoError(t, err)
	assert.Empty(t, a.Game.DrawOfferBy)

	_, err = h.svc.OfferDraw(ctx, g.ID, "bob")
	require.NoError(t, err)
	agreed, err := h.svc.OfferDraw(ctx, g.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, match.StatusFinished, agreed.Status)
	assert.Equal(t, match.ResultDraw, agreed.Result)
	assert.Equal(t, match.TerminationDrawAgreement, agreed.Termination)

	bot, err := h.svc.Create(ctx, match.CreateGame{CreatorID: "alice", Mode: match.ModeBot})
	require.NoError(t, err)
	_, err = h.svc.OfferDraw(ctx, bot.ID, "alice")
	requireReason(t, err, match.ReasonNotParticipant)
}

func TestAbort(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	waiting, err := h.svc.Create(ctx, match.CreateGame{CreatorID: "alice", Mode: match.ModePvP})
	require.NoError(t, err)
	_, err = h.svc.Abort(ctx, waiting.ID, "bob")
	requireReason(t, err, match.ReasonNotParticipant)
	aborted, err := h.svc.Abort(ctx, waiting.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, match.StatusAborted, aborted.Status)
	assert.Equal(t, match.ResultNone, aborted.Result)
	assert.Empty(t, aborted.Termination)
	require.NotNil(t, aborted.EndedAt)

	_, err = h.svc.Abort(ctx, waiting.ID, "alice")
	requireReason(t, err, match.ReasonGameNotActive)

	early := h.pvpGame(t, match.TimeControl{})
	_, err = h.move(t, early.ID, "alice", "e2e4", 0)
	require.NoError(t, err)
	got, err := h.svc.Abort(ctx, early.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, match.StatusAborted, got.Status)

	late := h.pvpGame(t, match.TimeControl{})
	h.playAll(t, late.ID, "e2e4", "e7e5")
	_, err = h.svc.Abort(ctx, late.ID, "alice")
	requireReason(t, err, match.ReasonGameNotActive)
	assert.Equal(t, 0, h.archive.count())
}
