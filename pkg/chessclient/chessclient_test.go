package chessclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/chess-sync/internal/httpapi"
	"github.com/park285/chess-sync/internal/match"
	"github.com/park285/chess-sync/internal/notify"
	"github.com/park285/chess-sync/internal/rules"
	"github.com/park285/chess-sync/internal/store/memstore"
	"github.com/park285/chess-sync/pkg/chessdto"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := notify.NewHub(16, nil)
	svc, err := match.NewService(memstore.New(), hub, nil, nil, match.Config{}, nil)
	require.NoError(t, err)
	srv, err := httpapi.New(svc, httpapi.Options{Hub: hub, Auth: httpapi.NewAuthenticator("", true)})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func mustMove(t *testing.T, s string) rules.MoveRequest {
	t.Helper()
	mv, err := rules.ParseCoordinate(s)
	require.NoError(t, err)
	return mv
}

func startGame(t *testing.T, ts *httptest.Server) (alice, bob *Client, id string) {
	t.Helper()
	ctx := context.Background()
	alice = NewClient(ts.URL, WithHeaderProvider(UserHeader("alice")))
	bob = NewClient(ts.URL, WithHeaderProvider(UserHeader("bob")))
	g, err := alice.CreateGame(ctx, chessdto.CreateGameRequest{Mode: "pvp", ColorPreference: "white"})
	require.NoError(t, err)
	_, err = bob.Join(ctx, g.ID)
	require.NoError(t, err)
	return alice, bob, g.ID
}

func TestMirror_SubmitAndResync(t *testing.T) {
	ts := newServer(t)
	alice, _, id := startGame(t, ts)
	ctx := context.Background()

	sync, err := alice.Sync(ctx, id)
	require.NoError(t, err)
	fresh, stale := NewMirror(), NewMirror()
	require.NoError(t, fresh.Load(sync))
	require.NoError(t, stale.Load(sync))

	resp, err := fresh.Submit(ctx, alice, id, mustMove(t, "e2e4"))
	require.NoError(t, err)
	assert.True(t, resp.Accepted)
	assert.Equal(t, 1, fresh.Ply())
	assert.Nil(t, fresh.Pending())
	assert.Equal(t, "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1", fresh.FEN())
	require.Len(t, fresh.Moves(), 1)

	_, err = stale.Submit(ctx, alice, id, mustMove(t, "d2d4"))
	require.Error(t, err)
	assert.Equal(t, chessdto.ReasonOutOfSync, ReasonOf(err))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	require.NotNil(t, apiErr.AuthoritativePly)
	assert.Equal(t, 1, *apiErr.AuthoritativePly)

	assert.Equal(t, 1, stale.Resyncs())
	assert.False(t, stale.Stale())
	assert.Equal(t, 1, stale.Ply())
	assert.Equal(t, fresh.FEN(), stale.FEN())

	// The mirror does not know seats; the server turns away alice moving black.
	_, err = stale.Submit(ctx, alice, id, mustMove(t, "e7e5"))
	assert.Equal(t, chessdto.ReasonNotYourTurn, ReasonOf(err))
	assert.Nil(t, stale.Pending())
	assert.Equal(t, 1, stale.Resyncs())
}

func TestMirror_TryLocal(t *testing.T) {
	m := NewMirror()
	_, err := m.TryLocal(mustMove(t, "e2e4"))
	assert.ErrorIs(t, err, ErrNotReady)

	require.NoError(t, m.Load(&chessdto.SyncResponse{FEN: rules.StartFEN}))
	_, err = m.TryLocal(mustMove(t, "e2e5"))
	assert.ErrorIs(t, err, rules.ErrIllegalMove)

	body, err := m.TryLocal(mustMove(t, "g1f3"))
	require.NoError(t, err)
	assert.Equal(t, "g1f3", body.UCI)
	require.NotNil(t, body.ClientPly)
	assert.Equal(t, 0, *body.ClientPly)
	assert.Equal(t, "Nf3", m.Pending().SAN)
	assert.NotEqual(t, m.FEN(), m.DisplayFEN())

	_, err = m.TryLocal(mustMove(t, "d2d4"))
	assert.ErrorIs(t, err, ErrPending)

	assert.False(t, m.Reject(&APIError{Status: 422, Reason: chessdto.ReasonIllegalMove}))
	assert.Nil(t, m.Pending())
	assert.Equal(t, m.FEN(), m.DisplayFEN())
}

func TestMirror_ApplyEvents(t *testing.T) {
	m := NewMirror()
	require.NoError(t, m.Load(&chessdto.SyncResponse{FEN: rules.StartFEN}))

	after := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1"
	require.NoError(t, m.Apply(chessdto.Event{Type: chessdto.EventMove, Move: &chessdto.Move{Ply: 1, UCI: "e2e4", FENAfter: after}}))
	assert.Equal(t, 1, m.Ply())

	require.NoError(t, m.Apply(chessdto.Event{Type: chessdto.EventMove, Move: &chessdto.Move{Ply: 1, UCI: "e2e4", FENAfter: after}}))
	assert.Len(t, m.Moves(), 1, "duplicates are ignored")

	require.NoError(t, m.Apply(chessdto.Event{Type: chessdto.EventGame, Game: &chessdto.Game{Ply: 0, CurrentFEN: rules.StartFEN}}))
	assert.Equal(t, after, m.FEN(), "older rows are ignored")

	err := m.Apply(chessdto.Event{Type: chessdto.EventMove, Move: &chessdto.Move{Ply: 3, FENAfter: rules.StartFEN}})
	assert.ErrorIs(t, err, ErrGap)
	assert.True(t, m.Stale())
}

func TestClient_Errors(t *testing.T) {
	ts := newServer(t)
	c := NewClient(ts.URL, WithHeaderProvider(UserHeader("alice")))
	_, err := c.Game(context.Background(), "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, chessdto.ReasonNotFound, apiErr.Reason)

	anon := NewClient(ts.URL)
	_, err = anon.CreateGame(context.Background(), chessdto.CreateGameRequest{Mode: "pvp"})
	assert.Equal(t, chessdto.ReasonUnauthorized, ReasonOf(err))
}

func TestClient_RetriesReadsOnly(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"g1","status":"active","ply":4}`))
	}))
	t.Cleanup(ts.Close)

	c := NewClient(ts.URL, WithRetry(3))
	g, err := c.Game(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, 4, g.Ply)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))

	atomic.StoreInt32(&calls, 0)
	_, err = c.Resign(context.Background(), "g1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.Empty(t, apiErr.Reason)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestFeed_DrivesMirror(t *testing.T) {
	ts := newServer(t)
	alice, bob, id := startGame(t, ts)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sync, err := bob.Sync(ctx, id)
	require.NoError(t, err)
	m := NewMirror()
	require.NoError(t, m.Load(sync))

	var connected atomic.Bool
	feed := NewFeed(ts.URL, id, FeedOptions{
		Headers: UserHeader("bob"),
		OnState: func(s FeedState) {
			if s == FeedConnected {
				connected.Store(true)
			}
		},
	})
	var received atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- feed.Run(ctx, func(ev chessdto.Event) {
			received.Add(1)
			_ = m.Apply(ev)
		})
	}()
	require.Eventually(t, connected.Load, 2*time.Second, 10*time.Millisecond)
	// The snapshot is written after subscribing, so once it arrives no
	// later event can be missed.
	require.Eventually(t, func() bool { return received.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	_, err = alice.SubmitMove(ctx, id, chessdto.SubmitMoveRequest{UCI: "c2c4", ClientPly: intPtr(0)})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return m.Ply() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "c2c4", m.Moves()[0].UCI)
	assert.False(t, m.Stale())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("feed did not stop")
	}
}

func intPtr(n int) *int { return &n }
