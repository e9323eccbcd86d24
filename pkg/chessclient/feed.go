package chessclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chess-sync/pkg/chessdto"
)

type FeedState int

const (
	FeedDisconnected FeedState = iota
	FeedConnecting
	FeedConnected
	FeedReconnecting
	FeedFailed
)

func (s FeedState) String() string {
	switch s {
	case FeedConnecting:
		return "connecting"
	case FeedConnected:
		return "connected"
	case FeedReconnecting:
		return "reconnecting"
	case FeedFailed:
		return "failed"
	default:
		return "disconnected"
	}
}

type FeedOptions struct {
	Headers HeaderProvider
	// MaxReconnectAttempts bounds consecutive failed dials. Zero means 5.
	MaxReconnectAttempts int
	PingInterval         time.Duration
	OnState              func(FeedState)
}

// Feed follows one game's websocket event stream, reconnecting on loss.
// Every (re)connect starts with a game snapshot, so a consumer that
// applies game events catches up after gaps.
type Feed struct {
	wsURL string
	opts  FeedOptions
}

func NewFeed(baseURL, gameID string, opts FeedOptions) *Feed {
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = 5
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	base := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return &Feed{wsURL: base + "/api/games/" + url.PathEscape(gameID) + "/ws", opts: opts}
}

// Run delivers events to handle until ctx is done, returning nil then. It
// returns an error once MaxReconnectAttempts consecutive dials fail.
func (f *Feed) Run(ctx context.Context, handle func(chessdto.Event)) error {
	failures := 0
	f.setState(FeedConnecting)
	for {
		conn, err := f.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				f.setState(FeedDisconnected)
				return nil
			}
			failures++
			if failures >= f.opts.MaxReconnectAttempts {
				f.setState(FeedFailed)
				return fmt.Errorf("feed dial: %w", err)
			}
			if sleepWithContext(ctx, backoffDuration(failures)) != nil {
				f.setState(FeedDisconnected)
				return nil
			}
			continue
		}

		failures = 0
		f.setState(FeedConnected)
		f.session(ctx, conn, handle)
		if ctx.Err() != nil {
			f.setState(FeedDisconnected)
			return nil
		}
		f.setState(FeedReconnecting)
	}
}

func (f *Feed) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, f.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      f.buildHeaders(),
	})
	return conn, err
}

// session reads until the connection fails or ctx ends.
func (f *Feed) session(ctx context.Context, conn *websocket.Conn, handle func(chessdto.Event)) {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer conn.Close(websocket.StatusNormalClosure, "close")

	go f.pingLoop(sctx, cancel, conn)

	for {
		var ev chessdto.Event
		if err := wsjson.Read(sctx, conn, &ev); err != nil {
			return
		}
		if handle != nil {
			handle(ev)
		}
	}
}

func (f *Feed) pingLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	t := time.NewTicker(f.opts.PingInterval)
	defer t.Stop()
	consecutiveFailures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, pcancel := context.WithTimeout(ctx, 3*time.Second)
			err := conn.Ping(pctx)
			pcancel()
			if err == nil {
				consecutiveFailures = 0
				continue
			}
			consecutiveFailures++
			if consecutiveFailures >= 2 {
				cancel()
				return
			}
		}
	}
}

func (f *Feed) setState(s FeedState) {
	if f.opts.OnState != nil {
		f.opts.OnState(s)
	}
}

func (f *Feed) buildHeaders() http.Header {
	hdr := http.Header{}
	if f.opts.Headers == nil {
		return hdr
	}
	for k, v := range f.opts.Headers() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}
