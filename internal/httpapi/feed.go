package httpapi

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chess-sync/internal/notify"
)

const feedWriteTimeout = 5 * time.Second

// feed streams the game's events. The first frame is a snapshot of the
// row; later frames are whatever the hub delivers. The subscription is
// taken before the snapshot is read, so frames already covered by the
// snapshot may repeat. Clients that fall behind miss frames and are
// expected to resync.
func (s *Server) feed(c *gin.Context) {
	gameID := c.Param("id")
	sub := s.hub.Subscribe(gameID)
	defer sub.Close()

	g, err := s.svc.Get(c.Request.Context(), gameID)
	if err != nil {
		s.fail(c, "feed", err)
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns:  s.opts.OriginPatterns,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		s.logger.Warn("feed_accept_failed", zap.String("game_id", gameID), zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "feed closed")

	ctx := conn.CloseRead(c.Request.Context())
	log := s.logger.With(zap.String("game_id", gameID), zap.String("user_id", UserID(c)))
	log.Debug("feed_opened")

	if err := s.write(ctx, conn, notify.GameEvent(g)); err != nil {
		log.Debug("feed_write_failed", zap.Error(err))
		return
	}

	ping := time.NewTicker(s.opts.PingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug("feed_closed")
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-sub.C():
			if !ok {
				conn.Close(websocket.StatusGoingAway, "unsubscribed")
				return
			}
			if err := s.write(ctx, conn, ev); err != nil {
				log.Debug("feed_write_failed", zap.Error(err))
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, feedWriteTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				log.Debug("feed_ping_failed", zap.Error(err))
				return
			}
		}
	}
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, v any) error {
	wctx, cancel := context.WithTimeout(ctx, feedWriteTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, v)
}
