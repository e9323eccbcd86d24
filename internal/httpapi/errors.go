package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/park285/chess-sync/internal/match"
)

func statusFor(r match.Reason) int {
	switch r {
	case match.ReasonNotFound:
		return http.StatusNotFound
	case match.ReasonNotParticipant:
		return http.StatusForbidden
	case match.ReasonIllegalMove:
		return http.StatusUnprocessableEntity
	case match.ReasonBadRequest:
		return http.StatusBadRequest
	case match.ReasonGameNotActive, match.ReasonNotYourTurn, match.ReasonOutOfSync,
		match.ReasonGameFull, match.ReasonClockRunning, match.ReasonNoClock:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err. Rejections carry their reason code; anything else is an
// infrastructure failure and is reported as a bare 500.
func (s *Server) fail(c *gin.Context, op string, err error) {
	if re, ok := match.ReasonOf(err); ok {
		s.logger.Debug("http_rejected",
			zap.String("op", op),
			zap.String("game_id", c.Param("id")),
			zap.String("user_id", UserID(c)),
			zap.String("reason", string(re.Reason)),
			zap.Error(err),
		)
		c.JSON(statusFor(re.Reason), match.RejectionDTO(re))
		return
	}
	s.logger.Error("http_internal_error",
		zap.String("op", op),
		zap.String("game_id", c.Param("id")),
		zap.Error(err),
	)
	c.JSON(http.StatusInternalServerError, gin.H{"accepted": false, "message": "internal server error"})
}

func badRequest(err error) error {
	return &match.ReasonError{Reason: match.ReasonBadRequest, Err: err}
}
