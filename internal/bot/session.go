package bot

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultReadyTimeout  = 4 * time.Second
	newGameRetryAttempts = 3
	newGameRetryDelay    = 150 * time.Millisecond
)

// ErrNoMove is returned when the engine reports "bestmove (none)".
var ErrNoMove = errors.New("engine has no move")

// Options are the UCI options a session is started with. Sessions with
// equal options are interchangeable.
type Options struct {
	Threads    int
	SkillLevel int
	HashMB     int
	Elo        int
}

type Limits struct {
	Depth          int
	MoveTimeMillis int
}

type lineResult struct {
	line string
	err  error
}

// Session is one UCI engine conversation. Search calls are serialised.
type Session struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan lineResult
	done   chan struct{}
	logger *zap.Logger

	mu     sync.Mutex
	search sync.Mutex
	closed bool
}

// NewSession starts binaryPath and completes the uci/isready handshake.
func NewSession(ctx context.Context, binaryPath string, opt Options, logger *zap.Logger) (*Session, error) {
	if err := validateOptions(opt); err != nil {
		return nil, err
	}

	// The process must outlive ctx, which only bounds the handshake.
	cmd := exec.Command(binaryPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}

	s := newSession(stdin, stdout, logger)
	s.cmd = cmd
	if err := s.initialize(ctx, opt); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// newSession wraps an already running engine's pipes.
func newSession(stdin io.WriteCloser, stdout io.Reader, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		stdin:  stdin,
		lines:  make(chan lineResult, 64),
		done:   make(chan struct{}),
		logger: logger,
	}
	go s.readLoop(bufio.NewReader(stdout))
	return s
}

func (s *Session) readLoop(r *bufio.Reader) {
	defer close(s.lines)
	deliver := func(res lineResult) bool {
		select {
		case s.lines <- res:
			return true
		case <-s.done:
			return false
		}
	}
	for {
		line, err := r.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" && !deliver(lineResult{line: line}) {
			return
		}
		if err != nil {
			deliver(lineResult{err: err})
			return
		}
	}
}

// Search sets up fen (plus moves) and returns the engine's best move in
// coordinate notation.
func (s *Session) Search(ctx context.Context, fen string, moves []string, l Limits) (string, error) {
	s.search.Lock()
	defer s.search.Unlock()

	goTokens, err := buildGoTokens(l)
	if err != nil {
		return "", err
	}
	if err := s.send(buildPositionCommand(fen, moves)); err != nil {
		return "", fmt.Errorf("send position: %w", err)
	}
	goCmd := strings.Join(goTokens, " ")
	if err := s.send(goCmd + "\n"); err != nil {
		return "", fmt.Errorf("send go: %w", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, computeSearchTimeout(l))
	defer cancel()

	for {
		line, err := s.readLine(searchCtx)
		if err != nil {
			s.logger.Warn("bot_search_read_failed",
				zap.String("fen", fen),
				zap.String("go", goCmd),
				zap.Error(err),
			)
			return "", fmt.Errorf("read line: %w", err)
		}
		if best, ok := parseBestMove(line); ok {
			if best == "" || best == "(none)" || best == "0000" {
				return "", ErrNoMove
			}
			return best, nil
		}
	}
}

// parseBestMove extracts the move from a "bestmove <mv> [ponder <mv>]" line.
func parseBestMove(line string) (string, bool) {
	parts := strings.Fields(line)
	if len(parts) == 0 || parts[0] != "bestmove" {
		return "", false
	}
	if len(parts) < 2 {
		return "", true
	}
	return parts[1], true
}

func buildPositionCommand(fen string, moves []string) string {
	var sb strings.Builder
	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		sb.WriteString("position startpos")
	} else {
		sb.WriteString("position fen ")
		sb.WriteString(strings.TrimSpace(fen))
	}
	if len(moves) > 0 {
		sb.WriteString(" moves ")
		sb.WriteString(strings.Join(moves, " "))
	}
	sb.WriteString("\n")
	return sb.String()
}

func validateOptions(opt Options) error {
	if opt.SkillLevel < 0 || opt.SkillLevel > 20 {
		return fmt.Errorf("skill level %d out of range 0-20", opt.SkillLevel)
	}
	if opt.HashMB <= 0 {
		return fmt.Errorf("hash size must be > 0: %d", opt.HashMB)
	}
	if opt.Elo < 0 {
		return fmt.Errorf("elo must be >= 0: %d", opt.Elo)
	}
	return nil
}

func buildGoTokens(l Limits) ([]string, error) {
	args := []string{"go"}
	if l.Depth > 0 {
		args = append(args, "depth", strconv.Itoa(l.Depth))
	}
	if l.MoveTimeMillis > 0 {
		args = append(args, "movetime", strconv.Itoa(l.MoveTimeMillis))
	}
	if len(args) == 1 {
		return nil, fmt.Errorf("no search limits specified")
	}
	return args, nil
}

func computeSearchTimeout(l Limits) time.Duration {
	if l.MoveTimeMillis > 0 {
		return time.Duration(l.MoveTimeMillis+2000) * time.Millisecond * 3
	}
	if l.Depth > 0 {
		base := time.Duration(l.Depth) * 300 * time.Millisecond
		if base < 6*time.Second {
			base = 6 * time.Second
		}
		if base > 20*time.Second {
			base = 20 * time.Second
		}
		return base
	}
	return 6 * time.Second
}

func (s *Session) EnsureReady(ctx context.Context) error {
	readyCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := s.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(readyCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

// NewGame clears the engine's hash between unrelated positions.
func (s *Session) NewGame(ctx context.Context) error {
	if err := s.send("ucinewgame\n"); err != nil {
		return fmt.Errorf("send ucinewgame: %w", err)
	}
	for attempt := 1; ; attempt++ {
		err := s.EnsureReady(ctx)
		if err == nil || attempt == newGameRetryAttempts {
			return err
		}
		s.logger.Debug("bot_ready_retry", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(newGameRetryDelay):
		}
	}
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)

	if s.stdin != nil {
		_, _ = io.WriteString(s.stdin, "quit\n")
		_ = s.stdin.Close()
	}
	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}
	_ = s.cmd.Process.Kill()
	if err := s.cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil
		}
		return err
	}
	return nil
}

func (s *Session) initialize(ctx context.Context, opt Options) error {
	initCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := s.send("uci\n"); err != nil {
		return fmt.Errorf("send uci: %w", err)
	}
	if err := s.awaitToken(initCtx, "uciok"); err != nil {
		return fmt.Errorf("wait uciok: %w", err)
	}
	for _, cmd := range optionCommands(opt) {
		if err := s.send(cmd); err != nil {
			return fmt.Errorf("apply options: %w", err)
		}
	}
	if err := s.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(initCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

func optionCommands(opt Options) []string {
	threads := opt.Threads
	if threads <= 0 {
		threads = 1
	}
	cmds := []string{
		fmt.Sprintf("setoption name Threads value %d\n", threads),
		fmt.Sprintf("setoption name Hash value %d\n", opt.HashMB),
		fmt.Sprintf("setoption name Skill Level value %d\n", opt.SkillLevel),
		"setoption name Move Overhead value 100\n",
	}
	if opt.Elo > 0 {
		cmds = append(cmds,
			"setoption name UCI_LimitStrength value true\n",
			fmt.Sprintf("setoption name UCI_Elo value %d\n", opt.Elo),
		)
	}
	return cmds
}

func (s *Session) send(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("session closed")
	}
	_, err := io.WriteString(s.stdin, msg)
	return err
}

func (s *Session) awaitToken(ctx context.Context, token string) error {
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return err
		}
		if line == token {
			return nil
		}
	}
}

func (s *Session) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res, ok := <-s.lines:
		if !ok {
			return "", io.EOF
		}
		return res.line, res.err
	}
}
