package bot

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

var errBucketAtCapacity = errors.New("session bucket at capacity")

// dialFunc starts a ready session; NewSession in production.
type dialFunc func(ctx context.Context, opt Options) (*Session, error)

// Pool keeps warm engine sessions, bucketed by Options so that each
// preset reuses processes configured for it. A bucket holds at most
// perPresetCapacity sessions; Acquire waits on ctx when all are busy.
type Pool struct {
	dial              dialFunc
	perPresetCapacity int
	logger            *zap.Logger

	mu       sync.Mutex
	buckets  map[Options]*sessionBucket
	sessions map[*Session]*sessionBucket
}

func newPool(dial dialFunc, capacity int, logger *zap.Logger) *Pool {
	if capacity <= 0 {
		capacity = defaultPerPresetCapacity()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		dial:              dial,
		perPresetCapacity: capacity,
		logger:            logger,
		buckets:           make(map[Options]*sessionBucket),
		sessions:          make(map[*Session]*sessionBucket),
	}
}

func (p *Pool) Acquire(ctx context.Context, opt Options) (*Session, error) {
	bucket := p.getBucket(opt)

	for {
		select {
		case session := <-bucket.idle:
			if s, ok := p.revive(ctx, session, bucket); ok {
				return s, nil
			}
			continue
		default:
		}

		session, err := bucket.create(ctx, p.dial)
		if err == nil {
			p.track(session, bucket)
			p.logger.Debug("bot_session_started", zap.Int("skill", opt.SkillLevel), zap.Int("bucket_total", bucket.size()))
			return session, nil
		}
		if !errors.Is(err, errBucketAtCapacity) {
			return nil, err
		}

		select {
		case session := <-bucket.idle:
			if s, ok := p.revive(ctx, session, bucket); ok {
				return s, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// revive health-checks an idle session before handing it out.
func (p *Pool) revive(ctx context.Context, session *Session, bucket *sessionBucket) (*Session, bool) {
	if session == nil {
		return nil, false
	}
	if err := session.EnsureReady(ctx); err != nil {
		p.logger.Warn("bot_session_unhealthy", zap.Error(err))
		bucket.discard(session)
		return nil, false
	}
	p.track(session, bucket)
	return session, true
}

// Release returns session to its bucket. A non-nil err discards it.
func (p *Pool) Release(session *Session, err error) {
	if session == nil {
		return
	}

	p.mu.Lock()
	bucket, ok := p.sessions[session]
	delete(p.sessions, session)
	p.mu.Unlock()

	if !ok {
		_ = session.Close()
		return
	}
	if err != nil || !bucket.put(session) {
		bucket.discard(session)
	}
}

func (p *Pool) Close() error {
	p.mu.Lock()
	buckets := make([]*sessionBucket, 0, len(p.buckets))
	for _, b := range p.buckets {
		buckets = append(buckets, b)
	}
	p.sessions = make(map[*Session]*sessionBucket)
	p.mu.Unlock()

	var errs []error
	for _, bucket := range buckets {
		errs = append(errs, bucket.drain()...)
	}
	return errors.Join(errs...)
}

func (p *Pool) track(session *Session, bucket *sessionBucket) {
	p.mu.Lock()
	p.sessions[session] = bucket
	p.mu.Unlock()
}

func (p *Pool) getBucket(opt Options) *sessionBucket {
	p.mu.Lock()
	defer p.mu.Unlock()
	bucket, ok := p.buckets[opt]
	if !ok {
		bucket = newSessionBucket(opt, p.perPresetCapacity)
		p.buckets[opt] = bucket
	}
	return bucket
}

type sessionBucket struct {
	opt      Options
	capacity int

	mu    sync.Mutex
	total int
	idle  chan *Session
}

func newSessionBucket(opt Options, capacity int) *sessionBucket {
	if capacity <= 0 {
		capacity = 1
	}
	return &sessionBucket{
		opt:      opt,
		capacity: capacity,
		idle:     make(chan *Session, capacity),
	}
}

func (b *sessionBucket) create(ctx context.Context, dial dialFunc) (*Session, error) {
	b.mu.Lock()
	if b.total >= b.capacity {
		b.mu.Unlock()
		return nil, errBucketAtCapacity
	}
	b.total++
	b.mu.Unlock()

	session, err := dial(ctx, b.opt)
	if err != nil {
		b.decrement()
		return nil, fmt.Errorf("start engine session: %w", err)
	}
	return session, nil
}

func (b *sessionBucket) put(session *Session) bool {
	select {
	case b.idle <- session:
		return true
	default:
		return false
	}
}

func (b *sessionBucket) discard(session *Session) {
	if session != nil {
		_ = session.Close()
	}
	b.decrement()
}

func (b *sessionBucket) drain() []error {
	var errs []error
	for {
		select {
		case session := <-b.idle:
			if session == nil {
				continue
			}
			if err := session.Close(); err != nil {
				errs = append(errs, err)
			}
			b.decrement()
		default:
			return errs
		}
	}
}

func (b *sessionBucket) decrement() {
	b.mu.Lock()
	if b.total > 0 {
		b.total--
	}
	b.mu.Unlock()
}

func (b *sessionBucket) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

func defaultPerPresetCapacity() int {
	cpu := runtime.NumCPU()
	if cpu < 2 {
		return 2
	}
	if cpu > 4 {
		return 4
	}
	return cpu
}
