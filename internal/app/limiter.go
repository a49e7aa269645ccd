package app

import (
	"context"
	"sync"
	"time"
)

// DynamicLimiter borne le nombre de résolutions d'enclosures simultanées,
// toutes sessions confondues. Le plafond se règle à chaud (settings
// maxConcurrentResolutions) via SetLimit.
type DynamicLimiter struct {
	mu       sync.Mutex
	limit    int
	inFlight int
	notify   chan struct{}

	waiting   int
	peak      int
	completed int64
	failed    int64
	waited    time.Duration
}

// LimiterStats décrit l'occupation du fan-out des enclosures, exposée par /health.
type LimiterStats struct {
	Limit     int   `json:"limit"`
	InFlight  int   `json:"inFlight"`
	Waiting   int   `json:"waiting"`
	Peak      int   `json:"peak"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	// WaitedMS cumule le temps passé à attendre une place.
	WaitedMS int64 `json:"waitedMs"`
}

func NewDynamicLimiter(limit int) *DynamicLimiter {
	if limit <= 0 {
		limit = 1
	}
	return &DynamicLimiter{limit: limit, notify: make(chan struct{})}
}

func (l *DynamicLimiter) Limit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

func (l *DynamicLimiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}

func (l *DynamicLimiter) Stats() LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LimiterStats{
		Limit:     l.limit,
		InFlight:  l.inFlight,
		Waiting:   l.waiting,
		Peak:      l.peak,
		Completed: l.completed,
		Failed:    l.failed,
		WaitedMS:  l.waited.Milliseconds(),
	}
}

// SetLimit change le plafond. Baisser le plafond n'interrompt rien : les
// résolutions en cours finissent, les suivantes attendent.
func (l *DynamicLimiter) SetLimit(limit int) {
	if limit <= 0 {
		limit = 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.limit == limit {
		return
	}
	l.limit = limit
	l.wakeLocked()
}

// Acquire attend une place libre ou l'annulation de ctx.
func (l *DynamicLimiter) Acquire(ctx context.Context) error {
	start := time.Now()
	queued := false

	l.mu.Lock()
	defer l.mu.Unlock()
	for {
		if l.inFlight < l.limit {
			l.inFlight++
			if l.inFlight > l.peak {
				l.peak = l.inFlight
			}
			if queued {
				l.waiting--
				l.waited += time.Since(start)
			}
			return nil
		}
		if !queued {
			queued = true
			l.waiting++
		}
		ch := l.notify
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			l.mu.Lock()
			l.waiting--
			l.waited += time.Since(start)
			return ctx.Err()
		case <-ch:
		}
		l.mu.Lock()
	}
}

func (l *DynamicLimiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight > 0 {
		l.inFlight--
	}
	l.wakeLocked()
}

// Run exécute fn en tenant une place du limiteur. Une place refusée
// (ctx annulé pendant l'attente) ne compte ni comme réussite ni comme échec.
func (l *DynamicLimiter) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	err := fn(ctx)
	l.mu.Lock()
	if err != nil {
		l.failed++
	} else {
		l.completed++
	}
	l.mu.Unlock()
	return err
}

// wakeLocked réveille tous les waiters : le channel courant est fermé puis remplacé.
func (l *DynamicLimiter) wakeLocked() {
	close(l.notify)
	l.notify = make(chan struct{})
}
