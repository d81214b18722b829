package audit

import (
	"context"
	"sync"
	"time"

	"github.com/RussellLuo/slidingwindow"
)

// Caps the number of records per community passed to the inner sink within a sliding window. Excess records are dropped and counted.
type LimitedSink struct {
	Inner  Sink
	Window time.Duration
	Limit  int64

	lk       sync.Mutex
	limiters map[string]*slidingwindow.Limiter
}

func NewLimitedSink(inner Sink, window time.Duration, limit int64) *LimitedSink {
	return &LimitedSink{
		Inner:    inner,
		Window:   window,
		Limit:    limit,
		limiters: make(map[string]*slidingwindow.Limiter),
	}
}

func windowFunc() (slidingwindow.Window, slidingwindow.StopFunc) {
	return slidingwindow.NewLocalWindow()
}

func (s *LimitedSink) limiter(communityID string) *slidingwindow.Limiter {
	s.lk.Lock()
	defer s.lk.Unlock()
	lim, ok := s.limiters[communityID]
	if !ok {
		lim, _ = slidingwindow.NewLimiter(s.Window, s.Limit, windowFunc)
		s.limiters[communityID] = lim
	}
	return lim
}

func (s *LimitedSink) Emit(ctx context.Context, rec Record) error {
	if !s.limiter(rec.CommunityID).Allow() {
		auditDropped.WithLabelValues(rec.Detector).Inc()
		return nil
	}
	return s.Inner.Emit(ctx, rec)
}
