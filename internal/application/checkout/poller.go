package checkout

import (
	"context"
	"sync"
	"time"
)

// poller confirms the displayed charge on a fixed interval, plus once more when the charge expires.
// Each poller belongs to one session generation.
type poller struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func startPoller(s *Session, gen uint64, interval time.Duration) *poller {
	ctx, cancel := context.WithCancel(context.Background())
	p := &poller{cancel: cancel, done: make(chan struct{})}

	var expiry <-chan time.Time
	if c := s.state.Charge; c != nil && !c.ExpiresAt.IsZero() {
		timer := time.NewTimer(c.ExpiresAt.Sub(s.now()))
		expiry = timer.C
		go func() {
			<-p.done
			timer.Stop()
		}()
	}

	go func() {
		defer close(p.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			final := false
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case <-expiry:
				expiry, final = nil, true
			}
			s.pollOnce(ctx, gen, final)
		}
	}()
	return p
}

func (p *poller) stop() {
	p.once.Do(p.cancel)
}
