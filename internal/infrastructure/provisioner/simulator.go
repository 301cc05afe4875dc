package provisioner

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"provision-saga/internal/domain/provisioning"
)

// Simulator provisions nothing and hands back plausible credentials.
type Simulator struct {
	mu       sync.Mutex
	panelURL string
	calls    []provisioning.Reservation
	failNext error
}

func NewSimulator(panelURL string) *Simulator {
	return &Simulator{panelURL: panelURL}
}

// FailNext makes the next Provision call fail with err.
func (s *Simulator) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *Simulator) Provision(ctx context.Context, r provisioning.Reservation) (provisioning.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, r)
	if err := ctx.Err(); err != nil {
		return provisioning.Credentials{}, fmt.Errorf("%w: %v", ErrProvisionFailed, err)
	}
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return provisioning.Credentials{}, fmt.Errorf("%w: %v", ErrProvisionFailed, err)
	}

	id := uuid.New().String()
	return provisioning.Credentials{
		ServerID:   id[:8],
		ServerName: r.Name,
		Username:   sanitizeUsername(r.Owner),
		Password:   strings.ReplaceAll(id[9:], "-", ""),
		PanelURL:   s.panelURL,
	}, nil
}

// Calls returns every reservation Provision was called with.
func (s *Simulator) Calls() []provisioning.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]provisioning.Reservation(nil), s.calls...)
}
