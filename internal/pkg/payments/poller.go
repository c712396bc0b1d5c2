package payments

import (
	"context"
	"math/rand"
	"time"

	"github.com/DriveMint/DriveMint/app/models"
)

const (
	defaultPollInterval    = 3 * time.Second
	defaultPollMaxAttempts = 40
)

// Poller is the bounded polling policy around the reconciliation core,
// backing the status endpoint's long-poll mode. Timing out is a caller
// give-up, not a payment cancellation: the transaction stays pending and may
// still resolve via callback or sweep.
type Poller struct {
	Interval    time.Duration
	MaxAttempts int

	svc *Service
}

// NewPoller creates a poller with the default interval and attempt cap.
func NewPoller(svc *Service) *Poller {
	return &Poller{
		Interval:    defaultPollInterval,
		MaxAttempts: defaultPollMaxAttempts,
		svc:         svc,
	}
}

// WaitForTerminal polls the gateway until the transaction reaches a terminal
// state, the attempt budget is exhausted (ErrPollTimeout) or ctx is done.
// The last observed transaction snapshot is returned in all three cases.
func (p *Poller) WaitForTerminal(ctx context.Context, transactionID string) (*models.Transaction, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = defaultPollMaxAttempts
	}

	var tx *models.Transaction
	for i := 0; i < attempts; i++ {
		var err error
		tx, err = p.svc.Reconcile(ctx, transactionID, "poll")
		if err != nil && tx == nil {
			return nil, err
		}
		if tx.IsTerminal() {
			return tx, nil
		}

		select {
		case <-ctx.Done():
			return tx, ctx.Err()
		case <-time.After(jittered(interval)):
		}
	}
	return tx, ErrPollTimeout
}

// jittered spreads sleeps by ±20% so many concurrent pollers do not hit the
// gateway in lockstep.
func jittered(d time.Duration) time.Duration {
	spread := int64(d) / 5
	if spread == 0 {
		return d
	}
	return d - time.Duration(spread/2) + time.Duration(rand.Int63n(spread))
}
