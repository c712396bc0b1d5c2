package payments

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/DriveMint/DriveMint/app/models"
	"github.com/DriveMint/DriveMint/app/repository"
	"github.com/DriveMint/DriveMint/internal/pkg/env"
	"github.com/DriveMint/DriveMint/internal/pkg/metrics/counter"
	"github.com/gofiber/fiber/v2/log"
)

const sweepBatchSize = 100

// Sweeper periodically revisits transactions stuck in pending: rows the
// poller gave up on and no callback ever resolved. Within the grace window
// rows are left alone; after it the gateway is re-queried; past the hard
// deadline still-unresolved rows are failed so entitlements never stay
// permanently undecided.
type Sweeper struct {
	svc *Service
	txs repository.TransactionRepository

	interval time.Duration
	grace    time.Duration
	deadline time.Duration

	ticker  *time.Ticker
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewSweeper creates a stuck-pending sweeper.
func NewSweeper(svc *Service, txs repository.TransactionRepository, interval, grace, deadline time.Duration) *Sweeper {
	return &Sweeper{
		svc:      svc,
		txs:      txs,
		interval: interval,
		grace:    grace,
		deadline: deadline,
		stopCh:   make(chan struct{}),
	}
}

// NewSweeperFromEnv creates a sweeper configured from environment variables,
// with sensible defaults (sweep every 5 minutes, retry rows pending for more
// than 10 minutes, hard-fail after 6 hours).
func NewSweeperFromEnv(svc *Service, txs repository.TransactionRepository) *Sweeper {
	interval := envMinutes("PAYMENT_SWEEP_INTERVAL_MIN", 5)
	grace := envMinutes("PAYMENT_PENDING_GRACE_MIN", 10)
	deadline := time.Duration(envInt("PAYMENT_PENDING_DEADLINE_HOURS", 6)) * time.Hour
	return NewSweeper(svc, txs, interval, grace, deadline)
}

// Start launches the background sweep loop.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	// Recreate stop channel for each start cycle so the sweeper can be restarted safely.
	s.stopCh = make(chan struct{})
	s.running = true
	log.Infof("[Payment Sweeper] Starting, interval=%s grace=%s deadline=%s", s.interval, s.grace, s.deadline)

	s.ticker = time.NewTicker(s.interval)
	s.wg.Add(1)
	go s.loop()
}

// Stop terminates the sweep loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	s.ticker.Stop()
	close(s.stopCh)
	s.wg.Wait()
	log.Info("[Payment Sweeper] Stopped")
}

func (s *Sweeper) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.ticker.C:
			s.SweepOnce(context.Background())
			if err := counter.FlushPurchases(); err != nil {
				log.Warnf("[Payment Sweeper] flushing purchase counters failed: %v", err)
			}
		}
	}
}

// SweepOnce runs a single sweep pass: revisit stuck pending rows, then heal
// completed rows whose entitlement write never landed.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	s.sweepStuckPending(ctx)
	s.recoverUnactivated(ctx)
}

func (s *Sweeper) sweepStuckPending(ctx context.Context) {
	cutoff := time.Now().Add(-s.grace)
	stuck, err := s.txs.ListPendingOlderThan(cutoff, sweepBatchSize)
	if err != nil {
		log.Errorf("[Payment Sweeper] listing stuck transactions failed: %v", err)
		return
	}
	if len(stuck) == 0 {
		return
	}
	log.Infof("[Payment Sweeper] revisiting %d stuck pending transaction(s)", len(stuck))

	hardCutoff := time.Now().Add(-s.deadline)
	for _, tx := range stuck {
		select {
		case <-s.stopCh:
			return
		default:
		}
		s.sweepOne(ctx, tx, hardCutoff)
	}
}

// recoverUnactivated re-runs the activation for completed transactions with
// no activation row. Reconcile recognizes the terminal status and only
// performs the missing entitlement write.
func (s *Sweeper) recoverUnactivated(ctx context.Context) {
	orphaned, err := s.txs.ListUnactivatedCompleted(sweepBatchSize)
	if err != nil {
		log.Errorf("[Payment Sweeper] listing unactivated completed transactions failed: %v", err)
		return
	}
	for _, tx := range orphaned {
		select {
		case <-s.stopCh:
			return
		default:
		}
		if _, err := s.svc.Reconcile(ctx, tx.ID, models.ActivationSourceSweep); err != nil {
			log.Warnf("[Payment Sweeper] entitlement recovery for %s failed: %v", tx.ID, err)
		}
	}
}

func (s *Sweeper) sweepOne(ctx context.Context, tx models.Transaction, hardCutoff time.Time) {
	expired := tx.CreatedAt.Before(hardCutoff)

	if tx.GatewayRef == "" {
		// Crash between ledger write and gateway call: there is nothing to
		// query, only a deadline to enforce.
		if expired {
			s.failExpired(tx.ID)
		}
		return
	}

	resolved, err := s.svc.Reconcile(ctx, tx.ID, models.ActivationSourceSweep)
	if err != nil {
		log.Warnf("[Payment Sweeper] reconcile of %s failed: %v", tx.ID, err)
		if expired {
			s.failExpired(tx.ID)
		}
		return
	}
	if resolved.IsTerminal() {
		log.Infof("[Payment Sweeper] transaction %s resolved to %s", tx.ID, resolved.Status)
		return
	}
	if expired {
		s.failExpired(tx.ID)
	}
}

func (s *Sweeper) failExpired(transactionID string) {
	won, err := s.txs.MarkFailed(transactionID, "expired: unresolved past pending deadline")
	if err != nil {
		log.Errorf("[Payment Sweeper] could not expire transaction %s: %v", transactionID, err)
		return
	}
	if won {
		log.Infof("[Payment Sweeper] transaction %s expired after pending deadline", transactionID)
	}
}

func envMinutes(key string, def int) time.Duration {
	return time.Duration(envInt(key, def)) * time.Minute
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(env.GetEnv(key, strconv.Itoa(def)))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
