package cron

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nami-protocol/nami-client/namiClient/network"
)

// Balances is refreshed on every tick.
type Balances interface {
	RefreshBalances(ctx context.Context) error
}

// Chain reports the block status of the live endpoint.
type Chain interface {
	Network() string
	Connected() bool
	BlockStatus(ctx context.Context) (network.BlockStatus, error)
}

// BlockObserver receives every fetched block status.
type BlockObserver func(network string, status network.BlockStatus)

// StatusJob keeps the connected wallet's balances and the chain head fresh
// while the client runs as a service.
type StatusJob struct {
	balances       Balances
	chain          Chain
	observe        BlockObserver
	interval       time.Duration
	perSyncTimeout time.Duration
	logger         zerolog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	forceCh chan struct{}
	wg      sync.WaitGroup

	statusMu sync.RWMutex
	last     network.BlockStatus
	lastAt   time.Time
}

func NewStatusJob(balances Balances, chain Chain, observe BlockObserver, interval, perSyncTimeout time.Duration, logger zerolog.Logger) *StatusJob {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if perSyncTimeout <= 0 {
		perSyncTimeout = 8 * time.Second
	}
	return &StatusJob{
		balances:       balances,
		chain:          chain,
		observe:        observe,
		interval:       interval,
		perSyncTimeout: perSyncTimeout,
		logger:         logger.With().Str("component", "status_cron").Logger(),
	}
}

// Start launches the background loop and returns immediately.
// Subsequent calls are no-ops.
func (j *StatusJob) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return nil
	}
	if j.balances == nil || j.chain == nil {
		return errors.New("cron: balances and chain must be non-nil")
	}

	j.stopCh = make(chan struct{})
	j.forceCh = make(chan struct{}, 1)
	j.running = true
	j.wg.Add(1)

	go j.run(ctx)
	return nil
}

// Stop signals the loop to exit and waits for it to finish.
func (j *StatusJob) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	close(j.stopCh)
	j.running = false
	j.mu.Unlock()
	j.wg.Wait()
}

// ForceSync asks for a refresh without waiting for the next tick.
func (j *StatusJob) ForceSync() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.running {
		return
	}
	select {
	case j.forceCh <- struct{}{}:
	default:
	}
}

// Last returns the latest block status and when it was fetched.
func (j *StatusJob) Last() (network.BlockStatus, time.Time) {
	j.statusMu.RLock()
	defer j.statusMu.RUnlock()
	return j.last, j.lastAt
}

func (j *StatusJob) run(parent context.Context) {
	defer j.wg.Done()

	if err := j.syncOnce(parent); err != nil {
		j.logger.Warn().Err(err).Msg("initial status sync failed")
	}

	t := time.NewTicker(j.interval)
	defer t.Stop()

	for {
		select {
		case <-parent.Done():
			j.logger.Info().Msg("status cron: context canceled; stopping")
			return
		case <-j.stopCh:
			j.logger.Info().Msg("status cron: stop requested; stopping")
			return
		case <-t.C:
			if err := j.syncOnce(parent); err != nil {
				j.logger.Warn().Err(err).Msg("periodic status refresh failed; keeping previous values")
			}
		case <-j.forceCh:
			if err := j.syncOnce(parent); err != nil {
				j.logger.Warn().Err(err).Msg("forced status refresh failed; keeping previous values")
			}
		}
	}
}

func (j *StatusJob) syncOnce(parent context.Context) error {
	timeout := j.perSyncTimeout
	if dl, ok := parent.Deadline(); ok {
		if remain := time.Until(dl); remain > 0 && remain < timeout {
			timeout = remain
		}
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	if !j.chain.Connected() {
		return errors.New("no rpc connection")
	}

	status, err := j.chain.BlockStatus(ctx)
	if err != nil {
		return err
	}
	j.statusMu.Lock()
	j.last, j.lastAt = status, time.Now()
	j.statusMu.Unlock()
	if j.observe != nil {
		j.observe(j.chain.Network(), status)
	}

	return j.balances.RefreshBalances(ctx)
}
