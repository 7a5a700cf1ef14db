// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package qbittorrent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/autobrr/tolokarr/internal/domain"
	"github.com/autobrr/tolokarr/internal/torrents"
)

// resumeAttempts bounds the resume phase after a recheck finishes; each
// attempt is itself a verified operation with its own retry budget.
const resumeAttempts = 3

// StateProber is the slice of the client a supervised task needs.
type StateProber interface {
	Info(ctx context.Context, id string) (*torrents.Info, error)
	Resume(ctx context.Context, id string) (bool, error)
}

// TaskManager supervises background rechecks. It guarantees at most one task
// per hash, bounds concurrency with a weighted semaphore, and fires each
// completion callback exactly once.
type TaskManager struct {
	cfg    domain.BackgroundConfig
	prober StateProber
	sem    *semaphore.Weighted
	wg     sync.WaitGroup

	mu    sync.Mutex
	tasks map[string]*recheckTask
}

type recheckTask struct {
	hash   string
	status torrents.TaskStatus
	ctx    context.Context
	cancel context.CancelFunc
	onDone torrents.CompletionFunc
}

// NewTaskManager builds a supervisor over prober. Zero-valued tunables fall
// back to their defaults.
func NewTaskManager(cfg domain.BackgroundConfig, prober StateProber) *TaskManager {
	def := domain.DefaultBackgroundConfig()
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = def.MaxWorkers
	}
	if cfg.RecheckTimeout <= 0 {
		cfg.RecheckTimeout = def.RecheckTimeout
	}
	if cfg.StallTimeout <= 0 {
		cfg.StallTimeout = def.StallTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.QuickStartTimeout <= 0 {
		cfg.QuickStartTimeout = def.QuickStartTimeout
	}

	return &TaskManager{
		cfg:    cfg,
		prober: prober,
		sem:    semaphore.NewWeighted(cfg.MaxWorkers),
		tasks:  make(map[string]*recheckTask),
	}
}

// reserve claims the per-hash slot. The check and the insert happen under one
// lock so two concurrent callers can never both claim the same hash.
func (m *TaskManager) reserve(hash string, onDone torrents.CompletionFunc) (*recheckTask, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[hash]; exists {
		return nil, false
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &recheckTask{
		hash:   hash,
		status: torrents.TaskCreated,
		ctx:    ctx,
		cancel: cancel,
		onDone: onDone,
	}
	m.tasks[hash] = t
	return t, true
}

// start launches the supervision goroutine for a reserved task.
func (m *TaskManager) start(t *recheckTask) {
	m.wg.Add(1)
	go m.run(t)
}

// abort releases a reserved slot that never started, without notifying.
func (m *TaskManager) abort(t *recheckTask) {
	t.cancel()
	m.remove(t.hash)
}

func (m *TaskManager) remove(hash string) {
	m.mu.Lock()
	delete(m.tasks, hash)
	m.mu.Unlock()
}

func (m *TaskManager) setStatus(t *recheckTask, status torrents.TaskStatus) {
	m.mu.Lock()
	t.status = status
	m.mu.Unlock()
}

func (m *TaskManager) run(t *recheckTask) {
	defer m.wg.Done()
	defer m.remove(t.hash)
	defer t.cancel()

	if err := m.sem.Acquire(t.ctx, 1); err != nil {
		m.finish(t, torrents.TaskCancelled, false, "Cancelled while waiting for a worker")
		return
	}
	defer m.sem.Release(1)

	m.setStatus(t, torrents.TaskRunning)
	log.Debug().Str("hash", t.hash).Msg("Recheck supervision started")

	ok, msg := m.supervise(t)
	switch {
	case t.ctx.Err() != nil && !ok:
		m.finish(t, torrents.TaskCancelled, false, msg)
	case ok:
		m.finish(t, torrents.TaskCompleted, true, msg)
	default:
		m.finish(t, torrents.TaskFailed, false, msg)
	}
}

// supervise polls until the torrent leaves the checking states, then runs the
// resume phase. Stalls are warned about but never abort the task; only the
// overall ceiling, cancellation, an error state, or the torrent vanishing do.
func (m *TaskManager) supervise(t *recheckTask) (bool, string) {
	deadline := time.Now().Add(m.cfg.RecheckTimeout)
	lastProgress := -1.0
	lastMovement := time.Now()
	lastLogged := -1.0

	for {
		info, err := m.prober.Info(t.ctx, t.hash)
		switch {
		case err != nil:
			if t.ctx.Err() != nil {
				return false, "Cancelled"
			}
			log.Debug().Err(err).Str("hash", t.hash).Msg("Recheck poll failed, will retry")

		case info == nil:
			return false, "Torrent disappeared during recheck"

		case info.Class == torrents.StateErrored:
			return false, fmt.Sprintf("Torrent in error state: %s", info.RawState)

		case info.Class == torrents.StateChecking:
			if info.Progress > lastProgress {
				lastProgress = info.Progress
				lastMovement = time.Now()
			}
			if info.Progress >= lastLogged+0.10 {
				lastLogged = info.Progress
				log.Debug().Str("hash", t.hash).Float64("progress", info.Progress).Msg("Recheck progress")
			}
			if time.Since(lastMovement) >= m.cfg.StallTimeout {
				log.Warn().Str("hash", t.hash).Float64("progress", lastProgress).
					Dur("stalledFor", time.Since(lastMovement)).Msg("Recheck stalled, still waiting")
				lastMovement = time.Now()
			}

		case info.Class == torrents.StateUnknown:
			log.Debug().Str("hash", t.hash).Str("state", info.RawState).Msg("Unrecognized state, still polling")

		default:
			// Left the checking states without erroring, move on to resume.
			return m.resumeAfterCheck(t)
		}

		if time.Now().After(deadline) {
			return false, fmt.Sprintf("Recheck timed out after %s", m.cfg.RecheckTimeout)
		}
		if err := torrents.Sleep(t.ctx, m.cfg.PollInterval); err != nil {
			return false, "Cancelled"
		}
	}
}

func (m *TaskManager) resumeAfterCheck(t *recheckTask) (bool, string) {
	for attempt := 0; attempt < resumeAttempts; attempt++ {
		if attempt > 0 {
			if err := torrents.Sleep(t.ctx, m.cfg.PollInterval); err != nil {
				return false, "Cancelled"
			}
		}

		ok, err := m.prober.Resume(t.ctx, t.hash)
		if err != nil {
			if t.ctx.Err() != nil {
				return false, "Cancelled"
			}
			log.Warn().Err(err).Str("hash", t.hash).Msg("Resume after recheck failed, retrying")
			continue
		}
		if ok {
			return true, "Recheck completed and torrent resumed"
		}

		info, err := m.prober.Info(t.ctx, t.hash)
		if err != nil {
			continue
		}
		if info == nil {
			return false, "Torrent disappeared during recheck"
		}
		if info.Class == torrents.StateErrored {
			return false, fmt.Sprintf("Torrent in error state: %s", info.RawState)
		}
	}

	// The check itself finished and the torrent is not errored; report
	// success even though the resume could not be confirmed.
	log.Warn().Str("hash", t.hash).Msg("Could not confirm resume after recheck")
	return true, "Recheck completed"
}

// finish records the terminal status and notifies exactly once. A panicking
// callback is contained so it cannot take the supervisor down.
func (m *TaskManager) finish(t *recheckTask, status torrents.TaskStatus, ok bool, msg string) {
	m.setStatus(t, status)

	evt := log.Info()
	if !ok {
		evt = log.Warn()
	}
	evt.Str("hash", t.hash).Str("taskStatus", string(status)).Msg(msg)

	if t.onDone == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("hash", t.hash).Msg("Recheck completion callback panicked")
		}
	}()
	t.onDone(ok, msg)
}

// Status reports the task state for hash while one is tracked.
func (m *TaskManager) Status(hash string) (torrents.TaskStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[hash]
	if !ok {
		return "", false
	}
	return t.status, true
}

// Active returns the number of tracked tasks.
func (m *TaskManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Cancel requests cooperative cancellation of the task for hash.
func (m *TaskManager) Cancel(hash string) bool {
	m.mu.Lock()
	t, ok := m.tasks[hash]
	m.mu.Unlock()
	if !ok {
		return false
	}
	t.cancel()
	return true
}

// CancelAll requests cancellation of every tracked task.
func (m *TaskManager) CancelAll() {
	m.mu.Lock()
	for _, t := range m.tasks {
		t.cancel()
	}
	m.mu.Unlock()
}

// Wait blocks until every task has finished or ctx is done.
func (m *TaskManager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels everything and waits for the goroutines to drain.
func (m *TaskManager) Shutdown(ctx context.Context) error {
	m.CancelAll()
	return m.Wait(ctx)
}
