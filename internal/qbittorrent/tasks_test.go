package qbittorrent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/autobrr/tolokarr/internal/domain"
	"github.com/autobrr/tolokarr/internal/torrents"
)

const testHash = "9f0afe4c93ad841731290bd05c9e03b1ad77d6cc"

type taskResult struct {
	ok  bool
	msg string
}

// fakeProber serves a scripted sequence of torrent states; the last entry
// repeats once the script runs out. A nil entry means the torrent is gone.
type fakeProber struct {
	mu          sync.Mutex
	infos       []*torrents.Info
	infoErr     error
	resumeOK    bool
	resumeErr   error
	infoCalls   int
	resumeCalls int

	firstInfo chan struct{} // closed on the first Info call, if set
	hold      chan struct{} // the first Info call blocks until this closes, if set
}

func (f *fakeProber) Info(ctx context.Context, id string) (*torrents.Info, error) {
	f.mu.Lock()
	f.infoCalls++
	first := f.infoCalls == 1
	f.mu.Unlock()

	if first {
		if f.firstInfo != nil {
			close(f.firstInfo)
		}
		if f.hold != nil {
			<-f.hold
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	if len(f.infos) == 0 {
		return nil, nil
	}
	info := f.infos[0]
	if len(f.infos) > 1 {
		f.infos = f.infos[1:]
	}
	return info, nil
}

func (f *fakeProber) Resume(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumeCalls++
	return f.resumeOK, f.resumeErr
}

func (f *fakeProber) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.infoCalls, f.resumeCalls
}

func checkingInfo(progress float64) *torrents.Info {
	return &torrents.Info{ID: testHash, Name: "Test.Torrent", RawState: "checkingDL", Class: torrents.StateChecking, Progress: progress}
}

func activeInfo() *torrents.Info {
	return &torrents.Info{ID: testHash, Name: "Test.Torrent", RawState: "uploading", Class: torrents.StateActive, Progress: 1}
}

func erroredInfo(raw string) *torrents.Info {
	return &torrents.Info{ID: testHash, Name: "Test.Torrent", RawState: raw, Class: torrents.StateErrored}
}

func repeatInfo(info *torrents.Info, n int) []*torrents.Info {
	out := make([]*torrents.Info, n)
	for i := range out {
		out[i] = info
	}
	return out
}

func testBackgroundConfig() domain.BackgroundConfig {
	return domain.BackgroundConfig{
		MaxWorkers:        2,
		RecheckTimeout:    2 * time.Second,
		StallTimeout:      25 * time.Millisecond,
		PollInterval:      2 * time.Millisecond,
		QuickStartTimeout: 50 * time.Millisecond,
	}
}

func collectResult(t *testing.T, ch <-chan taskResult) taskResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for completion callback")
		return taskResult{}
	}
}

func drain(t *testing.T, m *TaskManager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Wait(ctx))
}

func TestTaskManagerSupervisesRecheckToResume(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{
		infos:    []*torrents.Info{checkingInfo(0.2), checkingInfo(0.6), activeInfo()},
		resumeOK: true,
	}
	m := NewTaskManager(testBackgroundConfig(), prober)

	results := make(chan taskResult, 1)
	task, ok := m.reserve(testHash, func(ok bool, msg string) { results <- taskResult{ok, msg} })
	require.True(t, ok)
	m.start(task)

	r := collectResult(t, results)
	require.True(t, r.ok)
	require.Equal(t, "Recheck completed and torrent resumed", r.msg)

	drain(t, m)
	require.Zero(t, m.Active())
	_, tracked := m.Status(testHash)
	require.False(t, tracked)
}

func TestTaskManagerAtMostOnePerHash(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{infos: []*torrents.Info{activeInfo()}, resumeOK: true}
	m := NewTaskManager(testBackgroundConfig(), prober)

	results := make(chan taskResult, 1)
	task, ok := m.reserve(testHash, func(ok bool, msg string) { results <- taskResult{ok, msg} })
	require.True(t, ok)

	_, second := m.reserve(testHash, nil)
	require.False(t, second, "hash slot must not be claimable twice")

	m.start(task)
	collectResult(t, results)
	drain(t, m)

	// The slot frees up once the task reaches a terminal state.
	task, ok = m.reserve(testHash, nil)
	require.True(t, ok)
	m.abort(task)
	require.Zero(t, m.Active())
}

func TestTaskManagerErrorStateFails(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{infos: []*torrents.Info{checkingInfo(0.1), erroredInfo("missingFiles")}}
	m := NewTaskManager(testBackgroundConfig(), prober)

	results := make(chan taskResult, 1)
	task, ok := m.reserve(testHash, func(ok bool, msg string) { results <- taskResult{ok, msg} })
	require.True(t, ok)
	m.start(task)

	r := collectResult(t, results)
	require.False(t, r.ok)
	require.Equal(t, "Torrent in error state: missingFiles", r.msg)
	drain(t, m)
}

func TestTaskManagerTorrentDisappears(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{infos: []*torrents.Info{checkingInfo(0.1), nil}}
	m := NewTaskManager(testBackgroundConfig(), prober)

	results := make(chan taskResult, 1)
	task, ok := m.reserve(testHash, func(ok bool, msg string) { results <- taskResult{ok, msg} })
	require.True(t, ok)
	m.start(task)

	r := collectResult(t, results)
	require.False(t, r.ok)
	require.Equal(t, "Torrent disappeared during recheck", r.msg)
	drain(t, m)
}

func TestTaskManagerCancelStopsSupervision(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{infos: []*torrents.Info{checkingInfo(0.3)}}
	m := NewTaskManager(testBackgroundConfig(), prober)

	results := make(chan taskResult, 1)
	task, ok := m.reserve(testHash, func(ok bool, msg string) { results <- taskResult{ok, msg} })
	require.True(t, ok)
	m.start(task)

	require.Eventually(t, func() bool {
		status, tracked := m.Status(testHash)
		return tracked && status == torrents.TaskRunning
	}, 2*time.Second, time.Millisecond)

	require.True(t, m.Cancel(testHash))

	r := collectResult(t, results)
	require.False(t, r.ok)
	require.Equal(t, "Cancelled", r.msg)
	drain(t, m)
	require.False(t, m.Cancel(testHash), "terminal task is no longer cancellable")
}

func TestTaskManagerStallWarnsButKeepsWaiting(t *testing.T) {
	t.Parallel()

	// Progress sits at 0.5 well past the stall timeout before completing.
	script := repeatInfo(checkingInfo(0.5), 30)
	script = append(script, activeInfo())
	prober := &fakeProber{infos: script, resumeOK: true}
	m := NewTaskManager(testBackgroundConfig(), prober)

	results := make(chan taskResult, 1)
	task, ok := m.reserve(testHash, func(ok bool, msg string) { results <- taskResult{ok, msg} })
	require.True(t, ok)
	m.start(task)

	r := collectResult(t, results)
	require.True(t, r.ok, "a stall must not abort the task")
	require.Equal(t, "Recheck completed and torrent resumed", r.msg)
	drain(t, m)
}

func TestTaskManagerRecheckCeiling(t *testing.T) {
	t.Parallel()

	cfg := testBackgroundConfig()
	cfg.RecheckTimeout = 20 * time.Millisecond
	prober := &fakeProber{infos: []*torrents.Info{checkingInfo(0.1)}}
	m := NewTaskManager(cfg, prober)

	results := make(chan taskResult, 1)
	task, ok := m.reserve(testHash, func(ok bool, msg string) { results <- taskResult{ok, msg} })
	require.True(t, ok)
	m.start(task)

	r := collectResult(t, results)
	require.False(t, r.ok)
	require.Contains(t, r.msg, "Recheck timed out")
	drain(t, m)
}

func TestTaskManagerResumeBudgetExhausted(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{infos: []*torrents.Info{activeInfo()}, resumeOK: false}
	m := NewTaskManager(testBackgroundConfig(), prober)

	results := make(chan taskResult, 1)
	task, ok := m.reserve(testHash, func(ok bool, msg string) { results <- taskResult{ok, msg} })
	require.True(t, ok)
	m.start(task)

	r := collectResult(t, results)
	require.True(t, r.ok, "an unconfirmed resume on a healthy torrent still counts")
	require.Equal(t, "Recheck completed", r.msg)

	_, resumes := prober.counts()
	require.Equal(t, resumeAttempts, resumes)
	drain(t, m)
}

func TestTaskManagerResumeErrorsRetry(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{
		infos:     []*torrents.Info{activeInfo()},
		resumeErr: errors.New("connection refused"),
	}
	m := NewTaskManager(testBackgroundConfig(), prober)

	results := make(chan taskResult, 1)
	task, ok := m.reserve(testHash, func(ok bool, msg string) { results <- taskResult{ok, msg} })
	require.True(t, ok)
	m.start(task)

	r := collectResult(t, results)
	require.True(t, r.ok)
	require.Equal(t, "Recheck completed", r.msg)

	_, resumes := prober.counts()
	require.Equal(t, resumeAttempts, resumes)
	drain(t, m)
}

func TestTaskManagerCallbackPanicContained(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{infos: []*torrents.Info{activeInfo()}, resumeOK: true}
	m := NewTaskManager(testBackgroundConfig(), prober)

	called := make(chan struct{})
	task, ok := m.reserve(testHash, func(ok bool, msg string) {
		close(called)
		panic("callback exploded")
	})
	require.True(t, ok)
	m.start(task)

	select {
	case <-called:
	case <-time.After(5 * time.Second):
		t.Fatal("callback never ran")
	}

	drain(t, m)
	require.Zero(t, m.Active())

	// The manager survives the panic and the slot is reusable.
	task, ok = m.reserve(testHash, nil)
	require.True(t, ok)
	m.abort(task)
}

func TestTaskManagerStatusLifecycle(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{
		infos:     []*torrents.Info{activeInfo()},
		resumeOK:  true,
		firstInfo: make(chan struct{}),
		hold:      make(chan struct{}),
	}
	m := NewTaskManager(testBackgroundConfig(), prober)

	results := make(chan taskResult, 1)
	task, ok := m.reserve(testHash, func(ok bool, msg string) { results <- taskResult{ok, msg} })
	require.True(t, ok)

	status, tracked := m.Status(testHash)
	require.True(t, tracked)
	require.Equal(t, torrents.TaskCreated, status)
	require.Equal(t, 1, m.Active())

	m.start(task)
	<-prober.firstInfo

	status, tracked = m.Status(testHash)
	require.True(t, tracked)
	require.Equal(t, torrents.TaskRunning, status)

	close(prober.hold)
	r := collectResult(t, results)
	require.True(t, r.ok)

	drain(t, m)
	_, tracked = m.Status(testHash)
	require.False(t, tracked)
}

func TestTaskManagerShutdownCancelsEverything(t *testing.T) {
	t.Parallel()

	proberA := &fakeProber{infos: []*torrents.Info{checkingInfo(0.2)}}
	m := NewTaskManager(testBackgroundConfig(), proberA)

	results := make(chan taskResult, 2)
	for _, hash := range []string{testHash, "1111111111222222222233333333334444444444"} {
		task, ok := m.reserve(hash, func(ok bool, msg string) { results <- taskResult{ok, msg} })
		require.True(t, ok)
		m.start(task)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	for i := 0; i < 2; i++ {
		r := collectResult(t, results)
		require.False(t, r.ok)
	}
	require.Zero(t, m.Active())
}
