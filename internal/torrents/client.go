// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package torrents defines the capability contract shared by the torrent
// client variants, the state partition their statuses map onto, and the retry
// executor their verified operations run through.
package torrents

import "context"

// StateClass partitions client-specific torrent statuses into the four groups
// the lifecycle logic cares about. Unrecognized statuses map to StateUnknown,
// which callers treat as "keep polling", never as a terminal answer.
type StateClass int

const (
	StateUnknown StateClass = iota
	StateActive
	StateChecking
	StateStopped
	StateErrored
)

func (c StateClass) String() string {
	switch c {
	case StateActive:
		return "active"
	case StateChecking:
		return "checking"
	case StateStopped:
		return "stopped"
	case StateErrored:
		return "error"
	default:
		return "unknown"
	}
}

// Info is a client-agnostic view of one torrent.
type Info struct {
	ID       string
	Name     string
	RawState string
	Class    StateClass
	Progress float64
}

// File is a path inside a torrent, possibly nested under a top-level folder.
type File struct {
	Name     string
	Size     int64
	Progress float64
}

// AddOptions carries the submission parameters for a new torrent.
type AddOptions struct {
	Category    string
	Tags        []string
	Paused      bool
	DownloadDir string
}

// CompletionFunc receives the terminal outcome of a supervised recheck
// exactly once.
type CompletionFunc func(ok bool, message string)

// TaskStatus is the lifecycle state of a supervised background task.
type TaskStatus string

const (
	TaskCreated   TaskStatus = "created"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Client is the capability set every torrent client variant provides.
//
// Verified operations return (false, nil) when the post-condition was never
// observed within the retry budget; that is an expected outcome the caller
// logs and maps to a failed result. A non-nil error means the remote kept
// failing transport-wise until attempts ran out and is treated as run-fatal.
type Client interface {
	// Name identifies the variant, e.g. "qbittorrent".
	Name() string

	// AddTorrent submits raw torrent bytes and returns the content-derived
	// identifier once it is visible. An empty id with nil error means the
	// torrent was already present (or lost an add race).
	AddTorrent(ctx context.Context, data []byte, opts AddOptions) (string, error)

	// Info returns the torrent with the given id, or nil when absent.
	Info(ctx context.Context, id string) (*Info, error)

	// Files lists the torrent's current file paths.
	Files(ctx context.Context, id string) ([]File, error)

	// RenameFile succeeds once the new path exists and the old one is gone.
	RenameFile(ctx context.Context, id, oldPath, newPath string) (bool, error)

	// RenameFolder succeeds once the new top-level segment exists and the old
	// one is gone.
	RenameFolder(ctx context.Context, id, oldPath, newPath string) (bool, error)

	// RenameTorrent succeeds once the summary name equals the target.
	RenameTorrent(ctx context.Context, id, name string) (bool, error)

	// Resume succeeds once the torrent reports an active state.
	Resume(ctx context.Context, id string) (bool, error)

	// Delete succeeds once the torrent is gone. Deleting an absent id is a
	// success and issues no remote call.
	Delete(ctx context.Context, id string, deleteFiles bool) (bool, error)

	// Recheck requests an integrity check, fire and forget.
	Recheck(ctx context.Context, id string) error

	// EndSession releases the client session. Idempotent.
	EndSession(ctx context.Context) error
}

// AsyncRechecker is the optional capability of clients that can supervise a
// long recheck in the background. Callers type-assert for it and fall back to
// Recheck plus Resume when it is absent.
type AsyncRechecker interface {
	// RecheckAndResumeAsync starts a recheck and hands monitoring plus the
	// eventual resume to a supervised background task. The message explains
	// the immediate outcome either way.
	RecheckAndResumeAsync(ctx context.Context, id string, onComplete CompletionFunc) (started bool, message string)

	// RecheckStatus reports the supervised task state for id, if any.
	RecheckStatus(id string) (TaskStatus, bool)

	// CancelRecheck cooperatively cancels the supervised task for id.
	CancelRecheck(id string) bool
}
