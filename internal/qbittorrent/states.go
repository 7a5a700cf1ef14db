// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package qbittorrent

import (
	qbt "github.com/autobrr/go-qbittorrent"

	"github.com/autobrr/tolokarr/internal/torrents"
)

// activeStates lists the states in which a torrent is making progress or
// queued to make progress.
var activeStates = []qbt.TorrentState{
	qbt.TorrentStateDownloading,
	qbt.TorrentStateUploading,
	qbt.TorrentStateStalledDl,
	qbt.TorrentStateStalledUp,
	qbt.TorrentStateForcedDl,
	qbt.TorrentStateForcedUp,
	qbt.TorrentStateAllocating,
	qbt.TorrentStateQueuedDl,
	qbt.TorrentStateQueuedUp,
	qbt.TorrentStateMetaDl,
}

// checkingStates lists the integrity-check states the recheck supervisor
// watches for.
var checkingStates = []qbt.TorrentState{
	qbt.TorrentStateCheckingDl,
	qbt.TorrentStateCheckingUp,
	qbt.TorrentStateCheckingResumeData,
}

var stoppedStates = []qbt.TorrentState{
	qbt.TorrentStatePausedDl,
	qbt.TorrentStatePausedUp,
	qbt.TorrentStateStoppedDl,
	qbt.TorrentStateStoppedUp,
}

var erroredStates = []qbt.TorrentState{
	qbt.TorrentStateError,
	qbt.TorrentStateMissingFiles,
	qbt.TorrentStateUnknown,
}

// Classify maps a qBittorrent state onto the shared partition. Checking wins
// over active for the two states in both camps; states outside every list come
// back as StateUnknown, which callers treat as "keep polling".
func Classify(state qbt.TorrentState) torrents.StateClass {
	switch {
	case stateIn(state, checkingStates):
		return torrents.StateChecking
	case stateIn(state, activeStates):
		return torrents.StateActive
	case stateIn(state, stoppedStates):
		return torrents.StateStopped
	case stateIn(state, erroredStates):
		return torrents.StateErrored
	default:
		return torrents.StateUnknown
	}
}

// progressing reports whether the state satisfies resume verification. A
// torrent busy checking counts: qBittorrent refuses to resume mid-check, and
// the check finishing transitions it onward without another resume.
func progressing(state qbt.TorrentState) bool {
	if stateIn(state, activeStates) {
		return true
	}
	return state == qbt.TorrentStateCheckingDl || state == qbt.TorrentStateCheckingUp
}

func stateIn(state qbt.TorrentState, states []qbt.TorrentState) bool {
	for _, s := range states {
		if s == state {
			return true
		}
	}
	return false
}
