// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package qbittorrent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/tolokarr/internal/torrents"
)

// RecheckAndResumeAsync issues a recheck and hands the wait-then-resume to the
// task manager. The per-hash slot is claimed before the recheck command goes
// out, so a second caller arriving mid-start still sees it as in progress.
func (c *Client) RecheckAndResumeAsync(ctx context.Context, id string, onComplete torrents.CompletionFunc) (bool, string) {
	info, err := c.Info(ctx, id)
	if err != nil {
		return false, fmt.Sprintf("Failed to check torrent: %v", err)
	}
	if info == nil {
		return false, "Torrent not found"
	}

	task, ok := c.tasks.reserve(id, onComplete)
	if !ok {
		return true, "Recheck already in progress (monitored)"
	}

	if err := c.Recheck(ctx, id); err != nil {
		c.tasks.abort(task)
		return false, fmt.Sprintf("Failed to start recheck: %v", err)
	}

	last, checking := c.quickWaitForChecking(ctx, id)
	if checking {
		c.tasks.start(task)
		return true, "Recheck checking, monitoring in background"
	}

	if last != nil {
		switch last.Class {
		case torrents.StateActive:
			// The check finished inside the quick window and the torrent
			// went straight back to work. Nothing left to supervise.
			c.tasks.abort(task)
			return true, fmt.Sprintf("Torrent already active: %s", last.RawState)
		case torrents.StateErrored:
			c.tasks.abort(task)
			return false, fmt.Sprintf("Torrent in error state: %s", last.RawState)
		}
	}

	c.tasks.start(task)
	return true, "Recheck pending, monitoring in background"
}

// RecheckStatus reports the supervised task state for id, if any.
func (c *Client) RecheckStatus(id string) (torrents.TaskStatus, bool) {
	return c.tasks.Status(id)
}

// CancelRecheck cooperatively cancels the supervised task for id.
func (c *Client) CancelRecheck(id string) bool {
	return c.tasks.Cancel(id)
}

// quickWaitForChecking polls briefly after a recheck command, long enough to
// notice whether the check actually starts. It returns early once the torrent
// is checking, active, or errored; stopped and unrecognized states keep it
// polling until the window closes.
func (c *Client) quickWaitForChecking(ctx context.Context, id string) (*torrents.Info, bool) {
	deadline := time.Now().Add(c.background.QuickStartTimeout)
	var last *torrents.Info

	for {
		info, err := c.Info(ctx, id)
		if err != nil {
			log.Debug().Err(err).Str("hash", id).Msg("Quick-start poll failed, will retry")
		} else if info != nil {
			last = info
			switch info.Class {
			case torrents.StateChecking:
				return last, true
			case torrents.StateActive, torrents.StateErrored:
				return last, false
			}
		}

		if time.Now().After(deadline) {
			return last, false
		}
		if err := torrents.Sleep(ctx, c.timeouts.Poll); err != nil {
			return last, false
		}
	}
}
