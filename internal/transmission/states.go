// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package transmission

import (
	"github.com/hekmon/transmissionrpc/v3"

	"github.com/autobrr/tolokarr/internal/torrents"
)

// Classify maps a transmission status onto the shared partition. Isolated
// torrents cannot make progress without intervention, so they land on the
// error side.
func Classify(status transmissionrpc.TorrentStatus) torrents.StateClass {
	switch status {
	case transmissionrpc.TorrentStatusCheckWait, transmissionrpc.TorrentStatusCheck:
		return torrents.StateChecking
	case transmissionrpc.TorrentStatusDownloadWait, transmissionrpc.TorrentStatusDownload,
		transmissionrpc.TorrentStatusSeedWait, transmissionrpc.TorrentStatusSeed:
		return torrents.StateActive
	case transmissionrpc.TorrentStatusStopped:
		return torrents.StateStopped
	case transmissionrpc.TorrentStatusIsolated:
		return torrents.StateErrored
	default:
		return torrents.StateUnknown
	}
}

// progressing reports whether the status satisfies resume verification.
// Checking counts, same as on the qBittorrent side: a started torrent that is
// busy verifying moves on by itself once the check finishes.
func progressing(status transmissionrpc.TorrentStatus) bool {
	switch Classify(status) {
	case torrents.StateActive, torrents.StateChecking:
		return true
	default:
		return false
	}
}
