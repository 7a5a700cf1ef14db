// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package torrents

import (
	"bytes"
	"fmt"

	"github.com/anacrolix/torrent/metainfo"
)

// InfoHash computes the hex v1 info-hash of raw torrent bytes. Deriving the
// identifier before submission lets adds be verified without trusting the
// remote response body.
func InfoHash(data []byte) (string, error) {
	mi, err := metainfo.Load(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse torrent metainfo: %w", err)
	}
	return mi.HashInfoBytes().HexString(), nil
}
