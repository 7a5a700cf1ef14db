// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package httphelpers contains shared plumbing for outbound HTTP calls.
package httphelpers

import (
	"io"
	"net/http"
)

const drainLimit = 64 << 10

// DrainAndClose discards any unread response body and closes it so the
// underlying connection can be reused.
func DrainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))
	_ = resp.Body.Close()
}
