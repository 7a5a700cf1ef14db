// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package torrents

import "github.com/autobrr/tolokarr/internal/naming"

// HasPath reports whether files contains path, comparing with normalized
// separators.
func HasPath(files []File, path string) bool {
	want := naming.NormalizeSeparators(path)
	for _, f := range files {
		if naming.NormalizeSeparators(f.Name) == want {
			return true
		}
	}
	return false
}

// HasTopFolder reports whether any file sits under the given top-level folder.
func HasTopFolder(files []File, folder string) bool {
	for _, f := range files {
		if naming.TopFolder(f.Name) == folder {
			return true
		}
	}
	return false
}
