// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package naming derives canonical episode file, folder, and torrent names
// from the numeric tokens embedded in release filenames. Everything in here is
// pure; path strings go in, path strings come out.
package naming

import (
	"fmt"
	"strconv"
	"strings"
)

// TokenContext is a numeric token together with up to two characters of the
// text on either side, enough for a human to tell a season marker from an
// episode or a resolution.
type TokenContext struct {
	Value  string
	Before string
	After  string
}

// IndexResolver supplies the episode token index and signed adjustment for a
// title whose position has not been resolved yet. Implementations typically
// prompt the user with the candidate tokens of the first file; tests supply a
// canned answer.
type IndexResolver func(candidates []TokenContext) (index int, adjustment int, err error)

// Tokens returns every maximal digit run in name, left to right.
// "S01E02 - 1080p" yields ["01", "02", "1080"].
func Tokens(name string) []string {
	var tokens []string
	start := -1
	for i, r := range name {
		if r >= '0' && r <= '9' {
			if start == -1 {
				start = i
			}
			continue
		}
		if start != -1 {
			tokens = append(tokens, name[start:i])
			start = -1
		}
	}
	if start != -1 {
		tokens = append(tokens, name[start:])
	}
	return tokens
}

// TokensWithContext returns the numeric tokens of name annotated with their
// surrounding characters.
func TokensWithContext(name string) []TokenContext {
	runes := []rune(name)
	var out []TokenContext
	for i := 0; i < len(runes); {
		if !isDigit(runes[i]) {
			i++
			continue
		}
		j := i
		for j < len(runes) && isDigit(runes[j]) {
			j++
		}
		out = append(out, TokenContext{
			Value:  string(runes[i:j]),
			Before: string(runes[max(0, i-2):i]),
			After:  string(runes[j:min(len(runes), j+2)]),
		})
		i = j
	}
	return out
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// ShiftNumber adds delta to a zero-padded numeric token, preserving the
// original width. The width grows only when the new value no longer fits:
// "02"+1 is "03", "9"+1 is "10".
func ShiftNumber(token string, delta int) (string, error) {
	n, err := strconv.Atoi(token)
	if err != nil {
		return "", fmt.Errorf("parse numeric token %q: %w", token, err)
	}
	n += delta
	if n < 0 {
		return "", fmt.Errorf("token %q shifted by %d is negative", token, delta)
	}
	return fmt.Sprintf("%0*d", len(token), n), nil
}

// EpisodeNumber extracts the token at index from name and applies the signed
// adjustment.
func EpisodeNumber(name string, index, adjust int) (string, error) {
	tokens := Tokens(name)
	if index < 0 || index >= len(tokens) {
		return "", fmt.Errorf("episode index %d out of range for %q (%d tokens)", index, name, len(tokens))
	}
	return ShiftNumber(tokens[index], adjust)
}

// Scheme carries the fixed naming parts of a tracked title.
type Scheme struct {
	Show         string
	Season       string
	Meta         string
	ReleaseGroup string
	DotStyle     bool
}

// FileName renders the canonical name for a single episode file.
func (s Scheme) FileName(episode, ext string) string {
	if s.DotStyle {
		return CollapseDots(fmt.Sprintf("%s.S%sE%s.%s%s.%s", s.Show, s.Season, episode, s.Meta, s.ReleaseGroup, ext))
	}
	return fmt.Sprintf("%s S%sE%s %s-%s.%s", s.Show, s.Season, episode, s.Meta, s.ReleaseGroup, ext)
}

// SeasonName renders the folder and torrent name for a full season.
func (s Scheme) SeasonName() string {
	return s.collapse(fmt.Sprintf("%s S%s %s[%s]", s.Show, s.Season, s.Meta, s.ReleaseGroup))
}

// EpisodeRangeName renders the folder and torrent name for a partial season
// covering episodes minEp through maxEp.
func (s Scheme) EpisodeRangeName(minEp, maxEp int) string {
	var name string
	if minEp == maxEp {
		name = fmt.Sprintf("%s S%sE%02d %s[%s]", s.Show, s.Season, minEp, s.Meta, s.ReleaseGroup)
	} else {
		name = fmt.Sprintf("%s S%sE%02d-E%02d %s[%s]", s.Show, s.Season, minEp, maxEp, s.Meta, s.ReleaseGroup)
	}
	return s.collapse(name)
}

// BaseFolder is the plain full-season folder a partial season is reset to
// before its torrent is replaced.
func (s Scheme) BaseFolder() string {
	return fmt.Sprintf("%s S%s", s.Show, s.Season)
}

func (s Scheme) collapse(name string) string {
	if s.DotStyle {
		return CollapseDots(name)
	}
	return name
}

// CollapseDots replaces every whitespace run with a single dot.
func CollapseDots(name string) string {
	return strings.Join(strings.Fields(name), ".")
}

// NormalizeSeparators rewrites backslashes to the canonical forward slash.
// qBittorrent reports forward slashes; Windows-flavored inputs are tolerated.
func NormalizeSeparators(path string) string {
	return strings.ReplaceAll(path, "\\", "/")
}

// TopFolder returns the first path segment, or "" when the path has no
// directory component.
func TopFolder(path string) string {
	path = NormalizeSeparators(path)
	idx := strings.Index(path, "/")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

// BaseName returns the final path segment.
func BaseName(path string) string {
	path = NormalizeSeparators(path)
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

// ReplaceBase swaps the final segment of path for name, keeping any leading
// directories.
func ReplaceBase(path, name string) string {
	path = NormalizeSeparators(path)
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[:idx+1] + name
	}
	return name
}

// Extension returns the suffix after the final dot of the base name, without
// the dot.
func Extension(path string) string {
	base := BaseName(path)
	if idx := strings.LastIndex(base, "."); idx >= 0 && idx < len(base)-1 {
		return base[idx+1:]
	}
	return ""
}
