// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package organizer

import (
	"regexp"
	"strings"

	"github.com/moistari/rls"

	"github.com/autobrr/tolokarr/internal/models"
	"github.com/autobrr/tolokarr/internal/toloka"
	"github.com/autobrr/tolokarr/pkg/stringutils"
)

// AddRequest is the raw user input for tracking a new title. Empty fields are
// filled from the release metadata.
type AddRequest struct {
	Title        string
	CodeName     string
	Season       string
	EpisodeIndex int
	Correction   int
	ReleaseGroup string
	Meta         string
	DownloadDir  string
	Partial      bool
}

// tracker titles carry the original name behind a slash, e.g.
// "Моє шоу / My Show (2024)"; the trailing segment names the release best.
func DeriveTitle(resultName string) string {
	name := strings.TrimSpace(resultName)
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	return strings.TrimSpace(name)
}

var yearSuffix = regexp.MustCompile(`\s*\((?:19|20)\d{2}\)`)

// DeriveCodeName turns a display title into a compact store key: the
// bracketed year goes, accents are folded, and only letters and digits stay.
func DeriveCodeName(title string) string {
	name := yearSuffix.ReplaceAllString(title, "")
	name = stringutils.NormalizeUnicode(name)
	return stringutils.Alphanumeric(name)
}

// TitleFromRequest builds the record for a fresh add. Release-group and meta
// fall back to what the release name parses to; the code name falls back to a
// derivation from the display title, suffixed with the season for partial
// seasons so full and partial records never collide.
func TitleFromRequest(req AddRequest, release *toloka.Release) *models.Title {
	name := req.Title
	if name == "" {
		name = DeriveTitle(release.Title)
	}

	parsed := rls.ParseString(release.Title)

	group := req.ReleaseGroup
	if group == "" {
		group = parsed.Group
	}
	meta := req.Meta
	if meta == "" {
		meta = suggestMeta(parsed)
	}

	season := padSeason(req.Season)

	code := req.CodeName
	if code == "" {
		code = DeriveCodeName(name)
		if req.Partial {
			code += "S" + season
		}
	}

	title := models.NewTitle(code)
	title.TorrentName = name
	title.SeasonNumber = season
	title.ReleaseGroup = group
	title.Meta = meta
	title.DownloadDir = req.DownloadDir
	title.IsPartialSeason = req.Partial
	title.AdjustedEpisodeNumber = req.Correction
	if req.EpisodeIndex >= 0 {
		title.EpisodeIndex = req.EpisodeIndex
	}
	return title
}

func suggestMeta(parsed rls.Release) string {
	var parts []string
	if parsed.Resolution != "" {
		parts = append(parts, parsed.Resolution)
	}
	if parsed.Source != "" {
		parts = append(parts, parsed.Source)
	}
	return strings.Join(parts, " ")
}

func padSeason(season string) string {
	if len(season) == 1 {
		return "0" + season
	}
	return season
}
