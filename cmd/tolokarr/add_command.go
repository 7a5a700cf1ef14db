// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/autobrr/tolokarr/internal/models"
	"github.com/autobrr/tolokarr/internal/services/organizer"
	"github.com/autobrr/tolokarr/internal/toloka"
)

func newAddCommand(cc *commandContext) *cobra.Command {
	var req organizer.AddRequest
	var topicURL, searchName string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Track a release and add its torrent",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if topicURL == "" && searchName == "" {
				return errors.New("either --url or --name is required")
			}
			if req.Season == "" {
				return errors.New("--season is required")
			}

			cfg, err := cc.ensureConfig()
			if err != nil {
				return err
			}

			rt, err := cc.buildRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			var release *toloka.Release
			if topicURL != "" {
				guid, err := guidFromTopicURL(topicURL)
				if err != nil {
					return err
				}
				release, err = rt.indexer.GetRelease(cmd.Context(), guid)
				if err != nil {
					return err
				}
			} else {
				results, err := rt.indexer.Search(cmd.Context(), searchName)
				if err != nil {
					return err
				}
				release, err = promptReleaseSelection(cmd, results)
				if err != nil {
					return err
				}
			}

			if req.DownloadDir == "" {
				req.DownloadDir = cfg.DownloadDir
			}
			if req.Meta == "" {
				req.Meta = cfg.DefaultMeta
			}
			title := organizer.TitleFromRequest(req, release)

			res, err := rt.service().Add(cmd.Context(), title, release)
			if err != nil {
				return err
			}
			rt.waitForBackground(cmd.Context())
			printResult(cmd, title.CodeName, res)
			return nil
		},
	}

	cmd.Flags().StringVar(&topicURL, "url", "", "Toloka topic URL or id")
	cmd.Flags().StringVar(&searchName, "name", "", "search the tracker instead of passing a URL")
	cmd.Flags().StringVar(&req.Title, "title", "", "display title (derived from the release when empty)")
	cmd.Flags().StringVar(&req.CodeName, "code-name", "", "store key (derived from the title when empty)")
	cmd.Flags().StringVar(&req.Season, "season", "", "season number, e.g. 01")
	cmd.Flags().IntVar(&req.EpisodeIndex, "index", models.UnresolvedEpisodeIndex, "position of the episode number among the numeric tokens")
	cmd.Flags().IntVar(&req.Correction, "correction", 0, "signed episode-number adjustment")
	cmd.Flags().StringVar(&req.ReleaseGroup, "release-group", "", "release group for the canonical names")
	cmd.Flags().StringVar(&req.Meta, "meta", "", "meta tag for the canonical names")
	cmd.Flags().StringVar(&req.DownloadDir, "path", "", "download directory")
	cmd.Flags().BoolVar(&req.Partial, "partial", false, "torrent bundles a subset of the season")

	return cmd
}

// guidFromTopicURL accepts a full topic URL or a bare topic id and returns
// the t-prefixed topic path the tracker uses as guid.
func guidFromTopicURL(raw string) (string, error) {
	if !strings.Contains(raw, "/") {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Wrapf(err, "parse topic url %q", raw)
	}
	guid := strings.Trim(u.Path, "/")
	if guid == "" {
		return "", errors.Errorf("topic url %q has no topic path", raw)
	}
	return guid, nil
}
