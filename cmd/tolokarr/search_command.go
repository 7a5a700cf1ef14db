// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/autobrr/tolokarr/internal/toloka"
)

func newSearchCommand(cc *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the tracker and print the ranked results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cc.ensureConfig()
			if err != nil {
				return err
			}

			indexer, err := toloka.NewClient(cfg.Toloka.BaseURL, cfg.Toloka.Username, cfg.Toloka.Password, cfg.Timeouts.Request)
			if err != nil {
				return err
			}

			query := strings.Join(args, " ")
			results, err := indexer.Search(cmd.Context(), query)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No results")
				return nil
			}

			for i, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%3d. %s\n     %s  seeders=%d  size=%s  published=%s\n",
					i+1, r.Title, r.GUID, r.Seeders, r.Size, r.PublishDate)
			}
			return nil
		},
	}
	return cmd
}
