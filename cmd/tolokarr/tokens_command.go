// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/autobrr/tolokarr/internal/naming"
)

// newTokensCommand prints how a filename tokenizes, so users can pick the
// episode index for --index without guessing.
func newTokensCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tokens <filename>",
		Short: "Show the numeric tokens of a filename and their positions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.Join(args, " ")
			candidates := naming.TokensWithContext(name)
			if len(candidates) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No numeric tokens")
				return nil
			}
			for i, c := range candidates {
				fmt.Fprintf(cmd.OutOrStdout(), "%2d: %-6s context %q\n", i, c.Value, c.Before+c.Value+c.After)
			}
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the tolokarr version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tolokarr %s\n", version)
		},
	}
}
