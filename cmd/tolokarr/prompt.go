// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/autobrr/tolokarr/internal/naming"
	"github.com/autobrr/tolokarr/internal/toloka"
)

// promptEpisodeIndex is the interactive naming.IndexResolver. The workflow
// core never prompts; this is the one injection point for first-time
// episode-index selection.
func promptEpisodeIndex(candidates []naming.TokenContext) (int, int, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return 0, 0, errors.New("episode index is unresolved and stdin is not a terminal; pass --index (and --correction) explicitly")
	}

	fmt.Fprintln(os.Stderr, "Which numeric token is the episode number?")
	for i, c := range candidates {
		fmt.Fprintf(os.Stderr, "  [%d] %-6s context %q\n", i, c.Value, c.Before+c.Value+c.After)
	}

	reader := bufio.NewReader(os.Stdin)
	index, err := readInt(reader, fmt.Sprintf("Token index [0-%d]: ", len(candidates)-1))
	if err != nil {
		return 0, 0, err
	}
	if index < 0 || index >= len(candidates) {
		return 0, 0, errors.Errorf("token index %d out of range", index)
	}
	adjust, err := readInt(reader, "Episode adjustment (0 for none): ")
	if err != nil {
		return 0, 0, err
	}
	return index, adjust, nil
}

// promptReleaseSelection lets the user pick one search result by number.
func promptReleaseSelection(cmd *cobra.Command, results []toloka.Release) (*toloka.Release, error) {
	if len(results) == 0 {
		return nil, errors.New("no search results")
	}
	if len(results) == 1 {
		return &results[0], nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, errors.New("multiple search results and stdin is not a terminal; pass --url instead")
	}

	for i, r := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "%3d. %s (seeders %d, published %s)\n", i+1, r.Title, r.Seeders, r.PublishDate)
	}

	reader := bufio.NewReader(os.Stdin)
	n, err := readInt(reader, fmt.Sprintf("Result [1-%d]: ", len(results)))
	if err != nil {
		return nil, err
	}
	if n < 1 || n > len(results) {
		return nil, errors.Errorf("selection %d out of range", n)
	}
	return &results[n-1], nil
}

func readInt(reader *bufio.Reader, prompt string) (int, error) {
	fmt.Fprint(os.Stderr, prompt)
	line, err := reader.ReadString('\n')
	if err != nil {
		return 0, errors.Wrap(err, "read input")
	}
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0, errors.Wrapf(err, "parse %q", strings.TrimSpace(line))
	}
	return n, nil
}
