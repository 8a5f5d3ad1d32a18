// Package browsecmder provides the browse command, a TUI for searching and
// reading stored memories.
package browsecmder

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/engram/pkg/config"
	"github.com/papercomputeco/engram/pkg/dotdir"
	"github.com/papercomputeco/engram/pkg/logger"
	"github.com/papercomputeco/engram/pkg/search"
	"github.com/papercomputeco/engram/pkg/store"
)

const browseLongDesc string = `Browse stored memories in a TUI.

Type keywords to search, move through the ranked results, and open a
memory to read it in full. Matching runs against topics first and falls
back to content, the same ranking the think tool uses.

Examples:
  engram browse
  engram browse deployment rollback`

const browseShortDesc string = "Browse - interactive memory search"

type browseCommander struct {
	maxResults uint
}

func NewBrowseCmd() *cobra.Command {
	cmder := &browseCommander{}

	cmd := &cobra.Command{
		Use:   "browse [keywords...]",
		Short: browseShortDesc,
		Long:  browseLongDesc,
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return cmder.run(cmd.Context(), configDir, args)
		},
	}

	config.AddUintFlag(cmd, config.Flags, config.FlagMaxResults, &cmder.maxResults)

	return cmd
}

func (c *browseCommander) run(ctx context.Context, configDir string, keywords []string) error {
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg, err := cfger.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	root := cfg.Storage.Root
	if root == "" {
		root, err = dotdir.NewManager().Target(configDir)
		if err != nil {
			return fmt.Errorf("resolving store root: %w", err)
		}
	}

	maxResults := cfg.Search.MaxResults
	if c.maxResults > 0 {
		maxResults = c.maxResults
	}

	st, err := store.New(store.Config{Root: root}, nil, nil, logger.Nop())
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	engine := search.New(search.Config{
		MaxResults: int(maxResults),
	}, st, logger.Nop())

	return runBrowseTUI(ctx, st, engine, strings.Join(keywords, " "))
}
