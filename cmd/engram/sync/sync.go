// Package synccmder provides the `engram sync` CLI command.
package synccmder

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/engram/pkg/cliui"
	"github.com/papercomputeco/engram/pkg/config"
	"github.com/papercomputeco/engram/pkg/dotdir"
	"github.com/papercomputeco/engram/pkg/gitsync"
	"github.com/papercomputeco/engram/pkg/logger"
)

type syncCommander struct {
	remote  string
	verbose bool
}

const syncLongDesc string = `Synchronize local memories with the configured git remote.

Pulls remote changes into the local store, preferring the remote side on
conflicting memory files, and pushes anything committed locally. Local
memory files are backed up before the pull and restored if it fails.

Examples:
  engram sync
  engram sync -r git@github.com:you/memories.git`

// NewSyncCmd creates the sync cobra command.
func NewSyncCmd() *cobra.Command {
	cmder := &syncCommander{}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize memories with the git remote",
		Long:  syncLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return cmder.run(cmd.Context(), configDir)
		},
	}

	cmd.Flags().StringVarP(&cmder.remote, "remote", "r", "", "Git remote URL to mirror memories to")
	cmd.Flags().BoolVarP(&cmder.verbose, "verbose", "v", false, "Show repository details")

	return cmd
}

func (c *syncCommander) run(ctx context.Context, configDir string) error {
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

	remote := strings.TrimSpace(c.remote)
	if remote == "" {
		remote = cfg.Sync.Remote
	}
	if remote == "" {
		return fmt.Errorf("no git remote configured; set sync.remote or pass --remote")
	}

	if c.verbose {
		fmt.Printf("  %s %s\n", cliui.KeyStyle.Render("Store root:"), cliui.DimStyle.Render(root))
		fmt.Printf("  %s %s\n\n", cliui.KeyStyle.Render("Remote:"), cliui.DimStyle.Render(remote))
	}

	plog := logger.Pretty(c.verbose)

	manager, err := gitsync.NewManager(gitsync.Config{
		Root:          root,
		RemoteURL:     remote,
		RetryAttempts: cfg.Sync.RetryAttempts,
		RetryDelay:    time.Duration(cfg.Sync.RetryDelayMS) * time.Millisecond,
	}, nil, logger.Nop())
	if err != nil {
		return err
	}

	info := manager.Info(ctx)
	plog.Debug("repository state",
		"state", info.State,
		"branch", info.DefaultBranch,
		"needs_sync", info.NeedsSync,
	)

	var result gitsync.Result
	if err := cliui.Step(os.Stdout, "Synchronizing memories", func() error {
		if r := manager.Initialize(ctx); !r.Success {
			return fmt.Errorf("%s", r.Message)
		}

		result = manager.Synchronize(ctx)
		if !result.Success {
			return fmt.Errorf("%s", result.Message)
		}
		return nil
	}); err != nil {
		return err
	}

	fmt.Printf("\n  %s %s\n\n", cliui.SuccessMark, result.Message)
	return nil
}
