// Package statuscmder provides the status command for displaying the state
// of the local memory store and its git mirror.
package statuscmder

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/engram/pkg/cliui"
	"github.com/papercomputeco/engram/pkg/config"
	"github.com/papercomputeco/engram/pkg/dotdir"
	"github.com/papercomputeco/engram/pkg/gitsync"
	"github.com/papercomputeco/engram/pkg/logger"
	"github.com/papercomputeco/engram/pkg/store"
)

const statusLongDesc string = `Show the state of the memory store.

Reads the local .engram/ directory (or ~/.engram/) to display the store
root, memory and backup counts, and the git repository state including
the configured remote and whether local memories are behind it.

Examples:
  engram status`

const statusShortDesc string = "Show memory store state"

func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runStatus(cmd.Context(), configDir)
		},
	}

	return cmd
}

func runStatus(ctx context.Context, configDir string) error {
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

	storeConfig := store.Config{Root: root}

	fmt.Printf("\n  %s  %s\n", cliui.KeyStyle.Render("Store root:"), cliui.DimStyle.Render(root))

	st, err := store.New(storeConfig, nil, nil, logger.Nop())
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	paths, err := st.List()
	if err != nil {
		return fmt.Errorf("listing memories: %w", err)
	}
	fmt.Printf("  %s    %s\n", cliui.KeyStyle.Render("Memories:"), cliui.NameStyle.Render(strconv.Itoa(len(paths))))

	if backups, err := store.Info(storeConfig); err == nil && backups.Count > 0 {
		fmt.Printf("  %s     %s %s\n",
			cliui.KeyStyle.Render("Backups:"),
			cliui.NameStyle.Render(strconv.Itoa(backups.Count)),
			cliui.DimStyle.Render("(newest "+backups.Newest.Format(time.RFC3339)+")"),
		)
	}

	printRepository(ctx, cfg, root)

	fmt.Println()
	return nil
}

func printRepository(ctx context.Context, cfg *config.Config, root string) {
	remote := ""
	if cfg.Sync.Enabled {
		remote = cfg.Sync.Remote
	}

	manager, err := gitsync.NewManager(gitsync.Config{
		Root:      root,
		RemoteURL: remote,
	}, nil, logger.Nop())
	if err != nil {
		fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Repository:"), cliui.FailMark)
		return
	}

	info := manager.Info(ctx)

	fmt.Printf("\n  %s  %s\n", cliui.KeyStyle.Render("Repository:"), cliui.HashStyle.Render(string(info.State)))
	if info.DefaultBranch != "" {
		fmt.Printf("  %s      %s\n", cliui.KeyStyle.Render("Branch:"), cliui.NameStyle.Render(info.DefaultBranch))
	}

	switch {
	case remote == "":
		fmt.Printf("  %s      %s\n", cliui.KeyStyle.Render("Remote:"), cliui.DimStyle.Render("<not configured>"))
	case info.RemoteAccessible:
		fmt.Printf("  %s      %s\n", cliui.KeyStyle.Render("Remote:"), cliui.ValueStyle.Render(remote))
	default:
		fmt.Printf("  %s      %s %s\n",
			cliui.KeyStyle.Render("Remote:"),
			cliui.ValueStyle.Render(remote),
			cliui.DimStyle.Render("(unreachable)"),
		)
	}

	if info.NeedsSync {
		fmt.Printf("  %s Local memories are behind the remote. Run %s.\n",
			cliui.DimStyle.Render("●"), cliui.KeyStyle.Render("engram sync"))
	}
}
