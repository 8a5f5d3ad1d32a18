// Package showcmder provides the show command for rendering a stored memory.
package showcmder

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/engram/pkg/cliui"
	"github.com/papercomputeco/engram/pkg/config"
	"github.com/papercomputeco/engram/pkg/dotdir"
	"github.com/papercomputeco/engram/pkg/logger"
	"github.com/papercomputeco/engram/pkg/store"
	"github.com/papercomputeco/engram/pkg/validate"
)

const showLongDesc string = `Show a stored memory by id.

Looks the memory up in the store and renders its content as markdown,
with the agent, user, topics, and timestamp above it.

Examples:
  engram show a1b2c3d4`

const showShortDesc string = "Show a stored memory"

func NewShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <memory-id>",
		Short: showShortDesc,
		Long:  showLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runShow(cmd.Context(), args[0], configDir)
		},
	}

	return cmd
}

func runShow(ctx context.Context, id, configDir string) error {
	if !validate.MemoryID(id) {
		return fmt.Errorf("invalid memory id: %q", id)
	}

	st, err := openStore(configDir)
	if err != nil {
		return err
	}

	results := st.Recall(ctx, []string{id})
	if len(results) == 0 {
		return fmt.Errorf("memory not found: %s", id)
	}
	if results[0].Err != nil {
		return fmt.Errorf("%s", results[0].Err.Message)
	}

	mem := results[0].Memory

	fmt.Printf("\n  %s  %s\n", cliui.KeyStyle.Render("Memory:"), cliui.HashStyle.Render(mem.ID))
	fmt.Printf("  %s   %s\n", cliui.KeyStyle.Render("Agent:"), cliui.NameStyle.Render(mem.Agent))
	fmt.Printf("  %s    %s\n", cliui.KeyStyle.Render("User:"), cliui.NameStyle.Render(mem.User))
	fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Topics:"), cliui.TopicStyle.Render(strings.Join(mem.Topics, ", ")))
	fmt.Printf("  %s    %s\n", cliui.KeyStyle.Render("When:"), cliui.DimStyle.Render(mem.Timestamp.Format("2006-01-02 15:04:05 MST")))

	rendered, err := cliui.RenderMarkdown(mem.Content)
	if err != nil {
		// Fall back to raw content when the terminal renderer chokes.
		fmt.Printf("\n%s\n", mem.Content)
		return nil
	}

	fmt.Println(rendered)
	return nil
}

func openStore(configDir string) (*store.Store, error) {
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg, err := cfger.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	root := cfg.Storage.Root
	if root == "" {
		root, err = dotdir.NewManager().Target(configDir)
		if err != nil {
			return nil, fmt.Errorf("resolving store root: %w", err)
		}
	}

	st, err := store.New(store.Config{Root: root}, nil, nil, logger.Nop())
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return st, nil
}
