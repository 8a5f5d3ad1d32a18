// Package initcmder provides the init command for setting up a .engram
// directory.
package initcmder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/engram/pkg/cliui"
	"github.com/papercomputeco/engram/pkg/config"
	"github.com/papercomputeco/engram/pkg/gitsync"
	"github.com/papercomputeco/engram/pkg/logger"
)

const dirName = ".engram"

const initLongDesc string = `Initialize a .engram/ directory for storing memories.

Creates the directory layout (files/, backups/, temp/, locks/), writes a
default config.toml if none exists, and initializes the git repository
that mirrors stored memories.

By default a local .engram/ directory is created in the current working
directory, taking precedence over ~/.engram/ for all engram operations.
Pass --remote to record a git remote in the config; the repository will
push every stored memory to it.

Examples:
  engram init
  engram init --remote git@github.com:you/memories.git
  engram init --config-dir /srv/agents/.engram`

const initShortDesc string = "Initialize a .engram/ directory"

type InitCommander struct {
	remote string
}

func NewInitCmd() *cobra.Command {
	cmder := &InitCommander{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, err := cmd.Flags().GetString("config-dir")
			if err != nil {
				return fmt.Errorf("could not get config-dir flag: %v", err)
			}
			return cmder.run(cmd, configDir)
		},
	}

	cmd.Flags().StringVarP(&cmder.remote, "remote", "r", "", "Git remote URL to mirror memories to")

	return cmd
}

func (c *InitCommander) run(cmd *cobra.Command, configDir string) error {
	dir, existed, err := c.resolveDir(configDir)
	if err != nil {
		return err
	}

	if existed {
		fmt.Printf("  %s %s\n", cliui.DimStyle.Render("●"), "Already initialized: "+dir)
	} else {
		fmt.Printf("  %s %s\n", cliui.SuccessMark, "Initialized "+dir)
	}

	if err := cliui.Step(os.Stdout, "Creating directory layout", func() error {
		return c.createLayout(dir)
	}); err != nil {
		return err
	}

	var cfg *config.Config
	if err := cliui.Step(os.Stdout, "Writing configuration", func() error {
		cfg, err = c.ensureConfig(dir)
		return err
	}); err != nil {
		return err
	}

	if err := cliui.Step(os.Stdout, "Initializing git repository", func() error {
		return c.initRepository(cmd, dir, cfg)
	}); err != nil {
		return err
	}

	fmt.Printf("\n  %s Ready. Run %s to start the MCP server.\n\n",
		cliui.SuccessMark, cliui.KeyStyle.Render("engram serve"))
	return nil
}

// resolveDir picks the directory to initialize: the override when given,
// otherwise a local .engram/ in the current working directory.
func (c *InitCommander) resolveDir(configDir string) (string, bool, error) {
	dir := configDir
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", false, fmt.Errorf("getting current directory: %w", err)
		}
		dir = filepath.Join(cwd, dirName)
	}

	info, err := os.Stat(dir)
	existed := err == nil && info.IsDir()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, fmt.Errorf("creating engram directory: %w", err)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", false, err
	}
	return abs, existed, nil
}

func (c *InitCommander) createLayout(dir string) error {
	for _, sub := range []string{"files", "backups", "temp", "locks"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return fmt.Errorf("creating %s directory: %w", sub, err)
		}
	}
	return nil
}

// ensureConfig writes a default config.toml when none exists and applies
// the remote flag either way. Existing settings are preserved.
func (c *InitCommander) ensureConfig(dir string) (*config.Config, error) {
	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return nil, err
	}

	cfg, err := cfger.LoadConfig()
	if err != nil {
		return nil, err
	}

	if remote := strings.TrimSpace(c.remote); remote != "" {
		cfg.Sync.Remote = remote
	}

	if err := cfger.SaveConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *InitCommander) initRepository(cmd *cobra.Command, dir string, cfg *config.Config) error {
	remote := ""
	if cfg.Sync.Enabled {
		remote = cfg.Sync.Remote
	}

	manager, err := gitsync.NewManager(gitsync.Config{
		Root:      dir,
		RemoteURL: remote,
	}, nil, logger.Nop())
	if err != nil {
		return err
	}

	result := manager.Initialize(cmd.Context())
	if !result.Success {
		return fmt.Errorf("%s", result.Message)
	}
	return nil
}
