// Package engramcmder
package engramcmder

import (
	"github.com/spf13/cobra"

	browsecmder "github.com/papercomputeco/engram/cmd/engram/browse"
	configcmder "github.com/papercomputeco/engram/cmd/engram/config"
	initcmder "github.com/papercomputeco/engram/cmd/engram/init"
	servecmder "github.com/papercomputeco/engram/cmd/engram/serve"
	showcmder "github.com/papercomputeco/engram/cmd/engram/show"
	statuscmder "github.com/papercomputeco/engram/cmd/engram/status"
	synccmder "github.com/papercomputeco/engram/cmd/engram/sync"
	versioncmder "github.com/papercomputeco/engram/cmd/version"
)

const engramLongDesc string = `Engram is a local, file-backed memory store for AI agents.

Memories are markdown files with frontmatter, searchable by keyword and
mirrored to a git remote when one is configured. Agents reach the store
through MCP tools: remember, think, and recall.

Common commands:
  engram serve     Run the MCP server (stdio by default)
  engram init      Initialize the .engram/ directory and repository
  engram status    Show store and repository state
  engram sync      Synchronize with the configured git remote`

const engramShortDesc string = "Engram - Agent Memory"

func NewEngramCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "engram",
		Short: engramShortDesc,
		Long:  engramLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .engram/ directory location")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(synccmder.NewSyncCmd())
	cmd.AddCommand(showcmder.NewShowCmd())
	cmd.AddCommand(browsecmder.NewBrowseCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
