// Package servecmder provides the serve command for running the MCP server.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/api"
	"github.com/papercomputeco/engram/api/mcp"
	"github.com/papercomputeco/engram/pkg/config"
	"github.com/papercomputeco/engram/pkg/dotdir"
	"github.com/papercomputeco/engram/pkg/gitsync"
	"github.com/papercomputeco/engram/pkg/gitsync/worker"
	"github.com/papercomputeco/engram/pkg/logger"
	"github.com/papercomputeco/engram/pkg/search"
	"github.com/papercomputeco/engram/pkg/store"
)

type ServeCommander struct {
	root          string
	remote        string
	listen        string
	maxResults    uint
	retryAttempts uint
	debug         bool
	httpMode      bool
	logger        *zap.Logger
}

const serveLongDesc string = `Run the engram MCP server.

By default the server speaks MCP over stdio, which is how most agent
runtimes launch it. Pass --listen to serve MCP over streamable HTTP
instead, with /ping and /stats inspection routes alongside.

On startup the store directory layout and git repository are created if
missing. When a sync remote is configured and no local repository exists
yet, the remote is cloned so existing memories become available.

Examples:
  engram serve
  engram serve --listen :8765
  engram serve -r git@github.com:you/memories.git`

const serveShortDesc string = "Run the engram MCP server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			configDir, _ := cmd.Flags().GetString("config-dir")
			cmder.httpMode = cmd.Flags().Changed(config.Flags[config.FlagAPIListen].Name)

			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, []string{
				config.FlagStorageRoot,
				config.FlagSyncRemote,
				config.FlagAPIListen,
				config.FlagMaxResults,
				config.FlagRetryAttempts,
			})

			cfg, err := config.FromViper(v)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			return cmder.run(cmd.Context(), cfg, configDir)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagStorageRoot, &cmder.root)
	config.AddStringFlag(cmd, config.Flags, config.FlagSyncRemote, &cmder.remote)
	config.AddStringFlag(cmd, config.Flags, config.FlagAPIListen, &cmder.listen)
	config.AddUintFlag(cmd, config.Flags, config.FlagMaxResults, &cmder.maxResults)
	config.AddUintFlag(cmd, config.Flags, config.FlagRetryAttempts, &cmder.retryAttempts)

	return cmd
}

func (c *ServeCommander) run(ctx context.Context, cfg *config.Config, configDir string) error {
	c.logger = logger.NewLogger(c.debug || cfg.Log.Level == "debug")
	defer c.logger.Sync()

	root, err := c.resolveRoot(cfg, configDir)
	if err != nil {
		return err
	}

	storeConfig := store.Config{Root: root}

	remote := ""
	if cfg.Sync.Enabled {
		remote = cfg.Sync.Remote
	}

	manager, err := gitsync.NewManager(gitsync.Config{
		Root:          root,
		RemoteURL:     remote,
		RetryAttempts: cfg.Sync.RetryAttempts,
		RetryDelay:    time.Duration(cfg.Sync.RetryDelayMS) * time.Millisecond,
	}, nil, c.logger)
	if err != nil {
		return fmt.Errorf("creating sync manager: %w", err)
	}

	var notifier store.Notifier
	var pool *worker.Pool

	if cfg.Sync.Enabled {
		c.bootstrapRepository(ctx, manager, remote)

		pool, err = worker.NewPool(&worker.Config{
			Syncer: manager,
			Logger: c.logger,
		})
		if err != nil {
			return fmt.Errorf("creating sync worker pool: %w", err)
		}
		defer pool.Close()
		notifier = pool
	}

	recovery := store.NewRecovery(storeConfig, c.logger)
	st, err := store.New(storeConfig, recovery, notifier, c.logger)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}

	if removed := store.CleanupBackups(storeConfig, c.logger); removed > 0 {
		c.logger.Info("cleaned up old backups", zap.Int("removed", removed))
	}

	engine := search.New(search.Config{
		MaxResults: int(cfg.Search.MaxResults),
	}, st, c.logger)

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go func() {
		if err := engine.Watch(watchCtx, storeConfig.FilesDir()); err != nil && watchCtx.Err() == nil {
			c.logger.Warn("memory watcher stopped", zap.Error(err))
		}
	}()

	mcpServer, err := mcp.NewServer(mcp.Config{
		Store:    st,
		Searcher: engine,
		Logger:   c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	if c.httpMode {
		return c.runHTTP(cfg, mcpServer, st, engine)
	}
	return c.runStdio(ctx, mcpServer)
}

// resolveRoot picks the store root: explicit config wins, otherwise the
// resolved .engram/ directory.
func (c *ServeCommander) resolveRoot(cfg *config.Config, configDir string) (string, error) {
	if cfg.Storage.Root != "" {
		return cfg.Storage.Root, nil
	}

	target, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return "", fmt.Errorf("resolving store root: %w", err)
	}
	if target == "" {
		return "", fmt.Errorf("no store root resolved; run \"engram init\" or set storage.root")
	}
	return target, nil
}

// bootstrapRepository brings the git mirror up on first run. A missing
// local repository with a configured remote is cloned so existing
// memories come down; anything else just gets initialized. Failures are
// logged, never fatal.
func (c *ServeCommander) bootstrapRepository(ctx context.Context, manager *gitsync.Manager, remote string) {
	info := manager.Info(ctx)

	if !info.ExistsLocal && remote != "" {
		if result := manager.Clone(ctx); result.Success {
			return
		} else {
			c.logger.Warn("cloning remote failed, initializing fresh repository",
				zap.String("message", result.Message),
			)
		}
	}

	if result := manager.Initialize(ctx); !result.Success {
		c.logger.Warn("repository initialization failed, sync disabled until fixed",
			zap.String("message", result.Message),
		)
	}
}

func (c *ServeCommander) runStdio(ctx context.Context, mcpServer *mcp.Server) error {
	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c.logger.Info("starting MCP server on stdio")

	if err := mcpServer.Run(runCtx); err != nil && runCtx.Err() == nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}

func (c *ServeCommander) runHTTP(cfg *config.Config, mcpServer *mcp.Server, st *store.Store, engine *search.Engine) error {
	apiServer := api.NewServer(api.Config{
		ListenAddr: cfg.API.Listen,
	}, mcpServer.Handler(), st, engine, c.logger)

	errChan := make(chan error, 1)
	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return apiServer.Shutdown()
	}
}
