package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/CihadCengiz/prompt-generator/internal/app"
	"github.com/CihadCengiz/prompt-generator/internal/mcpserver"
	"github.com/CihadCengiz/prompt-generator/internal/scan"
	"github.com/CihadCengiz/prompt-generator/internal/server"
	"github.com/CihadCengiz/prompt-generator/internal/temporal"
)

func (c *cli) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.build(cmd.Context())
			if err != nil {
				return err
			}
			cfg := a.Config
			if addr == "" {
				addr = cfg.Server.Addr
			}

			health := server.NewHealthServer(app.Version)
			a.RegisterHealthChecks(health)
			srv := server.New(a.Pipeline, server.Config{
				Addr:           addr,
				RequestTimeout: cfg.Server.RequestTimeout,
				DefaultRepoTag: cfg.Ingest.RepoTag,
			},
				server.WithLogger(a.Logger),
				server.WithHealth(health),
				server.WithMetrics(a.Metrics.Handler()),
			)

			shutdown := server.NewShutdownHandler(&server.ShutdownConfig{
				Timeout: cfg.Server.ShutdownTimeout,
				Logger:  a.Logger,
			})
			shutdown.Register(server.HTTPServerShutdownHook("http", srv.Shutdown))
			a.RegisterShutdown(shutdown)
			shutdown.Start()

			errCh := make(chan error, 1)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					shutdown.Shutdown()
					shutdown.Wait()
					return err
				}
			case <-cmd.Context().Done():
				shutdown.Shutdown()
			case <-shutdown.ShutdownCh():
			}
			shutdown.Wait()
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: server.addr)")
	return cmd
}

func (c *cli) watchCmd() *cobra.Command {
	var (
		repoTag    string
		commitHash string
		extensions []string
		debounce   time.Duration
		initial    bool
	)
	cmd := &cobra.Command{
		Use:   "watch [root]",
		Short: "Keep the index in sync with a working tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			ctx := cmd.Context()
			a, err := c.build(ctx)
			if err != nil {
				return err
			}
			defer closeApp(a)

			if commitHash == "" {
				commitHash = "working-tree"
			}
			walker, err := scan.NewWalker(root, extensionsOr(extensions, a.Config.Ingest.Extensions))
			if err != nil {
				return err
			}
			opts, in := newIngester(a, cmd.OutOrStdout(), walker, repoTag, commitHash, 0)
			if initial {
				report, err := in.Run(ctx, opts)
				if err != nil {
					return err
				}
				report.PrintSummary(cmd.OutOrStdout())
			}

			out := cmd.OutOrStdout()
			onChange := func(f scan.File) {
				res, err := in.SyncFile(ctx, opts, f)
				if err != nil {
					a.Logger.Error("sync failed", "path", f.Path, "error", err)
					return
				}
				fmt.Fprintf(out, "%s: embedded %d, skipped %d\n", f.Path, res.EmbeddedCount, res.SkippedCount)
			}
			onRemove := func(f scan.File) {
				res, err := in.ForgetFile(ctx, opts, f)
				if err != nil {
					a.Logger.Error("forget failed", "path", f.Path, "error", err)
					return
				}
				fmt.Fprintf(out, "%s: deleted %d\n", f.Path, res.DeletedCount)
			}

			w := scan.NewWatcher(walker, onChange, onRemove,
				scan.WithDebounce(debounce),
				scan.WithWatchLogger(a.Logger),
			)
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&repoTag, "repo-tag", "", "Repository tag (default: ingest.repo_tag)")
	cmd.Flags().StringVar(&commitHash, "commit", "", "Commit hash the working tree is stored under (default: working-tree)")
	cmd.Flags().StringSliceVar(&extensions, "ext", nil, "File extensions to watch (default: ingest.extensions)")
	cmd.Flags().DurationVar(&debounce, "debounce", scan.DefaultDebounce, "Quiet period before a changed file is re-embedded")
	cmd.Flags().BoolVar(&initial, "initial", true, "Ingest the whole tree before watching")
	return cmd
}

func (c *cli) mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve retrieval as an MCP tool over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := c.loadConfig()
			if err != nil {
				return err
			}
			// stdout carries the MCP protocol.
			if (cfg.Audit.Backend == "" || cfg.Audit.Backend == "file") && cfg.Audit.Path == "stdout" {
				cfg.Audit.Path = "stderr"
			}
			a, err := app.Build(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeApp(a)
			return mcpserver.New(a.Pipeline, app.Version, logger).Serve(cmd.Context())
		},
	}
}

func (c *cli) syncCmd() *cobra.Command {
	var (
		root           string
		repoTag        string
		commitHash     string
		previousCommit string
		removed        []string
	)
	cmd := &cobra.Command{
		Use:   "sync-commit <path>...",
		Short: "Submit a commit-sync workflow to the Temporal worker",
		Long: "Reads the given changed files under root and submits them, with the removed\n" +
			"paths, as one commit to the worker. The previous commit is deleted once\n" +
			"every file is embedded.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := c.loadConfig()
			if err != nil {
				return err
			}
			if repoTag == "" {
				repoTag = cfg.Ingest.RepoTag
			}
			input := temporal.CommitSyncInput{
				RepoTag:        repoTag,
				CommitHash:     commitHash,
				Removed:        removed,
				PreviousCommit: previousCommit,
			}
			for _, p := range args {
				data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(p)))
				if err != nil {
					return err
				}
				input.Files = append(input.Files, temporal.FileInput{Path: filepath.ToSlash(p), Content: string(data)})
			}

			tc, err := temporalclient.Dial(temporalclient.Options{
				HostPort:  cfg.Temporal.Host,
				Namespace: cfg.Temporal.Namespace,
			})
			if err != nil {
				return fmt.Errorf("temporal client: %w", err)
			}
			defer tc.Close()

			logger.Info("submitting commit sync", "commit", commitHash, "files", len(input.Files), "removed", len(removed))
			out, err := temporal.StartCommitSync(cmd.Context(), tc, cfg.Temporal.TaskQueue, input)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&root, "root", ".", "Directory the paths are relative to")
	cmd.Flags().StringVar(&repoTag, "repo-tag", "", "Repository tag (default: ingest.repo_tag)")
	cmd.Flags().StringVar(&commitHash, "commit", "", "Commit hash")
	cmd.Flags().StringVar(&previousCommit, "previous", "", "Commit to delete after a successful sync")
	cmd.Flags().StringSliceVar(&removed, "removed", nil, "Paths removed by the commit")
	_ = cmd.MarkFlagRequired("commit")
	return cmd
}
