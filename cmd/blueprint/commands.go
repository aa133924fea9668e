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
	"go.uber.org/zap"

	"github.com/hyperjump/blueprint/internal/cli"
	"github.com/hyperjump/blueprint/internal/models"
	"github.com/hyperjump/blueprint/internal/server"
	"github.com/hyperjump/blueprint/internal/storage"
	"github.com/hyperjump/blueprint/internal/watcher"
)

const shutdownTimeout = 10 * time.Second

func (a *app) namespaceOr(ns string) string {
	if ns != "" {
		return ns
	}
	return a.cfg.Ingest.DefaultNamespace
}

func newServerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := initializeComponents(ctx, a.cfg, a.logger, true)
			if err != nil {
				return err
			}
			defer c.Close()

			if len(a.cfg.Watch.Directories) > 0 {
				w := a.newWatcher(c, a.cfg.Watch.Directories, a.cfg.Watch.Namespace)
				if err := w.Start(ctx); err != nil {
					return fmt.Errorf("failed to start watcher: %w", err)
				}
				defer w.Stop()
				go w.SyncExisting(ctx)
			}

			srv := server.NewServer(c.Engine, c.Synthesizer, c.Pipeline, server.SettingsFromConfig(a.cfg), a.logger)
			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(a.cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}
			a.logger.Info("Shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				return fmt.Errorf("failed to stop server: %w", err)
			}
			return nil
		},
	}
}

func (a *app) newWatcher(c *Components, dirs []string, ns string) *watcher.Watcher {
	return watcher.New(c.Pipeline, a.namespaceOr(ns), dirs,
		watcher.WithExtensions(a.cfg.Ingest.Extensions),
		watcher.WithRecursive(a.cfg.Watch.RecursiveOrDefault()),
		watcher.WithLogger(a.logger))
}

func newIngestCmd(a *app) *cobra.Command {
	var (
		dir       string
		files     []string
		namespace string
		output    string
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index drawings into a namespace",
		Long: `Index drawing files into a namespace. With no --file or --dir the configured
data directory is ingested. Re-ingesting a file replaces its previous chunks.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			c, err := initializeComponents(ctx, a.cfg, a.logger, false)
			if err != nil {
				return err
			}
			defer c.Close()

			ns := a.namespaceOr(namespace)
			var summary *models.IngestSummary
			if len(files) > 0 {
				inputs := make([]models.FileInput, 0, len(files))
				for _, f := range files {
					content, err := os.ReadFile(f)
					if err != nil {
						return fmt.Errorf("failed to read %s: %w", f, err)
					}
					inputs = append(inputs, models.FileInput{Filename: filepath.Base(f), Content: content})
				}
				summary, err = c.Pipeline.Ingest(ctx, inputs, ns)
			} else {
				if dir == "" {
					dir = a.cfg.Ingest.DataDir
				}
				summary, err = c.Pipeline.IngestDirectory(ctx, dir, ns)
			}
			if err != nil {
				return err
			}
			if err := cli.WriteIngestSummary(cmd.OutOrStdout(), summary, format); err != nil {
				return err
			}
			if summary.FilesIngested == 0 && len(summary.Failures) > 0 {
				return fmt.Errorf("no files were ingested")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "directory to ingest recursively (default: ingest.data_dir)")
	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "file to ingest (repeatable)")
	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "target namespace (default: ingest.default_namespace)")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	cmd.MarkFlagsMutuallyExclusive("dir", "file")
	return cmd
}

func newAskCmd(a *app) *cobra.Command {
	var (
		namespace string
		topK      int
		output    string
		passages  bool
	)
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about a namespace",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			c, err := initializeComponents(ctx, a.cfg, a.logger, !passages)
			if err != nil {
				return err
			}
			defer c.Close()

			query := buildQuery(args)
			hits, err := c.Engine.Search(ctx, query, a.namespaceOr(namespace), topK)
			if err != nil {
				return err
			}
			if passages {
				return cli.WriteHits(cmd.OutOrStdout(), hits, format)
			}
			result, err := c.Synthesizer.Answer(ctx, query, hits, nil)
			if err != nil {
				return err
			}
			return cli.WriteAnswer(cmd.OutOrStdout(), result, format)
		},
	}
	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "namespace to search (default: ingest.default_namespace)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of passages to retrieve (default: search.default_top_k)")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	cmd.Flags().BoolVar(&passages, "passages", false, "print retrieved passages instead of generating an answer")
	return cmd
}

func newStatusCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "status [namespace]",
		Short: "Show what is indexed in a namespace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			c, err := initializeComponents(ctx, a.cfg, a.logger, false)
			if err != nil {
				return err
			}
			defer c.Close()

			ns := ""
			if len(args) == 1 {
				ns = args[0]
			}
			st, err := c.Pipeline.Status(ctx, a.namespaceOr(ns))
			if err != nil {
				return err
			}
			paths := map[string]string{
				"ledger":  a.cfg.Storage.DatabasePath,
				"keyword": a.cfg.Storage.KeywordIndexPath,
			}
			if a.cfg.Vector.Path != "" {
				paths["vectors"] = a.cfg.Vector.Path
			}
			disk, err := storage.DiskUsage(paths)
			if err != nil {
				a.logger.Warn("failed to measure disk usage", zap.Error(err))
			}
			return cli.WriteStatus(cmd.OutOrStdout(), st, disk, format)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	return cmd
}

func newDeleteNamespaceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-namespace <namespace>",
		Short: "Remove every document in a namespace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := initializeComponents(ctx, a.cfg, a.logger, false)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Pipeline.DeleteNamespace(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted namespace %s\n", args[0])
			return nil
		},
	}
}

func newWatchCmd(a *app) *cobra.Command {
	var (
		dirs      []string
		namespace string
		noSync    bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Ingest drawings as they appear in watched folders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := initializeComponents(ctx, a.cfg, a.logger, false)
			if err != nil {
				return err
			}
			defer c.Close()

			if len(dirs) == 0 {
				dirs = a.cfg.Watch.Directories
			}
			if len(dirs) == 0 {
				dirs = []string{a.cfg.Ingest.DataDir}
			}
			if namespace == "" {
				namespace = a.cfg.Watch.Namespace
			}
			w := a.newWatcher(c, dirs, namespace)
			if err := w.Start(ctx); err != nil {
				return fmt.Errorf("failed to start watcher: %w", err)
			}
			defer w.Stop()
			if !noSync {
				w.SyncExisting(ctx)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Watching %d director(ies) into namespace %s\n", len(w.Directories()), a.namespaceOr(namespace))
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&dirs, "dir", "d", nil, "directory to watch (repeatable; default: watch.directories)")
	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "target namespace (default: watch.namespace, then ingest.default_namespace)")
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "skip ingesting files already present")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// Skips config loading so version works anywhere.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "blueprint %s\n", version)
		},
	}
}
