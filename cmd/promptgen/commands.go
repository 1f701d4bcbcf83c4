package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/CihadCengiz/prompt-generator/internal/app"
	"github.com/CihadCengiz/prompt-generator/internal/audit"
	"github.com/CihadCengiz/prompt-generator/internal/embedding"
	"github.com/CihadCengiz/prompt-generator/internal/scan"
	"github.com/CihadCengiz/prompt-generator/internal/vector"
)

func (c *cli) ingestCmd() *cobra.Command {
	var (
		repoTag     string
		commitHash  string
		statePath   string
		extensions  []string
		concurrency int
		jsonReport  bool
	)
	cmd := &cobra.Command{
		Use:   "ingest [root]",
		Short: "Embed every source file under root (default: current directory)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			a, err := c.build(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp(a)

			walker, err := scan.NewWalker(root, extensionsOr(extensions, a.Config.Ingest.Extensions))
			if err != nil {
				return err
			}
			opts, in := newIngester(a, cmd.OutOrStdout(), walker, repoTag, commitHash, concurrency)
			if statePath == "" {
				statePath = a.Config.Ingest.StateFile
			}
			opts.StatePath = statePath

			report, err := in.Run(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if jsonReport {
				data, err := report.JSON()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
			} else {
				report.PrintSummary(cmd.OutOrStdout())
			}
			if report.Failed > 0 {
				return fmt.Errorf("%d file(s) failed", report.Failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&repoTag, "repo-tag", "", "Repository tag (default: ingest.repo_tag)")
	cmd.Flags().StringVar(&commitHash, "commit", "", "Commit hash (default: initial-<unix ms>)")
	cmd.Flags().StringVar(&statePath, "state", "", "Incremental state file")
	cmd.Flags().StringSliceVar(&extensions, "ext", nil, "File extensions to ingest (default: ingest.extensions)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Files embedded in parallel (default: ingest.concurrency)")
	cmd.Flags().BoolVar(&jsonReport, "json", false, "Print the run report as JSON")
	return cmd
}

// newIngester resolves scope defaults from configuration and builds an
// ingester over walker.
func newIngester(a *app.App, progress io.Writer, walker *scan.Walker, repoTag, commitHash string, concurrency int) (scan.RunOptions, *scan.Ingester) {
	if repoTag == "" {
		repoTag = a.Config.Ingest.RepoTag
	}
	if commitHash == "" {
		commitHash = scan.InitialCommitHash(time.Now())
	}
	if concurrency <= 0 {
		concurrency = a.Config.Ingest.Concurrency
	}
	opts := []scan.IngesterOption{
		scan.WithConcurrency(concurrency),
		scan.WithIngestLogger(a.Logger),
		scan.WithProgress(progress),
	}
	if cp := a.EmbeddingCache(); cp != nil {
		opts = append(opts, scan.WithCacheStats(cp.Stats))
	}
	in := scan.NewIngester(a.Pipeline, walker, opts...)
	return scan.RunOptions{RepoTag: repoTag, CommitHash: commitHash}, in
}

func (c *cli) deleteCommitCmd() *cobra.Command {
	var repoTag, commitHash string
	cmd := &cobra.Command{
		Use:   "delete-commit",
		Short: "Delete every record stored under a commit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.build(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp(a)
			if repoTag == "" {
				repoTag = a.Config.Ingest.RepoTag
			}
			res, err := a.Pipeline.DeleteByCommit(cmd.Context(), repoTag, commitHash)
			if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
				return perr
			}
			return err
		},
	}
	cmd.Flags().StringVar(&repoTag, "repo-tag", "", "Repository tag (default: ingest.repo_tag)")
	cmd.Flags().StringVar(&commitHash, "commit", "", "Commit hash")
	_ = cmd.MarkFlagRequired("commit")
	return cmd
}

func (c *cli) deleteFilesCmd() *cobra.Command {
	var repoTag, commitHash string
	cmd := &cobra.Command{
		Use:   "delete-files <path>...",
		Short: "Delete the records of the given files under a commit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.build(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp(a)
			if repoTag == "" {
				repoTag = a.Config.Ingest.RepoTag
			}
			res, err := a.Pipeline.DeleteByFileList(cmd.Context(), repoTag, commitHash, args)
			if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
				return perr
			}
			return err
		},
	}
	cmd.Flags().StringVar(&repoTag, "repo-tag", "", "Repository tag (default: ingest.repo_tag)")
	cmd.Flags().StringVar(&commitHash, "commit", "", "Commit hash")
	_ = cmd.MarkFlagRequired("commit")
	return cmd
}

func (c *cli) queryCmd() *cobra.Command {
	var (
		topK       int
		repoTag    string
		commitHash string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Print the chunks most similar to text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.build(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp(a)

			scope := vector.Scope{RepoTag: repoTag, CommitHash: commitHash}
			matches, err := a.Pipeline.Search(cmd.Context(), args[0], topK, scope)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), matches)
			}
			return printMatches(cmd.OutOrStdout(), matches)
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 5, "Number of chunks to return")
	cmd.Flags().StringVar(&repoTag, "repo-tag", "", "Only search this repository tag")
	cmd.Flags().StringVar(&commitHash, "commit", "", "Only search this commit")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print matches as JSON")
	return cmd
}

func (c *cli) lineageCmd() *cobra.Command {
	var repoTag, commitHash string
	cmd := &cobra.Command{
		Use:   "lineage",
		Short: "List the files recorded under a commit in the lineage graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.build(cmd.Context())
			if err != nil {
				return err
			}
			defer closeApp(a)
			if repoTag == "" {
				repoTag = a.Config.Ingest.RepoTag
			}
			files, err := a.CommitFiles(cmd.Context(), repoTag, commitHash)
			if err != nil {
				return err
			}
			return printFiles(cmd.OutOrStdout(), files)
		},
	}
	cmd.Flags().StringVar(&repoTag, "repo-tag", "", "Repository tag (default: ingest.repo_tag)")
	cmd.Flags().StringVar(&commitHash, "commit", "", "Commit hash")
	_ = cmd.MarkFlagRequired("commit")
	return cmd
}

func printFiles(w io.Writer, files []string) error {
	if len(files) == 0 {
		_, err := fmt.Fprintln(w, "No files recorded.")
		return err
	}
	for _, f := range files {
		if _, err := fmt.Fprintln(w, f); err != nil {
			return err
		}
	}
	return nil
}

func printMatches(w io.Writer, matches []vector.Match) error {
	if len(matches) == 0 {
		_, err := fmt.Fprintln(w, "No matching chunks.")
		return err
	}
	for i, m := range matches {
		fmt.Fprintf(w, "--- %d. %s @ %s (score %.3f)\n", i+1, m.Metadata.FilePath, m.Metadata.CommitHash, m.Score)
		fmt.Fprintln(w, m.Metadata.Text)
	}
	return nil
}

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List available embedding providers",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Available embedding providers:")
			fmt.Fprintln(out)
			names := app.NewFactory().Names()
			for _, name := range names {
				url := embedding.KnownProviders[name]
				switch name {
				case "custom":
					url = "(set base_url to any OpenAI-compatible endpoint)"
				case "hash":
					url = "(offline, deterministic; for tests and demos)"
				}
				fmt.Fprintf(out, "  %-10s %s\n", name, url)
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Configure in promptgen.yaml or via environment:")
			fmt.Fprintln(out, "  PROMPTGEN_EMBEDDING_PROVIDER=openai")
			fmt.Fprintln(out, "  PROMPTGEN_EMBEDDING_API_KEY=sk-...   (or OPENAI_KEY)")
			fmt.Fprintln(out, "  PROMPTGEN_EMBEDDING_MODEL=text-embedding-3-small")
		},
	}
}

func (c *cli) auditCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Print the most recent audit entries (sqlite and postgres backends)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := c.loadConfig()
			if err != nil {
				return err
			}
			log, closeLog, err := audit.Open(cmd.Context(), audit.Config{
				Backend: cfg.Audit.Backend,
				Path:    cfg.Audit.Path,
				DSN:     cfg.Audit.DSN,
			})
			if err != nil {
				return err
			}
			defer closeLog()

			reader, ok := log.(audit.Reader)
			if !ok {
				return fmt.Errorf("audit backend %q cannot be read back", cfg.Audit.Backend)
			}
			entries, err := reader.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			sort.SliceStable(entries, func(i, j int) bool { return entries[i].Timestamp.After(entries[j].Timestamp) })
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, e := range entries {
				if err := enc.Encode(e); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of entries")
	return cmd
}

func extensionsOr(exts, fallback []string) []string {
	if len(exts) > 0 {
		return exts
	}
	return fallback
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
