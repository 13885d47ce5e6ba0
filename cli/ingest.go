package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/cortex/core"
	"github.com/becomeliminal/cortex/memory"
	"github.com/becomeliminal/cortex/watch"
)

func init() {
	cmd := &cobra.Command{
		Use:   "ingest <path|url>",
		Short: "Ingest a file, a directory or a git repository",
		Long: "Stores a file as one entry, or one entry per source file for a directory or " +
			"cloned repository. Re-ingesting the same source replaces its previous entries.",
		Args: cobra.ExactArgs(1),
		RunE: runIngest,
	}

	cmd.Flags().StringP("label", "l", "", "Source label (default: file name, directory path or URL)")
	cmd.Flags().BoolP("watch", "w", false, "Re-ingest a directory whenever it changes")

	RootCmd.AddCommand(cmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	label, _ := cmd.Flags().GetString("label")
	watchDir, _ := cmd.Flags().GetBool("watch")
	target := args[0]

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withRuntime(ctx, runtimeOptions{}, func(rt *runtime) error {
		sc := scope(rt.cfg)

		if isRepoURL(target) {
			if watchDir {
				return core.Invalid("watch", "only local directories can be watched")
			}
			report, err := rt.manager.IngestRepo(ctx, sc, target)
			if err != nil {
				return fmt.Errorf("ingest repo: %w", err)
			}
			printJSON(report)
			return nil
		}

		info, err := os.Stat(target)
		if err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
		if !info.IsDir() {
			if watchDir {
				return core.Invalid("watch", "only directories can be watched")
			}
			if err := ingestFile(ctx, rt.manager, sc, target, label); err != nil {
				return fmt.Errorf("ingest file: %w", err)
			}
			return nil
		}

		if label == "" {
			label = filepath.Clean(target)
		}
		report, err := rt.manager.IngestDirectory(ctx, sc, target, label)
		if err != nil {
			return fmt.Errorf("ingest directory: %w", err)
		}
		printJSON(report)
		if !watchDir {
			return nil
		}

		w, err := watch.New(target, watch.Config{
			ExcludeDirs:  rt.cfg.Ingest.ExcludeDirs,
			ExcludeGlobs: rt.cfg.Ingest.ExcludeGlobs,
		}, func(ctx context.Context) {
			report, err := rt.manager.IngestDirectory(ctx, sc, target, label)
			if err != nil {
				log.Printf("[INGEST] %s: %v", target, err)
				return
			}
			printJSON(report)
		})
		if err != nil {
			return fmt.Errorf("watch: %w", err)
		}
		defer w.Close()
		fmt.Fprintf(os.Stderr, "Watching %s. Press Ctrl+C to stop.\n", target)
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("watch: %w", err)
		}
		return nil
	})
}

func ingestFile(ctx context.Context, m *memory.Manager, sc core.Scope, path, label string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if !utf8.Valid(content) {
		return core.Invalid("file", "file must be UTF-8 text")
	}
	if label == "" {
		label = filepath.Base(path)
	}
	if err := m.IngestText(ctx, sc, string(content), label); err != nil {
		return err
	}
	fmt.Printf("Successfully ingested %s\n", label)
	return nil
}

func isRepoURL(target string) bool {
	return strings.Contains(target, "://") || strings.HasPrefix(target, "git@")
}
