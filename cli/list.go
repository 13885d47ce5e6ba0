package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/cortex/memory"
)

func init() {
	sources := &cobra.Command{
		Use:   "sources",
		Short: "List the sources stored for an owner and topic",
		Args:  cobra.NoArgs,
		RunE:  runSources,
	}

	topics := &cobra.Command{
		Use:   "topics",
		Short: "List every topic with stored memory",
		Args:  cobra.NoArgs,
		RunE:  runTopics,
	}

	jobs := &cobra.Command{
		Use:   "jobs",
		Short: "List recent repository ingestion jobs",
		Args:  cobra.NoArgs,
		RunE:  runJobs,
	}
	jobs.Flags().IntP("limit", "l", 20, "Max results")

	RootCmd.AddCommand(sources, topics, jobs)
}

func runSources(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withRuntime(ctx, runtimeOptions{}, func(rt *runtime) error {
		sources, err := rt.manager.ListSources(ctx, scope(rt.cfg))
		if err != nil {
			return fmt.Errorf("sources: %w", err)
		}
		printJSON(memory.SourceViews(sources))
		return nil
	})
}

func runTopics(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withRuntime(ctx, runtimeOptions{}, func(rt *runtime) error {
		topics, err := rt.manager.ListTopics(ctx)
		if err != nil {
			return fmt.Errorf("topics: %w", err)
		}
		for _, t := range topics {
			fmt.Println(t)
		}
		return nil
	})
}

func runJobs(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	ctx := cmd.Context()

	return withRuntime(ctx, runtimeOptions{}, func(rt *runtime) error {
		jobs, err := rt.catalog.ListJobs(ctx, limit)
		if err != nil {
			return fmt.Errorf("jobs: %w", err)
		}
		if jobs == nil {
			jobs = []memory.Job{}
		}
		printJSON(jobs)
		return nil
	})
}
