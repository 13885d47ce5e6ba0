package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/spf13/cobra"

	"github.com/becomeliminal/cortex/server"
)

const shutdownTimeout = 30 * time.Second

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withRuntime(ctx, runtimeOptions{generate: true, metrics: true}, func(rt *runtime) error {
		srv, err := server.New(server.Config{
			Service:        rt.manager,
			Metrics:        rt.metrics,
			DefaultOwner:   rt.cfg.DefaultOwner,
			AllowedOrigins: rt.cfg.AllowedOrigins,
			MaxUploadBytes: rt.cfg.MaxUploadBytes,
		})
		if err != nil {
			return err
		}

		scheduler, err := startRetention(ctx, rt)
		if err != nil {
			return fmt.Errorf("start job retention: %w", err)
		}
		defer func() {
			if err := scheduler.Shutdown(); err != nil {
				log.Printf("[JOBS] Scheduler shutdown: %v", err)
			}
		}()

		addr := rt.cfg.Addr()
		log.Println("=============================================================")
		log.Println("  cortex memory server")
		log.Println("=============================================================")
		log.Printf("Model:     %s", rt.cfg.Model)
		log.Printf("Embedder:  %s", rt.cfg.Embed.Provider)
		log.Printf("Store:     %s", rt.cfg.DBDir)
		log.Printf("HTTP:      http://localhost%s", addr)
		log.Printf("WebSocket: ws://localhost%s/ws", addr)
		log.Println("=============================================================")

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Run(addr)
		}()

		var runErr error
		select {
		case runErr = <-errCh:
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[SERVER] Shutdown: %v", err)
		}
		log.Println("[SERVER] Waiting for background work to finish")
		return runErr
	})
}

// startRetention prunes finished job records hourly.
func startRetention(ctx context.Context, rt *runtime) (gocron.Scheduler, error) {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(time.Hour),
		gocron.NewTask(func() {
			cutoff := time.Now().Add(-rt.cfg.JobRetention)
			if _, err := rt.catalog.PruneJobs(ctx, cutoff); err != nil {
				log.Printf("[JOBS] Retention sweep failed: %v", err)
			}
		}),
		gocron.WithName("job_retention"),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return nil, err
	}
	scheduler.Start()
	return scheduler, nil
}
