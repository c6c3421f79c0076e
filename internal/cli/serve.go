package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	internal_http "github.com/shreyachakravarty07/AgentTrace/internal/http"
	"github.com/shreyachakravarty07/AgentTrace/internal/log"
	"github.com/shreyachakravarty07/AgentTrace/internal/metrics"
	"github.com/shreyachakravarty07/AgentTrace/pkg/service"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func (a *App) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the AgentTrace HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().Int("port", 0, "HTTP port (default server.port)")
	cmd.Flags().Int("metrics-port", 0, "Serve /metrics on this port instead of the API port")
	a.bindFlag(cmd, "server.port", "port")
	a.bindFlag(cmd, "server.metrics_port", "metrics-port")
	return cmd
}

func (a *App) serve(ctx context.Context) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	gen, release, err := a.openGenerator()
	if err != nil {
		return err
	}
	defer release()

	recorder := metrics.NewRecorder()
	svc := service.NewWorkflowService(gen, store, log.GetLogger(), service.WithRecorder(recorder))

	opts := internal_http.Options{AllowedOrigins: a.cfg.Server.AllowedOrigins}
	if a.cfg.Server.MetricsPort == 0 {
		opts.Metrics = recorder.Handler()
	}
	server := internal_http.NewServer(svc, log.GetLogger(), opts)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx, ":"+strconv.Itoa(a.cfg.Server.Port))
	})
	if a.cfg.Server.MetricsPort != 0 {
		g.Go(func() error {
			return serveMetrics(gctx, ":"+strconv.Itoa(a.cfg.Server.MetricsPort), recorder.Handler())
		})
	}
	return g.Wait()
}

func serveMetrics(ctx context.Context, addr string, handler http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.GetLogger().Infof("Serving metrics on %s", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
