package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/server"
	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/shutdown"
	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/taskrunner"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve results, run history and metrics over HTTP",
	Long: `Starts a read-only HTTP server:

  GET /results?n=N    aggregated summary of the N newest result files
  GET /history        recorded runs (?limit=, ?task=)
  GET /tasks          registered tasks
  GET /tasks/{name}   one task
  GET /metrics        Prometheus metrics rebuilt from the run history
  GET /healthz        liveness`,
	GroupID: "tools",
	Args:    cobra.NoArgs,
	RunE:    runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a := current
	ctx := cmd.Context()

	addr := serveAddr
	if addr == "" {
		addr = a.cfg.Server.Addr
	}

	if err := a.replayHistory(ctx); err != nil {
		a.logger.Warn("failed to load run history into metrics", zap.Error(err))
	}

	reg, err := taskrunner.Builtin(a.cfg, taskrunner.Hooks{})
	if err != nil {
		return err
	}

	mgr := shutdown.New(10*time.Second, a.logger)

	h := &server.Handler{
		ResultsDir: a.cfg.ResultsDir,
		Registry:   reg,
		Gatherer:   a.metrics.Gatherer(),
		Logger:     a.logger,
		Draining:   mgr.Done(),
	}
	if a.history != nil {
		h.History = a.history
		// the manager closes it after the server has drained
		mgr.Register("history", shutdown.CloseResource(a.history))
		a.history = nil
	}
	srv := server.New(addr, h)
	mgr.Register("http", shutdown.StopHTTPServer(srv))

	waitCtx, stop := context.WithCancel(ctx)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("serving", zap.String("addr", addr))
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		serveErr <- err
		stop()
	}()

	shutdownErr := mgr.WaitWithContext(waitCtx)
	return errors.Join(<-serveErr, shutdownErr)
}
