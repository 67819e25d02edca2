// Command broker runs the chat broker.
package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/danmu-chat-go/application"
	"github.com/lk2023060901/danmu-chat-go/internal/broker"
	"github.com/lk2023060901/danmu-chat-go/pkg/log"
	"github.com/lk2023060901/danmu-chat-go/pkg/metrics"
)

const shutdownTimeout = 5 * time.Second

func main() {
	app := application.New("broker", os.Args[1:])
	if err := app.Run(); err != nil {
		log.Fatal("failed to start", zap.Error(err))
	}
	if err := run(app); err != nil {
		log.Fatal("broker exited", zap.Error(err))
	}
}

func run(app *application.Application) error {
	cfg := app.Config().Broker
	logger := app.Logger("broker")

	ctx, stop := app.Context()
	defer stop()

	metrics.Register(prometheus.DefaultRegisterer)

	srv, err := broker.NewServer(cfg)
	if err != nil {
		return err
	}
	srv.SetLogger(logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if cfg.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		hs := &http.Server{Addr: cfg.MetricsListen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info("metrics endpoint listening", zap.String("addr", cfg.MetricsListen))
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return hs.Shutdown(sctx)
		})
	}

	logger.Info("Chat server started",
		zap.String("service", cfg.ServiceName),
		zap.Stringer("addr", srv.Addr()))
	err = g.Wait()
	logger.Info("Chat server stopped",
		zap.Int("participants", srv.Registry().Count()),
		zap.Int("connections", srv.Connections()),
		zap.Error(err))
	return err
}
