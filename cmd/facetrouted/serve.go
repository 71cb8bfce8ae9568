package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/blockberries/facetroute/access"
	"github.com/blockberries/facetroute/config"
	"github.com/blockberries/facetroute/dispatcher"
	facetgrpc "github.com/blockberries/facetroute/grpc"
	"github.com/blockberries/facetroute/httpapi"
	"github.com/blockberries/facetroute/metrics"
	"github.com/blockberries/facetroute/store"
	"github.com/blockberries/facetroute/store/sqlite"
	"github.com/blockberries/facetroute/telemetry"
)

const shutdownTimeout = 10 * time.Second

// Run opens the configured listeners and serves until ctx is done.
func Run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}
	var httpLis net.Listener
	if cfg.HTTPAddr != "" {
		httpLis, err = net.Listen("tcp", cfg.HTTPAddr)
		if err != nil {
			_ = grpcLis.Close()
			return fmt.Errorf("listen http %s: %w", cfg.HTTPAddr, err)
		}
	}
	return Serve(ctx, cfg, log, grpcLis, httpLis)
}

// Serve runs the daemon on already bound listeners. httpLis may be nil.
func Serve(ctx context.Context, cfg config.Config, log zerolog.Logger, grpcLis, httpLis net.Listener) error {
	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	st, err := openStore(ctx, cfg.StorePath)
	if err != nil {
		return err
	}
	defer st.Close()

	collector := metrics.NewCollector("")
	d, err := dispatcher.New(ctx, cfg.Gate(),
		dispatcher.WithStore(st),
		dispatcher.WithHasher(cfg.HasherImpl()),
		dispatcher.WithMinDelay(cfg.MinDelay),
		dispatcher.WithLogger(log.With().Str("component", "dispatcher").Logger()),
		dispatcher.WithObserver(collector),
		dispatcher.WithRecorder(collector),
	)
	if err != nil {
		return err
	}
	defer d.Close()

	snapshot, err := d.State(ctx)
	if err != nil {
		return err
	}
	collector.Sync(snapshot)
	collector.TrackLiveRoutes(d.Len)

	tokens, err := access.NewTokens([]byte(cfg.TokenSecret), cfg.TokenIssuer)
	if err != nil {
		return err
	}
	gs := facetgrpc.NewGRPCServer(d, tokens, log.With().Str("component", "grpc").Logger())
	grpcServer := grpc.NewServer(append(gs.ServerOptions(),
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)...)
	gs.Register(grpcServer)

	var httpServer *http.Server
	if httpLis != nil {
		api := httpapi.New(d, collector.Handler(), log.With().Str("component", "http").Logger())
		httpServer = &http.Server{
			Handler:           api.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	log.Info().
		Str("grpc", grpcLis.Addr().String()).
		Uint64("active_epoch", snapshot.ActiveEpoch).
		Str("phase", dispatcher.PhaseOf(snapshot).String()).
		Str("hasher", cfg.HasherImpl().Name()).
		Dur("min_delay", snapshot.MinDelay.ToGo()).
		Msg("facetrouted started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve grpc: %w", err)
		}
		return nil
	})
	if httpServer != nil {
		g.Go(func() error {
			if err := httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve http: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		// Ends Watch streams so GracefulStop can finish.
		_ = d.Close()
		grpcServer.GracefulStop()
		if httpServer != nil {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpServer.Shutdown(sctx)
		}
		return nil
	})
	return g.Wait()
}

func openStore(ctx context.Context, path string) (store.Store, error) {
	if path == "" {
		return store.NewMemory(), nil
	}
	s, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return s, nil
}
