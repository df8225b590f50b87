// Command membersd serves the /members API that vuload targets by default.
package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pingcap/errors"
	plog "github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/torosent/vuload/internal/members"
)

const idleTimeout = 120 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to a TOML config file")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	lg, props, err := plog.InitLogger(&plog.Config{Level: *logLevel, Format: "text"})
	if err != nil {
		os.Stderr.WriteString("init logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	plog.ReplaceGlobals(lg, props)

	cfg, err := members.LoadConfig(*configPath)
	if err != nil {
		plog.Error("load config failed", zap.String("path", *configPath), zap.Error(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		plog.Error("membersd exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *members.Config) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ln, err := net.Listen("tcp", cfg.Server.Addr())
	if err != nil {
		return errors.Annotatef(err, "listen on %s failed", cfg.Server.Addr())
	}
	return serve(ctx, ln, newHandler(store, members.NewMetrics()), cfg.Server)
}

// newHandler mounts the members API behind the access log and the request
// instruments, with the Prometheus registry on /metrics.
func newHandler(store members.Store, metrics *members.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())
	mux.Handle("/", members.AccessLog(metrics.Instrument(members.NewHandler(store))))
	return mux
}

func openStore(ctx context.Context, cfg *members.Config) (members.Store, error) {
	switch cfg.Store {
	case members.StoreMySQL:
		return members.OpenMySQL(ctx, cfg.Database)
	case members.StoreMemory:
		return members.NewMemoryStore(members.DefaultSeed...), nil
	}
	return nil, errors.Errorf("unknown store %q", cfg.Store)
}

// serve runs the HTTP server on ln until ctx is done, then drains in-flight
// requests for at most the configured shutdown timeout.
func serve(ctx context.Context, ln net.Listener, handler http.Handler, cfg members.ServerConfig) error {
	server := &http.Server{
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout.Duration,
		WriteTimeout: cfg.WriteTimeout.Duration,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		plog.Info("membersd listening", zap.String("addr", ln.Addr().String()))
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return errors.Annotate(err, "server failed")
	case <-ctx.Done():
	}

	plog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Duration)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Annotate(err, "server forced to shutdown")
	}
	if err := <-errCh; err != nil && err != http.ErrServerClosed {
		return errors.Trace(err)
	}
	plog.Info("server exited")
	return nil
}
