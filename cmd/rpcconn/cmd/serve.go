package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/relaywire/rpcconn"
	"github.com/relaywire/rpcconn/cmd/rpcconn/demoroot"
	"github.com/relaywire/rpcconn/handler/mapsignal"
	"github.com/relaywire/rpcconn/internal/config"
	"github.com/relaywire/rpcconn/observability"
	"github.com/relaywire/rpcconn/proxy"
	"github.com/relaywire/rpcconn/transport"
	"github.com/relaywire/rpcconn/transport/looptransport"
	"github.com/relaywire/rpcconn/transport/pipeendpoint"
	"github.com/relaywire/rpcconn/transport/wsendpoint"
)

var devMode bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose the demo root object over the configured transport",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "enable development defaults (debug logging, nested-proxy traversal)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return err
	}
	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}))

	if used := config.ConfigFileUsed(); used != "" {
		log.Info("loaded config", "file", used)
	}

	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	defer stop()
	go func() {
		<-ctx.Done()
		log.Info("shutdown signal received, press again to force exit")
		<-ctx.Done()
	}()

	var reg *prometheus.Registry
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		reg = prometheus.NewRegistry()
		metrics = observability.NewMetrics(reg)
		srv := startMetricsServer(log, cfg.Observability.MetricsAddr, reg)
		defer func() { _ = srv.Close() }()
	}

	opts := []rpcconn.Option{rpcconn.WithLogger(log)}
	if cfg.Connection.NestedProxies {
		opts = append(opts, rpcconn.WithNestedProxies())
	}
	if cfg.Connection.Debug {
		opts = append(opts, rpcconn.WithDebug())
	}
	if metrics != nil {
		opts = append(opts, rpcconn.WithMetrics(metrics))
	}
	if cfg.Observability.TracingEnabled {
		tp, err := observability.NewDebugTracerProvider()
		if err != nil {
			return fmt.Errorf("starting tracer: %w", err)
		}
		defer func() { _ = observability.ShutdownTracerProvider(context.Background(), tp) }()
		opts = append(opts, rpcconn.WithTracer(tp.Tracer("rpcconn/demo")))
	}
	for _, name := range cfg.Connection.Handlers {
		switch name {
		case "map":
			opts = append(opts, rpcconn.WithHandlers(mapsignal.New()))
		}
	}

	root := demoroot.New(log)

	if len(cfg.Server.Command) > 0 {
		return runWrapMode(ctx, log, cfg.Server.Command, opts)
	}

	switch cfg.Server.Transport {
	case "stdio":
		return serveStdio(ctx, log, root, opts)
	case "socketpair":
		return serveSelfDemo(ctx, log, root, opts)
	case "websocket":
		return serveWebsocket(ctx, log, cfg.Server.ListenAddr, root, opts)
	default:
		return fmt.Errorf("unknown transport %q", cfg.Server.Transport)
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func startMetricsServer(log *slog.Logger, addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.Info("metrics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", "error", err)
		}
	}()
	return srv
}

// serveStdio exposes root over the process's own stdin/stdout, the shape a
// peer process spawning this one via pipeendpoint.NewProcess expects.
func serveStdio(ctx context.Context, log *slog.Logger, root any, opts []rpcconn.Option) error {
	ep := transport.NewStreamEndpoint(os.Stdin, os.Stdout, nil)
	closer, err := rpcconn.Expose(root, ep, opts...)
	if err != nil {
		return fmt.Errorf("expose over stdio: %w", err)
	}
	log.Info("exposing demo root over stdio")
	<-ctx.Done()
	log.Info("stopping")
	return closer.Close()
}

// serveSelfDemo exposes root and wraps it in the same process over an
// in-memory socketpair, then drives a few calls against it (runDemoCalls:
// Add and Greet) without any external peer — useful for trying the demo with
// no other process to launch.
func serveSelfDemo(ctx context.Context, log *slog.Logger, root any, opts []rpcconn.Option) error {
	a, b, err := looptransport.New()
	if err != nil {
		return fmt.Errorf("build loopback transport: %w", err)
	}

	closer, err := rpcconn.Expose(root, a, opts...)
	if err != nil {
		return fmt.Errorf("expose over loopback: %w", err)
	}
	defer closer.Close()

	remote, err := rpcconn.Wrap(ctx, b, opts...)
	if err != nil {
		return fmt.Errorf("wrap loopback: %w", err)
	}
	defer remote.Release()

	runDemoCalls(ctx, log, remote)

	log.Info("self-demo running, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("stopping")
	return nil
}

// serveWebsocket listens on addr and exposes root to each accepted
// connection; every connection gets its own Connection, all sharing the same
// root object.
func serveWebsocket(ctx context.Context, log *slog.Logger, addr string, root any, opts []rpcconn.Option) error {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error("websocket upgrade failed", "error", err)
			return
		}
		ep := wsendpoint.New(conn)
		closer, err := rpcconn.Expose(root, ep, opts...)
		if err != nil {
			log.Error("expose over websocket failed", "error", err)
			_ = ep.Close()
			return
		}
		log.Info("exposing demo root to new websocket peer", "remote", r.RemoteAddr)
		go func() {
			<-ctx.Done()
			_ = closer.Close()
		}()
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	log.Info("websocket server listening", "addr", addr)

	select {
	case <-ctx.Done():
		log.Info("stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// runWrapMode launches command as a subprocess exposing a root object of its
// own, wraps its stdio, and drives the same demo calls against it. This is
// the counterpart to serveStdio: run one rpcconn process with no Command to
// expose the demo root, and a second with server.command set to that first
// process's invocation to wrap it.
func runWrapMode(ctx context.Context, log *slog.Logger, command []string, opts []rpcconn.Option) error {
	proc := pipeendpoint.NewProcess(command[0], command[1:]...)
	ep, err := proc.Start(ctx)
	if err != nil {
		return fmt.Errorf("start peer process: %w", err)
	}
	defer proc.Close()

	remote, err := rpcconn.Wrap(ctx, ep, opts...)
	if err != nil {
		return fmt.Errorf("wrap peer process: %w", err)
	}
	defer remote.Release()

	log.Info("wrapped peer process", "command", command)
	runDemoCalls(ctx, log, remote)

	<-ctx.Done()
	log.Info("stopping, waiting for peer process to exit")
	return stopPeerProcess(log, proc)
}

// stopPeerProcess asks the wrapped peer process to exit gracefully
// (sendGracefulStop: SIGTERM on Unix, TerminateProcess on Windows), polls
// processIsAlive for it to actually exit, and falls back to proc.Close's
// unconditional Kill if it hasn't within the grace period.
func stopPeerProcess(log *slog.Logger, proc *pipeendpoint.Process) error {
	osProc := proc.OSProcess()
	if osProc == nil {
		return proc.Close()
	}

	if err := sendGracefulStop(osProc); err != nil {
		log.Warn("rpcconn: graceful stop signal failed, killing", "error", err)
		return proc.Close()
	}

	const gracePeriod = 3 * time.Second
	const pollInterval = 50 * time.Millisecond
	deadline := time.Now().Add(gracePeriod)
	for time.Now().Before(deadline) {
		if !processIsAlive(osProc) {
			return proc.Close()
		}
		time.Sleep(pollInterval)
	}

	log.Warn("rpcconn: peer process still alive after graceful stop, killing", "pid", osProc.Pid)
	return proc.Close()
}

func runDemoCalls(ctx context.Context, log *slog.Logger, remote *proxy.Remote) {
	sum, err := remote.Call(ctx, "Add", 2.0, 40.0)
	if err != nil {
		log.Error("demo Add call failed", "error", err)
	} else {
		log.Info("demo Add call", "result", sum)
	}

	greeting, err := remote.Call(ctx, "Greet", "rpcconn")
	if err != nil {
		log.Error("demo Greet call failed", "error", err)
	} else {
		log.Info("demo Greet call", "result", greeting)
	}
}
