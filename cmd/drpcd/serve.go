package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/coregx/drpc/drpc"
	"github.com/coregx/drpc/config"
	"github.com/coregx/drpc/events"
	"github.com/coregx/drpc/logger"
	"github.com/coregx/drpc/metrics"
	"github.com/coregx/drpc/wsduplex"
)

var (
	serveConfigPath string
	serveWS         bool
	serveWSPath     string
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the drpc echo server",
	Example: "drpcd serve --config drpcd.yaml\n  drpcd serve --ws --ws-path /drpc",
	Run:     runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Configuration file path (defaults used if empty)")
	serveCmd.Flags().BoolVar(&serveWS, "ws", false, "Carry drpc over a WebSocket duplex channel instead of raw TCP")
	serveCmd.Flags().StringVar(&serveWSPath, "ws-path", "/drpc", "HTTP path the WebSocket upgrade is served on when --ws is set")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := config.DefaultServer()
	if serveConfigPath != "" {
		c, err := config.LoadPath(serveConfigPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		if err := c.Unpack(&cfg); err != nil {
			fmt.Fprintf(os.Stderr, "failed to unpack config: %v\n", err)
			os.Exit(1)
		}
	}

	log := logger.New(cfg.Logger)
	reg := prometheus.NewRegistry()
	rec := metrics.NewRecorder(reg)

	bus := events.NewBus()
	go bus.Run()
	defer bus.Close()

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		mux.Handle("/events", events.Handler(bus))
		go func() {
			log.Infow("metrics and events listening", "addr", cfg.Metrics.Addr)
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				log.Errorw("metrics server stopped", "error", err)
			}
		}()
	}

	srv := &drpc.Server{
		Handler:  drpc.HandlerFunc(echoRPC),
		Registry: drpc.NewRegistry(),
		Events:   bus,
		Logger:   log,
		Metrics:  rec,
	}

	if serveWS {
		runServeWS(srv, cfg, log)
		return
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to listen: %v\n", err)
		os.Exit(1)
	}
	log.Infow("drpc server listening", "addr", ln.Addr().String())
	srv.Listener = ln

	go func() {
		if err := srv.Serve(); err != nil {
			log.Infow("accept loop stopped", "error", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("shutdown error", "error", err)
	}
}

// runServeWS carries the same Handler/Registry/Events/Metrics stack
// as the TCP path, but over connections produced by a WebSocket
// upgrade instead of a net.Listener: each accepted HTTP request is
// upgraded via wsduplex.Upgrade, wrapped into a wsduplex.Duplex
// io.ReadWriteCloser, and handed to srv.ServeConn — exercising the
// duplex channel contract's "any io.ReadWriteCloser" generality
// instead of raw TCP.
func runServeWS(srv *drpc.Server, cfg config.Server, log logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc(serveWSPath, func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsduplex.Upgrade(w, r, nil)
		if err != nil {
			log.Warnw("websocket upgrade failed", "error", err)
			return
		}
		srv.ServeConn(wsduplex.NewDuplex(conn))
	})

	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		log.Infow("drpc server listening over websocket", "addr", cfg.ListenAddr, "path", serveWSPath)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("websocket listener stopped", "error", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Errorw("shutdown error", "error", err)
	}
}

// echoRPC implements the "echo" method: read one message, send it
// back, repeat until the client half-closes its send side.
func echoRPC(rpcName []byte, s *drpc.Stream) error {
	for {
		var in []byte
		if err := s.RecvInto(&in); err != nil {
			if err == drpc.ErrEOF {
				return s.Close()
			}
			return err
		}
		if err := s.Send(in); err != nil {
			return err
		}
	}
}
