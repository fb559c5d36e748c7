// Copyright (c) 2024, 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marko-gacesa/udpstate/transport"
	"github.com/marko-gacesa/udpstate/transport/kcp"
	"github.com/marko-gacesa/udpstate/transport/ws"
)

const (
	//ipStr = "FF05::23A5" // https://www.iana.org/assignments/ipv6-multicast-addresses/ipv6-multicast-addresses.xhtml#site-local
	ipStr = "239.255.231.79" // https://www.iana.org/assignments/multicast-addresses/multicast-addresses.xhtml

	multicastPort = 45286
)

var multicastAddr = net.UDPAddr{
	IP:   net.ParseIP(ipStr),
	Port: multicastPort,
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("use param: 'server', 'client' or 'discover'")
		os.Exit(2)
	}

	ctx, cancelFn := context.WithCancel(context.Background())

	go func() {
		signalStop := make(chan os.Signal, 1)
		signal.Notify(signalStop, syscall.SIGINT, syscall.SIGTERM)

		defer func() {
			signal.Stop(signalStop)
			cancelFn()
		}()

		select {
		case <-signalStop:
		case <-ctx.Done():
		}
	}()

	var err error

	switch os.Args[1] {
	case "server":
		err = runServer(ctx, os.Args[2:])
	case "client":
		err = runClient(ctx, os.Args[2:])
	case "discover":
		err = runDiscover(ctx, os.Args[2:])
	default:
		fmt.Println("supported value of the mandatory param: 'server', 'client' or 'discover'")
		cancelFn()
		os.Exit(2)
	}

	cancelFn()

	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "error: %s\n", err.Error())
		os.Exit(1)
	}
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newRegistry returns a registry with the process and Go runtime collectors.
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// serveMetrics exposes the registry over HTTP until the context is done.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, log *slog.Logger) error {
	if addr == "" {
		<-ctx.Done()
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("serving metrics", "addr", addr)

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return fmt.Errorf("failed to serve metrics: %w", err)
}

func newListener(kind string, port int, log *slog.Logger) (transport.Listener, error) {
	addr := fmt.Sprintf(":%d", port)
	switch kind {
	case "udp":
		return transport.NewUDPListener(port, log), nil
	case "kcp":
		return kcp.NewListener(addr, log), nil
	case "ws":
		return ws.NewListener(addr, log), nil
	}
	return nil, fmt.Errorf("unsupported transport: %q", kind)
}

func dial(ctx context.Context, kind string, addr string) (transport.Conn, error) {
	switch kind {
	case "udp":
		udpAddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve server address: %w", err)
		}
		return transport.DialUDP(*udpAddr)
	case "kcp":
		return kcp.Dial(addr)
	case "ws":
		return ws.Dial(ctx, "ws://"+addr+"/")
	}
	return nil, fmt.Errorf("unsupported transport: %q", kind)
}
