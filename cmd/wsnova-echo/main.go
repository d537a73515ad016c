// Command wsnova-echo is an example wiring of package client: it dials a
// WebSocket echo endpoint, sends one text message, prints whatever comes
// back, and exits — the smallest demonstration of the connect/send/receive
// path the teacher's cmd/agent/main.go wires end to end for the signaling
// WebSocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZenHive/websockex-nova-go/client"
	"github.com/ZenHive/websockex-nova-go/config"
	"github.com/ZenHive/websockex-nova-go/handlers"
	"github.com/ZenHive/websockex-nova-go/reconnect"
	"github.com/ZenHive/websockex-nova-go/transport"
	"github.com/ZenHive/websockex-nova-go/transport/gorillatransport"
)

func main() {
	var (
		host     = flag.String("host", "echo.websocket.org", "websocket host")
		port     = flag.Uint("port", 443, "websocket port")
		path     = flag.String("path", "/", "websocket path")
		insecure = flag.Bool("insecure-tcp", false, "dial plain TCP instead of TLS")
		message  = flag.String("message", "hello from wsnova-echo", "text message to send")
		logLevel = flag.String("log-level", "info", "debug|info|warn|error")
	)
	flag.Parse()

	initLogger(*logLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *host, uint16(*port), *path, *insecure, *message); err != nil {
		slog.Error("wsnova-echo exited with error", "error", err)
		os.Exit(1)
	}
}

// run wires a Connection the way an adapter is expected to: resolve
// options, build a handler Bindings with the library defaults (spec.md §9
// "sane zero-value defaults"), Connect, wait for the first upgrade, send
// one message, print the first reply, and tear down.
func run(ctx context.Context, host string, port uint16, path string, insecureTCP bool, message string) error {
	opts := config.Default()
	opts.Host = host
	opts.Port = port
	opts.Path = path
	opts.Transport = config.TLS
	if insecureTCP {
		opts.Transport = config.TCP
	}
	if err := config.Validate(opts); err != nil {
		return fmt.Errorf("resolving options: %w", err)
	}

	hb, err := handlers.Builder{
		Error: reconnect.NewDefaultErrorHandler(opts.Reconnect),
	}.Build()
	if err != nil {
		return fmt.Errorf("building handler bindings: %w", err)
	}

	driver := gorillatransport.New()
	tk := transport.TCP
	if opts.Transport == config.TLS {
		tk = transport.TLS
	}

	conn := client.Connect(ctx, driver, opts.Host, opts.Port, opts.Path, tk, transport.Opts{
		Kind:         tk,
		Headers:      headersOf(opts.Headers),
		Protocols:    opts.Protocols,
		Compress:     opts.WS.Compress,
		MaxFrameSize: opts.WS.MaxFrameSize,
	}, opts, hb)

	events := make(chan client.Event, 16)
	conn.Conn.RegisterCallback(events)
	defer conn.Conn.UnregisterCallback(events)

	if err := conn.Engine.Connect(ctx); err != nil {
		return fmt.Errorf("dialing: %w", err)
	}

	slog.Info("dialing", "host", opts.Host, "port", opts.Port, "path", opts.Path)
	if err := waitFor(ctx, events, client.WebSocketUpgrade, opts.Timeout); err != nil {
		return fmt.Errorf("waiting for websocket upgrade: %w", err)
	}
	slog.Info("websocket connected", "status", conn.Status())

	reply, err := conn.SendText(ctx, message)
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}

	fmt.Printf("echo reply: %v\n", reply)
	return conn.Close()
}

// waitFor blocks until an event of kind k arrives, ctx is cancelled, or
// timeout elapses.
func waitFor(ctx context.Context, events <-chan client.Event, k client.Kind, timeout time.Duration) error {
	deadline := time.After(timeout)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("timed out waiting for event kind %v", k)
		case ev := <-events:
			if ev.Kind == k {
				return nil
			}
		}
	}
}

func headersOf(h map[string]string) http.Header {
	out := make(http.Header, len(h))
	for k, v := range h {
		out.Set(k, v)
	}
	return out
}

func initLogger(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
