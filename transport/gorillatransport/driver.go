// Package gorillatransport implements transport.Driver on top of
// github.com/gorilla/websocket, following the dialer-construction and
// deadline-management pattern of the teacher's
// internal/heartbeat.runSignalingSession, generalized from one hardcoded
// Socket.IO session into the generic Open/Upgrade/Send/Close lifecycle
// transport.Driver requires.
package gorillatransport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/ZenHive/websockex-nova-go/frame"
	"github.com/ZenHive/websockex-nova-go/transport"
)

// connEntry holds everything the driver needs to remember about one open
// handle: the raw net.Conn from Open, and (once Upgrade succeeds) the
// gorilla *websocket.Conn plus its read pump's cancel function.
type connEntry struct {
	mu       sync.Mutex
	raw      net.Conn
	ws       *websocket.Conn
	stream   transport.StreamRef
	owner    chan<- transport.Event
	monitor  transport.MonitorToken
	closed   bool
	cancelRead context.CancelFunc
}

// Driver is a transport.Driver backed by real TCP/TLS sockets and
// gorilla/websocket's client-side HTTP upgrade handshake.
type Driver struct {
	mu      sync.Mutex
	conns   map[transport.Handle]*connEntry
	nextH   atomic.Uint64
	nextS   atomic.Uint64
	nextMon atomic.Uint64
}

// New returns an unstarted Driver. One Driver should be owned by exactly
// one ConnectionEngine at a time (spec §5, "Shared-resource policy").
func New() *Driver {
	return &Driver{conns: make(map[transport.Handle]*connEntry)}
}

func (d *Driver) entry(h transport.Handle) (*connEntry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.conns[h]
	return e, ok
}

// Open dials host:port over TCP or TLS depending on opts.Kind. The dial
// itself runs in a goroutine; the driver emits EventUp on success or
// EventDown on failure, never blocking the caller.
func (d *Driver) Open(ctx context.Context, host string, port uint16, opts transport.Opts, owner chan<- transport.Event) (transport.Handle, error) {
	h := transport.Handle(d.nextH.Add(1))
	entry := &connEntry{owner: owner}

	d.mu.Lock()
	d.conns[h] = entry
	d.mu.Unlock()

	go d.dial(ctx, h, entry, host, port, opts)

	return h, nil
}

func (d *Driver) dial(ctx context.Context, h transport.Handle, entry *connEntry, host string, port uint16, opts transport.Opts) {
	addr := net.JoinHostPort(host, strconv.Itoa(int(port)))

	dialer := &net.Dialer{Timeout: opts.DialTimeout}
	var conn net.Conn
	var err error

	if opts.Kind == transport.TLS {
		tlsConf := &tls.Config{ServerName: host, InsecureSkipVerify: opts.InsecureSkipVerify} //nolint:gosec // operator-controlled opt-in
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, tlsConf)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}

	if err != nil {
		d.emit(entry, transport.Event{Kind: transport.EventDown, Handle: h, Reason: fmt.Errorf("dial %s: %w", addr, err)})
		return
	}

	protocol := "tcp"
	if opts.Kind == transport.TLS {
		protocol = "tls"
	}

	entry.mu.Lock()
	entry.raw = conn
	entry.mu.Unlock()

	d.emit(entry, transport.Event{Kind: transport.EventUp, Handle: h, Protocol: protocol})
}

// Upgrade performs the client-side HTTP->WS handshake over the Handle's
// already-open net.Conn using websocket.NewClient, then starts a read pump
// that forwards inbound frames as EventFrame and surfaces read errors as
// EventDown.
func (d *Driver) Upgrade(ctx context.Context, h transport.Handle, path string, headers http.Header) (transport.StreamRef, error) {
	entry, ok := d.entry(h)
	if !ok {
		return transport.NoStream, transport.ErrNoHandle
	}

	entry.mu.Lock()
	raw := entry.raw
	entry.mu.Unlock()
	if raw == nil {
		return transport.NoStream, fmt.Errorf("upgrade: handle %d has no open connection", h)
	}

	u := &url.URL{Scheme: "ws", Host: raw.RemoteAddr().String(), Path: path}

	ws, resp, err := websocket.NewClient(raw, u, headers, 4096, 4096)
	if err != nil {
		d.emit(entry, transport.Event{Kind: transport.EventStreamError, Handle: h, Reason: fmt.Errorf("ws upgrade: %w", err)})
		return transport.NoStream, err
	}
	if resp != nil {
		defer resp.Body.Close()
	}

	stream := transport.StreamRef(d.nextS.Add(1))

	entry.mu.Lock()
	entry.ws = ws
	entry.stream = stream
	readCtx, cancel := context.WithCancel(context.Background())
	entry.cancelRead = cancel
	entry.mu.Unlock()

	go d.readPump(readCtx, h, stream, entry)

	respHeaders := http.Header{}
	if resp != nil {
		respHeaders = resp.Header
	}
	d.emit(entry, transport.Event{Kind: transport.EventUpgraded, Handle: h, Stream: stream, Headers: respHeaders})

	return stream, nil
}

func (d *Driver) readPump(ctx context.Context, h transport.Handle, stream transport.StreamRef, entry *connEntry) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		mt, payload, err := entry.ws.ReadMessage()
		if err != nil {
			d.emit(entry, transport.Event{Kind: transport.EventDown, Handle: h, Reason: err})
			return
		}
		d.emit(entry, transport.Event{
			Kind:   transport.EventFrame,
			Handle: h,
			Stream: stream,
			Wire:   frame.WireFrame{MessageType: mt, Payload: payload},
		})
	}
}

// Send writes one wire frame to the given stream.
func (d *Driver) Send(h transport.Handle, s transport.StreamRef, w frame.WireFrame) error {
	entry, ok := d.entry(h)
	if !ok {
		return transport.ErrNoHandle
	}
	entry.mu.Lock()
	ws := entry.ws
	cur := entry.stream
	entry.mu.Unlock()

	if ws == nil || cur != s {
		return fmt.Errorf("send: stream %d not found on handle %d", s, h)
	}
	return ws.WriteMessage(w.MessageType, w.Payload)
}

// SetOwner installs a new event-routing channel for h and returns a fresh
// MonitorToken. The caller is responsible for treating any prior token as
// released once this returns (spec §3 invariant: old monitor released
// before the new one is installed).
func (d *Driver) SetOwner(h transport.Handle, owner chan<- transport.Event) (transport.MonitorToken, error) {
	entry, ok := d.entry(h)
	if !ok {
		return 0, transport.ErrNoHandle
	}
	tok := transport.MonitorToken(d.nextMon.Add(1))

	entry.mu.Lock()
	entry.owner = owner
	entry.monitor = tok
	entry.mu.Unlock()

	return tok, nil
}

// Close tears down h's socket and stops its read pump. Safe to call more
// than once.
func (d *Driver) Close(h transport.Handle) {
	entry, ok := d.entry(h)
	if !ok {
		return
	}

	entry.mu.Lock()
	if entry.closed {
		entry.mu.Unlock()
		return
	}
	entry.closed = true
	if entry.cancelRead != nil {
		entry.cancelRead()
	}
	ws := entry.ws
	raw := entry.raw
	entry.mu.Unlock()

	if ws != nil {
		_ = ws.Close()
	} else if raw != nil {
		_ = raw.Close()
	}

	d.mu.Lock()
	delete(d.conns, h)
	d.mu.Unlock()
}

func (d *Driver) emit(entry *connEntry, ev transport.Event) {
	entry.mu.Lock()
	owner := entry.owner
	entry.mu.Unlock()
	if owner == nil {
		return
	}
	select {
	case owner <- ev:
	default:
		// Owner's channel is full; hand the send to a goroutine rather than
		// block the socket goroutine. The event is not dropped, but its
		// order relative to later events is then not guaranteed.
		go func() { owner <- ev }()
	}
}
