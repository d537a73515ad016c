// Package faketransport is an in-memory transport.Driver double used by
// engine and client tests, mirroring the separation the
// teacher already keeps between reconnection policy (heartbeat.go) and the
// real socket (gorilla's Dialer): policy code here is tested against this
// fake instead of opening real connections.
package faketransport

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/ZenHive/websockex-nova-go/frame"
	"github.com/ZenHive/websockex-nova-go/transport"
)

// Driver is a scriptable fake: tests call Deliver* to inject events, and
// inspect Opened/Upgraded/Sent/Closed to assert what the engine did.
type Driver struct {
	mu sync.Mutex

	nextH   atomic.Uint64
	nextS   atomic.Uint64
	nextMon atomic.Uint64

	owners map[transport.Handle]chan<- transport.Event

	// OpenErr, when set, is returned by the next Open call instead of
	// succeeding.
	OpenErr error
	// UpgradeErr, when set, is returned by the next Upgrade call.
	UpgradeErr error

	Opened   []OpenCall
	Upgraded []UpgradeCall
	Sent     []SendCall
	Closed   []transport.Handle
}

type OpenCall struct {
	Host string
	Port uint16
	Opts transport.Opts
}

type UpgradeCall struct {
	Handle transport.Handle
	Path   string
}

type SendCall struct {
	Handle transport.Handle
	Stream transport.StreamRef
	Wire   frame.WireFrame
}

// New returns a ready-to-use fake driver.
func New() *Driver {
	return &Driver{owners: make(map[transport.Handle]chan<- transport.Event)}
}

func (d *Driver) Open(_ context.Context, host string, port uint16, opts transport.Opts, owner chan<- transport.Event) (transport.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.Opened = append(d.Opened, OpenCall{Host: host, Port: port, Opts: opts})
	if d.OpenErr != nil {
		err := d.OpenErr
		d.OpenErr = nil
		return transport.NoHandle, err
	}

	h := transport.Handle(d.nextH.Add(1))
	d.owners[h] = owner
	return h, nil
}

func (d *Driver) Upgrade(_ context.Context, h transport.Handle, path string, _ http.Header) (transport.StreamRef, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.Upgraded = append(d.Upgraded, UpgradeCall{Handle: h, Path: path})
	if d.UpgradeErr != nil {
		err := d.UpgradeErr
		d.UpgradeErr = nil
		return transport.NoStream, err
	}
	if _, ok := d.owners[h]; !ok {
		return transport.NoStream, transport.ErrNoHandle
	}
	return transport.StreamRef(d.nextS.Add(1)), nil
}

func (d *Driver) Send(h transport.Handle, s transport.StreamRef, w frame.WireFrame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.owners[h]; !ok {
		return transport.ErrNoHandle
	}
	d.Sent = append(d.Sent, SendCall{Handle: h, Stream: s, Wire: w})
	return nil
}

func (d *Driver) SetOwner(h transport.Handle, owner chan<- transport.Event) (transport.MonitorToken, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.owners[h]; !ok {
		return 0, transport.ErrNoHandle
	}
	d.owners[h] = owner
	return transport.MonitorToken(d.nextMon.Add(1)), nil
}

func (d *Driver) Close(h transport.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.owners, h)
	d.Closed = append(d.Closed, h)
}

// Deliver injects an event as though the driver itself produced it,
// addressed to whatever owner is currently registered for ev.Handle. Tests
// use this to simulate Up/Down/Upgraded/Frame/StreamError/OwnerDown
// independently of real dial/upgrade calls, including stale events bearing
// a handle the fake never actually owns anymore (spec §8, S6).
func (d *Driver) Deliver(owner chan<- transport.Event, ev transport.Event) {
	owner <- ev
}

// OwnerFor returns the channel Open or SetOwner most recently registered
// for h, so a test one layer above engine (which has no access to engine's
// unexported owner channel) can still deliver events addressed to a
// specific handle.
func (d *Driver) OwnerFor(h transport.Handle) (chan<- transport.Event, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	owner, ok := d.owners[h]
	return owner, ok
}

// NewHandle mints a handle value for tests that want to construct stale
// events without going through Open (e.g. "handle that used to exist").
func (d *Driver) NewHandle() transport.Handle {
	return transport.Handle(d.nextH.Add(1))
}
