package client

// StateSync lives here, inside package client, rather than as a
// standalone package (spec §4.10's component J). Every one of its five
// operations takes or returns a ClientConn, and ClientConn lives in this
// package — a separate statesync package would need to import client for
// the type while client would need to import it back for the functions,
// an import cycle. Keeping it as a file in client avoids that with no
// loss of the "pure transformation, no side effects on session fields"
// contract the spec calls for.

import (
	"github.com/ZenHive/websockex-nova-go/config"
	"github.com/ZenHive/websockex-nova-go/connstate"
	"github.com/ZenHive/websockex-nova-go/transport"
)

// TransportState is the partial<ConnectionState> spec §4.10's
// extract_transport_state returns: only the fields a ConnectionState is
// allowed to carry, pulled out of a ClientConn's connection_info.
type TransportState struct {
	Host      string
	Port      uint16
	Path      string
	Transport transport.Kind
	Opts      transport.Opts
}

// ExtractTransportState pulls host/port/path/transport_kind/ws_opts out of
// conn.ConnectionInfo. It never touches auth_status, access_token,
// credentials, subscriptions, or adapter_state (spec §4.10).
func ExtractTransportState(conn *ClientConn) TransportState {
	conn.mu.RLock()
	defer conn.mu.RUnlock()

	kind := transport.TCP
	if conn.ConnectionInfo.Transport == config.TLS {
		kind = transport.TLS
	}

	return TransportState{
		Host:      conn.ConnectionInfo.Host,
		Port:      conn.ConnectionInfo.Port,
		Path:      conn.ConnectionInfo.Path,
		Transport: kind,
		Opts: transport.Opts{
			Kind:         kind,
			Protocols:    conn.ConnectionInfo.Protocols,
			Compress:     conn.ConnectionInfo.WS.Compress,
			MaxFrameSize: conn.ConnectionInfo.WS.MaxFrameSize,
		},
	}
}

// UpdateClientFromTransport refreshes conn's transport_handle, stream_ref,
// and last_error from state while leaving every session field (auth,
// credentials, subscriptions) untouched (spec §4.10). state's status is
// not copied onto conn; config.Options has no field for it.
func UpdateClientFromTransport(conn *ClientConn, state *connstate.State) {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	conn.TransportHandle = state.TransportHandle
	conn.LastError = state.LastError
	conn.StreamRef = state.CurrentStream()
}

// SyncConnectionStateFromClient replaces state.Options with conn's
// connection_info, with the credentials removed so no session data reaches
// the ConnectionState, preserving state's own transport_handle, status, and
// other runtime-only fields (spec §4.10). state's Host/Port/Path/Transport/
// Opts dial fields are not changed.
func SyncConnectionStateFromClient(state *connstate.State, conn *ClientConn) {
	conn.mu.RLock()
	info := conn.ConnectionInfo
	conn.mu.RUnlock()

	info.Auth.Credentials = nil
	state.Options = info
}

// SyncClientFromConnection is the symmetric operation UpdateClientFromTransport
// performs after every reconnect: conn's transport fields are refreshed
// from state while every session field is preserved untouched. This is
// the operation §8's reconnection-cycle contract test exercises directly.
func SyncClientFromConnection(conn *ClientConn, state *connstate.State) {
	UpdateClientFromTransport(conn, state)
}

// RegisterCallback and UnregisterCallback (spec §4.10) are ClientConn
// methods (clientconn.go) rather than free functions here, since they
// only ever touch conn's own subscriber set and never state.
