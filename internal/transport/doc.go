// Package transport carries session events between connected clients and
// the coordinator over WebSocket connections.
//
// # Wire Format
//
// Every message in either direction is one JSON text frame:
//
//	{"event": "line", "payload": {"lineId": "l2"}}
//
// A nil payload is written as null, which receivers treat as "cleared". The
// transport answers frames it cannot handle with an "error" event sent to the
// offending client only:
//
//	{"event": "error", "payload": {"code": "UNKNOWN_EVENT", "message": "...", "event": "foo"}}
//
// # Components
//
//	           ┌──────────────┐
//	 ws conn ─▶│  Hub         │── Dispatch ─▶ Router ─▶ HandlerFunc
//	 ws conn ─▶│  readLoop    │
//	           │              │◀─ Broadcast / Send
//	           │  writeLoop   │── per-client queue ─▶ ws conn
//	           └──────┬───────┘
//	                  │ Clients()
//	           ┌──────▼───────┐
//	           │  Monitor     │ heartbeat every interval
//	           └──────────────┘
//
// Hub accepts connections, assigns each a uuid client id and a host id, and
// owns one buffered writer goroutine per client. Router maps event names to
// handlers. Monitor sends heartbeats and reports clients whose sends keep
// failing so the server can disconnect them.
//
// # Ordering
//
// Frames queued for a client are written in the order they were queued, so
// a sequence of Broadcast calls made under a single lock reaches every client
// in that sequence. There is no batching and no redelivery: a client that
// falls a full queue behind is disconnected and must resync on reconnect.
//
// # Host Identity
//
// The host id keys per-host settings. It comes from the "host" query
// parameter of the upgrade request (ws://addr/ws?host=projector) and falls
// back to the remote IP address. Several connections may share one host.
package transport
