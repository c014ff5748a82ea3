// Package coordinator owns the live session shared by every connected
// display and control client, applies client events to it, and fans the
// resulting view back out.
//
// # Overview
//
// A session is what every screen in the room shows: the active content (one
// shabad or one bani), the current line, the lines visited since the content
// was selected, a separately highlighted line, a free-form backend status,
// the navigation history, and the settings each host has declared. There is
// exactly one session per process and the Coordinator is its only writer.
//
// # Architecture
//
//	  client frame                         ┌────────────────────────┐
//	──────────────▶ transport.Router ────▶ │      Coordinator       │
//	                                       ├────────────────────────┤
//	                                       │ shabad | bani | none   │
//	                                       │ line, viewedLines      │
//	        ┌───── content.Repository ◀──▶ │ mainLine, status       │
//	        │      (lookup, lock released) │ history.Log            │
//	        │                              │ settings.Partition     │
//	        │                              └───────────┬────────────┘
//	        │                                          │ Broadcast / Send
//	        ▼                                          ▼
//	   YAML catalog / SQLite                      transport.Hub
//
// # Session State Machine
//
//	NoContent ──shabad/bani──▶ ContentActive ──shabad/bani──▶ ContentActive
//
// There is no transition back to NoContent. Every content change clears the
// viewed lines and the highlighted line.
//
// # Events
//
// Inbound (Register binds these onto a transport.Router):
//
//	shabad        {shabadId?, shabadOrderId?, lineId?, lineOrderId?}
//	line          {lineId?, lineOrderId?}
//	mainLine      "lineId" | null
//	clearHistory  (no payload)
//	bani          "baniId"
//	settings      {local?, global?, <host>?: {...}}
//
// Outbound:
//
//	shabad | bani   full content object
//	line            line id | null
//	viewedLines     [line ids] in visit order
//	mainLine        line id | null
//	status          string | null
//	history         [{line, transition}] transitions only
//	settings        per-client view, see settings.Partition.ViewFor
//	error           {code, message, event}, originating client only
//
// A content selection emits, in order: the content, line, viewedLines and
// history. A line selection emits line then viewedLines.
//
// # Line Resolution
//
// An explicit lineId wins. Otherwise lineOrderId is clamped into the active
// content's ordinal range and the line at that ordinal is taken. With
// neither, the current line is cleared and the history entry is recorded as
// a content change. Ordinals are optional fields, so 0 and the lower bound
// of a range are ordinary selectors.
//
// Shabad ordinals are clamped the same way into the repository's shabad
// range before the lookup: with a range of [1, 500] a request for 9999
// fetches shabad 500.
//
// # Concurrency
//
// Handlers run one at a time under the session lock and broadcast while
// holding it, so every client sees broadcasts in handler order. Content
// selections release the lock for the repository lookup, which is bounded by
// Options.LookupTimeout:
//
//	SelectShabad(A) ─ticket 1─ lookup A .................. resolve ─▶ stale, dropped
//	SelectShabad(B) ─────ticket 2─ lookup B ─ resolve ─▶ applied
//
//	SelectShabad(C) ─ticket 3─ lookup C ......... resolve ─▶ applied
//	SelectShabad(D) ─────ticket 4─ lookup D ─ not found ─▶ rejected
//
// Each selection takes a ticket before looking up. Only a successful
// selection records its ticket as applied; a result whose ticket is older
// than the applied one returns ErrSuperseded, changes nothing, and its origin
// receives an ABORTED error event. A failed lookup never displaces another
// selection.
//
// # Failure Handling
//
// Repository errors, timeouts, unknown line ids, and selections without an
// active content abort the handler before any mutation. They are logged and
// reported to the originating client as an error event; nothing is
// broadcast and nothing is retried.
//
// # Usage
//
//	hub := transport.NewHub(router, logger, transport.HubConfig{})
//	coord := coordinator.New(repo, settings.NewPartition(global), hub, coordinator.Options{
//	    LookupTimeout: 5 * time.Second,
//	    Logger:        logger,
//	})
//	coord.Register(router)
//	hub.OnConnect(coord.HandleConnect)
//	hub.OnDisconnect(coord.HandleDisconnect)
package coordinator
