// Package settings partitions client display preferences by host and keeps
// the one global configuration every host shares.
//
// # Model
//
// Each connected host may declare an arbitrary nested settings object. A
// host's object is private to it unless it chooses to share: every other
// client sees the host's entry in the public view, except when the entry has
// security.options.private set, in which case the whole entry is hidden.
// There is no per-field redaction.
//
// # Merge rules
//
// All updates go through Merge:
//
//   - scalars overwrite
//   - nested objects merge recursively
//   - arrays are replaced wholesale
//
// Replacing arrays rather than concatenating them lets a client remove items
// by sending a shorter list.
//
// # Per-client view
//
// ViewFor(h) is what a client on host h receives:
//
//	{
//	  "<other host>": {...},   // public entries, excluding h
//	  "local":  {...},         // h's own entry, even if private
//	  "global": {...}          // shared global configuration
//	}
package settings
