// Package content defines the passages the coordinator displays and the
// repository interface it resolves them through.
//
// # Overview
//
// Two kinds of content exist:
//
//   - Shabad: a passage of lines. Shabads are ordered within the repository
//     by their own OrderID, so "go to shabad N" requests can be resolved by
//     clamping N into the repository's [min, max] range.
//   - Bani: a composed reading made of lines, usually drawn from several
//     shabads.
//
// Both are ordered sequences of Line, and every Line carries a stable ID
// plus an OrderID that is strictly increasing within the content.
//
// # Repositories
//
//	┌──────────────────────────┐
//	│   coordinator.Coordinator │
//	└────────────┬─────────────┘
//	             │ Repository
//	     ┌───────┴────────┐
//	     ▼                ▼
//	┌──────────┐    ┌───────────┐
//	│ Memory   │    │ sqlite    │
//	│ (YAML +  │    │ .Store    │
//	│ fsnotify)│    │           │
//	└──────────┘    └───────────┘
//
// MemoryRepository holds a validated Catalog in memory. It is usually loaded
// from a YAML file with LoadCatalogFile and kept fresh by Watch, which
// reloads the file on change and keeps the last good catalog when a reload
// fails validation.
//
// The sqlite subpackage stores the same catalog in a SQLite database for
// larger collections.
//
// # Thread Safety
//
// All Repository implementations are safe for concurrent use and return
// copies, so callers may keep or modify returned values freely.
package content
