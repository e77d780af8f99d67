package secondary

import "github.com/example/automaton/internal/models"

// CycleAuditWriter defines the secondary port for the append-only cycle
// audit trail kept outside the state store (for tailing and offline
// analysis). Append failures are logged, never fatal to a cycle.
type CycleAuditWriter interface {
	Append(rec models.CycleRecord) error
	Close() error
}
