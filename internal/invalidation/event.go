// Package invalidation describes area-update events published when the
// upstream area data changes.
package invalidation

import (
	"fmt"
	"time"

	"github.com/mohammed-shakir/quadra-map/internal/quadra"
)

type AreaUpdate struct {
	Version  int       `json:"version"`
	Op       string    `json:"op"`
	AreaID   string    `json:"area_id"`
	Revision uint64    `json:"revision"`
	TS       time.Time `json:"ts"`
}

func (e AreaUpdate) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case "", "update", "delete":
	default:
		return fmt.Errorf("op must be update|delete")
	}
	if !quadra.ValidAreaID(e.AreaID) {
		return fmt.Errorf("area_id must be numeric, got %q", e.AreaID)
	}
	if e.Revision == 0 {
		return fmt.Errorf("revision is required")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	return nil
}
