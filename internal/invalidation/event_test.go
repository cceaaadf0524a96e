package invalidation

import (
	"testing"
	"time"
)

func TestAreaUpdateValidate(t *testing.T) {
	ok := AreaUpdate{Version: 1, Op: "update", AreaID: "7", Revision: 3, TS: time.Now()}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid event rejected: %v", err)
	}

	cases := map[string]func(e *AreaUpdate){
		"version":  func(e *AreaUpdate) { e.Version = 2 },
		"op":       func(e *AreaUpdate) { e.Op = "insert" },
		"area":     func(e *AreaUpdate) { e.AreaID = "7a" },
		"revision": func(e *AreaUpdate) { e.Revision = 0 },
		"ts":       func(e *AreaUpdate) { e.TS = time.Time{} },
	}
	for name, mutate := range cases {
		e := ok
		mutate(&e)
		if err := e.Validate(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestRevisionDedupe(t *testing.T) {
	d := NewRevisionDedupe(2)
	if !d.ShouldApply("7", 2) {
		t.Fatal("first revision must apply")
	}
	if d.ShouldApply("7", 2) || d.ShouldApply("7", 1) {
		t.Fatal("same or older revision applied")
	}
	if !d.ShouldApply("7", 3) {
		t.Fatal("newer revision rejected")
	}
	d.Forget("7")
	if !d.ShouldApply("7", 3) {
		t.Fatal("forgotten revision should apply again")
	}
}
