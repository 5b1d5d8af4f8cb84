package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Portunus/register/internal/register/store"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/types"
)

// ═══════════════════════════════════════════════════════════════════════════
// Update
// ═══════════════════════════════════════════════════════════════════════════

func TestUpdate_FailedUnitDiscardsAppends(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := types.Ref{Kind: types.KindEmployee, ID: 7}

	boom := errors.New("boom")
	err := f.log.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Append(ctx, types.LogEntry{
			EntityKind: ref.Kind, EntityID: ref.ID, Direction: types.DirectionIn,
			LocationID: f.l1.ID, Timestamp: base,
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if _, ok, err := f.log.LastEvent(ctx, ref); err != nil || ok {
		t.Fatalf("expected no committed event, ok=%v err=%v", ok, err)
	}
}

func TestUpdate_TxSeesOwnAppends(t *testing.T) {
	f := newFixture(t)
	ref := types.Ref{Kind: types.KindVehicle, ID: 3}

	err := f.log.Update(context.Background(), func(ctx context.Context, tx store.Tx) error {
		in, err := tx.Append(ctx, types.LogEntry{
			EntityKind: ref.Kind, EntityID: ref.ID, Direction: types.DirectionIn,
			LocationID: f.l1.ID, Timestamp: base,
		})
		if err != nil {
			return err
		}
		last, ok, err := tx.LastEvent(ctx, ref)
		if err != nil {
			return err
		}
		if !ok || last.ID != in.ID {
			t.Errorf("expected staged entry %d, got %+v (ok=%v)", in.ID, last, ok)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
}

func TestTx_ActiveEmployeeByName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.employee(t, "Jane Doe", f.l1.ID)
	second := f.employee(t, "JANE DOE", f.l2.ID)
	if err := f.reg.SetActive(ctx, types.Ref{Kind: types.KindEmployee, ID: first.ID}, false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	err := f.log.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.ActiveEmployeeByName(ctx, types.NameKey("  jane doe"))
		if err != nil {
			return err
		}
		if got.ID != second.ID {
			t.Errorf("expected active employee %d, got %d", second.ID, got.ID)
		}
		_, err = tx.ActiveEmployeeByName(ctx, types.NameKey("John Roe"))
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Reads
// ═══════════════════════════════════════════════════════════════════════════

func TestLastEvent_TieBrokenByID(t *testing.T) {
	f := newFixture(t)
	ref := types.Ref{Kind: types.KindEmployee, ID: 1}

	f.appendEntry(t, ref, types.DirectionIn, f.l1.ID, base)
	out := f.appendEntry(t, ref, types.DirectionOut, f.l1.ID, base)

	last, ok, err := f.log.LastEvent(context.Background(), ref)
	if err != nil || !ok {
		t.Fatalf("LastEvent: ok=%v err=%v", ok, err)
	}
	if last.ID != out.ID || last.Direction != types.DirectionOut {
		t.Errorf("expected OUT %d to win the tie, got %+v", out.ID, last)
	}
}

func TestAppend_RoundTripsFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	op := types.Operator{Username: "admin", Role: types.RoleAdmin}
	if err := f.reg.CreateOperator(ctx, &op); err != nil {
		t.Fatalf("CreateOperator: %v", err)
	}
	ref := types.Ref{Kind: types.KindVehicle, ID: 5}

	at := base.Add(1234567 * time.Microsecond)
	err := f.log.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Append(ctx, types.LogEntry{
			EntityKind: ref.Kind, EntityID: ref.ID, Direction: types.DirectionIn,
			LocationID: f.l2.ID, Timestamp: at, RecordedBy: &op.ID,
		})
		return err
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, ok, err := f.log.LastEvent(ctx, ref)
	if err != nil || !ok {
		t.Fatalf("LastEvent: ok=%v err=%v", ok, err)
	}
	if !got.Timestamp.Equal(at.Truncate(time.Millisecond)) {
		t.Errorf("timestamp %v, want %v", got.Timestamp, at.Truncate(time.Millisecond))
	}
	if got.LocationID != f.l2.ID || got.RecordedBy == nil || *got.RecordedBy != op.ID {
		t.Errorf("unexpected entry %+v", got)
	}
}

// Employee 7 enters at L1 then at L2 (after the L1 OUT); only L2 lists it.
func TestPresent_UsesGlobalWinnerThenLocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e7 := types.Ref{Kind: types.KindEmployee, ID: 7}
	e8 := types.Ref{Kind: types.KindEmployee, ID: 8}
	v1 := types.Ref{Kind: types.KindVehicle, ID: 1}

	f.appendEntry(t, e7, types.DirectionIn, f.l1.ID, base)
	f.appendEntry(t, e7, types.DirectionOut, f.l1.ID, base.Add(time.Hour))
	f.appendEntry(t, e7, types.DirectionIn, f.l2.ID, base.Add(2*time.Hour))
	f.appendEntry(t, e8, types.DirectionIn, f.l1.ID, base.Add(30*time.Minute))
	f.appendEntry(t, v1, types.DirectionIn, f.l1.ID, base.Add(3*time.Hour))

	atL1, err := f.log.Present(ctx, store.PresenceFilter{LocationID: &f.l1.ID})
	if err != nil {
		t.Fatalf("Present: %v", err)
	}
	if len(atL1) != 2 || atL1[0].Entity() != v1 || atL1[1].Entity() != e8 {
		t.Fatalf("unexpected L1 presence %+v", atL1)
	}

	atL2, err := f.log.Present(ctx, store.PresenceFilter{LocationID: &f.l2.ID, Kind: types.KindEmployee})
	if err != nil {
		t.Fatalf("Present: %v", err)
	}
	if len(atL2) != 1 || atL2[0].Entity() != e7 {
		t.Fatalf("unexpected L2 presence %+v", atL2)
	}

	counts, err := f.log.PresentCounts(ctx, types.KindEmployee)
	if err != nil {
		t.Fatalf("PresentCounts: %v", err)
	}
	if counts[f.l1.ID] != 1 || counts[f.l2.ID] != 1 {
		t.Errorf("unexpected employee counts %v", counts)
	}

	all, err := f.log.PresentCounts(ctx, "")
	if err != nil {
		t.Fatalf("PresentCounts: %v", err)
	}
	if all[f.l1.ID] != 2 || all[f.l2.ID] != 1 {
		t.Errorf("unexpected counts %v", all)
	}
}

func TestPresent_ExitedEntityAbsent(t *testing.T) {
	f := newFixture(t)
	ref := types.Ref{Kind: types.KindEmployee, ID: 1}

	f.appendEntry(t, ref, types.DirectionIn, f.l1.ID, base)
	f.appendEntry(t, ref, types.DirectionOut, f.l2.ID, base.Add(time.Minute))

	rows, err := f.log.Present(context.Background(), store.PresenceFilter{})
	if err != nil {
		t.Fatalf("Present: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected nobody present, got %+v", rows)
	}
}

func TestEvents_FiltersAndOrders(t *testing.T) {
	f := newFixture(t)
	e1 := types.Ref{Kind: types.KindEmployee, ID: 1}
	e2 := types.Ref{Kind: types.KindEmployee, ID: 2}
	v1 := types.Ref{Kind: types.KindVehicle, ID: 1}

	f.appendEntry(t, e2, types.DirectionIn, f.l1.ID, base)
	f.appendEntry(t, e1, types.DirectionIn, f.l1.ID, base.Add(time.Minute))
	f.appendEntry(t, v1, types.DirectionIn, f.l1.ID, base.Add(2*time.Minute))
	f.appendEntry(t, e1, types.DirectionOut, f.l2.ID, base.Add(3*time.Minute))
	f.appendEntry(t, e1, types.DirectionIn, f.l1.ID, base.Add(48*time.Hour))

	got, err := f.log.Events(context.Background(), store.EventFilter{
		Kind: types.KindEmployee,
		From: base,
		To:   base.Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if got[0].Entity() != e1 || got[1].Entity() != e1 || got[2].Entity() != e2 {
		t.Errorf("unexpected order %+v", got)
	}
	if got[0].Direction != types.DirectionIn || got[1].Direction != types.DirectionOut {
		t.Errorf("expected IN then OUT for employee 1, got %+v", got[:2])
	}

	atL2, err := f.log.Events(context.Background(), store.EventFilter{LocationID: &f.l2.ID})
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(atL2) != 1 || atL2[0].Direction != types.DirectionOut {
		t.Errorf("unexpected L2 events %+v", atL2)
	}
}
