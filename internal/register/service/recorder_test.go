package service_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/Portunus/register/internal/db"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/store/sqlite"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/types"
)

// ── State machine ────────────────────────────────────────────────────────────

func TestRecordEvent_EmployeeDay(t *testing.T) {
	e := newMemoryEnv(t, nil)
	emp := e.employee(t, "Jane Doe", "Logistics", e.l1.ID)

	res, err := e.record(emp, types.DirectionIn, e.l1.ID)
	require.NoError(t, err)
	assert.Equal(t, at(9, 0), res.Entry.Timestamp)
	assert.Equal(t, &e.admin.ID, res.Entry.RecordedBy)

	e.clock.Set(at(9, 5))
	_, err = e.record(emp, types.DirectionIn, e.l1.ID)
	require.ErrorIs(t, err, types.ErrInvalidTransition)
	assert.Equal(t, "Jane Doe is already on territory", types.Message(err))

	e.clock.Set(at(17, 0))
	_, err = e.record(emp, types.DirectionOut, e.l1.ID)
	require.NoError(t, err)

	assert.False(t, e.present(t, emp))

	visits, err := e.engine.Visits.ListVisits(context.Background(), types.VisitQuery{})
	require.NoError(t, err)
	require.Len(t, visits, 1)
	require.NotNil(t, visits[0].ExitTime)
	assert.Equal(t, at(9, 0), visits[0].EntryTime)
	assert.Equal(t, at(17, 0), *visits[0].ExitTime)
	d, ok := visits[0].Duration()
	require.True(t, ok)
	assert.Equal(t, 8*time.Hour, d)
}

func TestRecordEvent_OutWithoutInRejected(t *testing.T) {
	e := newMemoryEnv(t, nil)
	emp := e.employee(t, "Ion Popescu", "", e.l1.ID)

	_, err := e.record(emp, types.DirectionOut, e.l1.ID)
	require.ErrorIs(t, err, types.ErrInvalidTransition)
	assert.Equal(t, "Ion Popescu is not on territory", types.Message(err))

	_, ok, err := e.log.LastEvent(context.Background(), emp)
	require.NoError(t, err)
	assert.False(t, ok, "a rejected event must not be appended")
}

func TestRecordEvent_NotFound(t *testing.T) {
	e := newMemoryEnv(t, nil)
	ctx := context.Background()

	_, err := e.record(types.Ref{Kind: types.KindEmployee, ID: 999}, types.DirectionIn, e.l1.ID)
	require.ErrorIs(t, err, types.ErrNotFound)

	emp := e.employee(t, "Maria Rusu", "", e.l1.ID)
	require.NoError(t, e.reg.SetActive(ctx, emp, false))
	_, err = e.record(emp, types.DirectionIn, e.l1.ID)
	require.ErrorIs(t, err, types.ErrNotFound)

	require.NoError(t, e.reg.SetActive(ctx, emp, true))
	_, err = e.record(emp, types.DirectionIn, 12345)
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestRecordEvent_InvalidArguments(t *testing.T) {
	e := newMemoryEnv(t, nil)
	emp := e.employee(t, "Jane Doe", "", e.l1.ID)

	_, err := e.record(types.Ref{Kind: "bicycle", ID: emp.ID}, types.DirectionIn, e.l1.ID)
	require.ErrorIs(t, err, types.ErrInvalidArgument)

	_, err = e.record(emp, "SIDEWAYS", e.l1.ID)
	require.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestRecordEvent_ClockNeverPrecedesLastEvent(t *testing.T) {
	e := newMemoryEnv(t, nil)
	emp := e.employee(t, "Jane Doe", "", e.l1.ID)

	e.clock.Set(at(10, 0))
	_, err := e.record(emp, types.DirectionIn, e.l1.ID)
	require.NoError(t, err)

	e.clock.Set(at(9, 30))
	res, err := e.record(emp, types.DirectionOut, e.l1.ID)
	require.NoError(t, err)
	assert.Equal(t, at(10, 0), res.Entry.Timestamp)
	assert.False(t, e.present(t, emp))
}

func TestRecordEvent_InvalidatesCountCache(t *testing.T) {
	cache := newFakeCache()
	e := newMemoryEnv(t, cache)
	emp := e.employee(t, "Jane Doe", "", e.l1.ID)
	ctx := context.Background()

	counts, err := e.engine.Presence.PresentCounts(ctx, types.KindEmployee)
	require.NoError(t, err)
	assert.Empty(t, counts)

	_, err = e.record(emp, types.DirectionIn, e.l1.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.invalidated)

	counts, err = e.engine.Presence.PresentCounts(ctx, types.KindEmployee)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{e.l1.ID: 1}, counts)
}

// ── Ownership linker ─────────────────────────────────────────────────────────

func TestRecordEvent_VehicleMirrorsOwner(t *testing.T) {
	e := newMemoryEnv(t, nil)
	emp := e.employee(t, "Jane Doe", "Logistics", e.l1.ID)
	veh := e.vehicle(t, "ABC 123", "  jane DOE ", e.l1.ID)

	res, err := e.record(veh, types.DirectionIn, e.l2.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Mirrored)
	assert.Equal(t, emp, res.Mirrored.Entity())
	assert.Equal(t, types.DirectionIn, res.Mirrored.Direction)
	assert.Equal(t, e.l2.ID, res.Mirrored.LocationID)
	assert.Equal(t, &e.admin.ID, res.Mirrored.RecordedBy)
	assert.Equal(t, "Jane Doe", res.MirroredName)

	assert.True(t, e.present(t, veh))
	assert.True(t, e.present(t, emp))

	e.clock.Set(at(18, 0))
	res, err = e.record(veh, types.DirectionOut, e.l2.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Mirrored)
	assert.Equal(t, types.DirectionOut, res.Mirrored.Direction)
	assert.False(t, e.present(t, emp))
}

func TestRecordEvent_LinkerIdempotent(t *testing.T) {
	e := newMemoryEnv(t, nil)
	emp := e.employee(t, "Jane Doe", "", e.l1.ID)
	veh := e.vehicle(t, "ABC 123", "Jane Doe", e.l1.ID)

	_, err := e.record(veh, types.DirectionIn, e.l1.ID)
	require.NoError(t, err)
	_, err = e.record(veh, types.DirectionIn, e.l1.ID)
	require.ErrorIs(t, err, types.ErrInvalidTransition)

	visits, err := e.engine.Visits.ListVisits(context.Background(), types.VisitQuery{Kind: types.KindEmployee})
	require.NoError(t, err)
	require.Len(t, visits, 1)
	assert.Equal(t, emp.ID, visits[0].EntityID)
}

func TestRecordEvent_LinkerSkipsOwnerAlreadyPresent(t *testing.T) {
	e := newMemoryEnv(t, nil)
	emp := e.employee(t, "Jane Doe", "", e.l1.ID)
	veh := e.vehicle(t, "ABC 123", "Jane Doe", e.l1.ID)

	_, err := e.record(emp, types.DirectionIn, e.l1.ID)
	require.NoError(t, err)

	res, err := e.record(veh, types.DirectionIn, e.l1.ID)
	require.NoError(t, err)
	assert.Nil(t, res.Mirrored)

	// Owner absent while the vehicle leaves: nothing to mirror.
	_, err = e.record(emp, types.DirectionOut, e.l1.ID)
	require.NoError(t, err)
	res, err = e.record(veh, types.DirectionOut, e.l1.ID)
	require.NoError(t, err)
	assert.Nil(t, res.Mirrored)
}

func TestRecordEvent_LinkerIgnoresInactiveOrUnknownOwner(t *testing.T) {
	e := newMemoryEnv(t, nil)
	emp := e.employee(t, "Jane Doe", "", e.l1.ID)
	require.NoError(t, e.reg.SetActive(context.Background(), emp, false))
	v1 := e.vehicle(t, "ABC 123", "Jane Doe", e.l1.ID)
	v2 := e.vehicle(t, "XYZ 987", "Jane D.", e.l1.ID)
	v3 := e.vehicle(t, "NOP 000", "", e.l1.ID)

	for _, v := range []types.Ref{v1, v2, v3} {
		res, err := e.record(v, types.DirectionIn, e.l1.ID)
		require.NoError(t, err)
		assert.Nil(t, res.Mirrored)
	}
	assert.False(t, e.present(t, emp))
}

// ── Concurrency ──────────────────────────────────────────────────────────────

func assertSingleWinner(t *testing.T, e *env, ref types.Ref, n int) {
	t.Helper()

	var (
		wg                  sync.WaitGroup
		mu                  sync.Mutex
		succeeded, rejected int
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := e.record(ref, types.DirectionIn, e.l1.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case assert.ErrorIs(t, err, types.ErrInvalidTransition):
				rejected++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, n-1, rejected)
}

func TestRecordEvent_ConcurrentInsSingleWinner_Memory(t *testing.T) {
	e := newMemoryEnv(t, nil)
	emp := e.employee(t, "Jane Doe", "", e.l1.ID)

	assertSingleWinner(t, e, emp, 32)
}

func TestRecordEvent_ConcurrentInsSingleWinner_SQLite(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(ctx, db.Config{Path: filepath.Join(t.TempDir(), "register.db")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	w := db.NewWorker(conn)
	t.Cleanup(w.Close)

	e := newEnv(t, sqlite.NewRegistryStore(conn, w), sqlite.NewLogStore(conn, w), nil)
	emp := e.employee(t, "Jane Doe", "", e.l1.ID)

	assertSingleWinner(t, e, emp, 16)

	// The mirrored path is serialized the same way.
	veh := e.vehicle(t, "ABC 123", "Jane Doe", e.l1.ID)
	_, err = e.record(emp, types.DirectionOut, e.l1.ID)
	require.NoError(t, err)
	assertSingleWinner(t, e, veh, 16)
	assert.True(t, e.present(t, emp))

	visits, err := e.engine.Visits.ListVisits(ctx, types.VisitQuery{Kind: types.KindEmployee})
	require.NoError(t, err)
	assert.Len(t, visits, 2)
}
