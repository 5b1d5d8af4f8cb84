package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/Portunus/register/internal/register/store"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/types"
)

func TestLastDirection(t *testing.T) {
	e := newMemoryEnv(t, nil)
	emp := e.employee(t, "Jane Doe", "", e.l1.ID)
	ctx := context.Background()

	_, ok, err := e.engine.Presence.LastDirection(ctx, emp)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = e.record(emp, types.DirectionIn, e.l1.ID)
	require.NoError(t, err)
	dir, ok, err := e.engine.Presence.LastDirection(ctx, emp)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, types.DirectionIn, dir)
}

// An entity that left L1 and entered L2 is present at L2 only.
func TestListPresent_GlobalWinner(t *testing.T) {
	e := newMemoryEnv(t, nil)
	ctx := context.Background()
	jane := e.employee(t, "Jane Doe", "Logistics", e.l1.ID)
	ion := e.employee(t, "Ion Popescu", "Security", e.l1.ID)
	van := e.vehicle(t, "ABC 123", "", e.l2.ID)

	_, err := e.record(jane, types.DirectionIn, e.l1.ID)
	require.NoError(t, err)
	e.clock.Set(at(10, 0))
	_, err = e.record(jane, types.DirectionOut, e.l1.ID)
	require.NoError(t, err)
	e.clock.Set(at(11, 0))
	_, err = e.record(jane, types.DirectionIn, e.l2.ID)
	require.NoError(t, err)
	e.clock.Set(at(12, 0))
	_, err = e.record(ion, types.DirectionIn, e.l1.ID)
	require.NoError(t, err)
	e.clock.Set(at(13, 0))
	_, err = e.record(van, types.DirectionIn, e.l2.ID)
	require.NoError(t, err)

	atL1, err := e.engine.Presence.ListPresent(ctx, store.PresenceFilter{LocationID: &e.l1.ID})
	require.NoError(t, err)
	require.Len(t, atL1, 1)
	assert.Equal(t, ion.ID, atL1[0].ID)

	atL2, err := e.engine.Presence.ListPresent(ctx, store.PresenceFilter{LocationID: &e.l2.ID})
	require.NoError(t, err)
	require.Len(t, atL2, 2)
	assert.Equal(t, types.KindVehicle, atL2[0].Kind, "newest entry first")
	row := atL2[1]
	assert.Equal(t, jane.ID, row.ID)
	assert.Equal(t, "Jane Doe", row.DisplayName)
	assert.Equal(t, "Logistics", row.GroupLabel)
	assert.Equal(t, at(11, 0), row.EntryTime)
	assert.Equal(t, "South Gate", row.EntryLocation.Name)
	assert.Equal(t, "North Gate", row.HomeLocation.Name)

	counts, err := e.engine.Presence.PresentCounts(ctx, types.KindEmployee)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{e.l1.ID: 1, e.l2.ID: 1}, counts)

	all, err := e.engine.Presence.PresentCounts(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{e.l1.ID: 1, e.l2.ID: 2}, all)
}

func TestListPresent_DropsUnknownEntities(t *testing.T) {
	e := newMemoryEnv(t, nil)
	ctx := context.Background()
	emp := e.employee(t, "Jane Doe", "", e.l1.ID)

	_, err := e.record(emp, types.DirectionIn, e.l1.ID)
	require.NoError(t, err)
	// A log row for an entity the registry no longer knows.
	require.NoError(t, e.log.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Append(ctx, types.LogEntry{
			EntityKind: types.KindVehicle, EntityID: 4242, Direction: types.DirectionIn,
			LocationID: e.l1.ID, Timestamp: at(9, 30),
		})
		return err
	}))

	rows, err := e.engine.Presence.ListPresent(ctx, store.PresenceFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, emp.ID, rows[0].ID)
}

func TestPresentCounts_CacheFailureFallsBack(t *testing.T) {
	cache := newFakeCache()
	cache.fail = true
	e := newMemoryEnv(t, cache)
	emp := e.employee(t, "Jane Doe", "", e.l1.ID)

	_, err := e.record(emp, types.DirectionIn, e.l1.ID)
	require.NoError(t, err, "cache failures must not fail writes")

	counts, err := e.engine.Presence.PresentCounts(context.Background(), types.KindEmployee)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{e.l1.ID: 1}, counts)
}

func rosterNames(rows []types.RosterRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.DisplayName
	}
	return out
}

func TestRoster_PresentFirstThenByName(t *testing.T) {
	e := newMemoryEnv(t, nil)
	ctx := context.Background()
	e.employee(t, "Ana Ionescu", "Finance", e.l1.ID)
	zoe := e.employee(t, "Zoe Marin", "Logistics", e.l1.ID)
	mihai := e.employee(t, "Mihai Stan", "Security", e.l1.ID)
	gone := e.employee(t, "Dan Vechi", "Finance", e.l1.ID)
	e.employee(t, "Maria Rusu", "Finance", e.l2.ID)
	require.NoError(t, e.reg.SetActive(ctx, gone, false))

	_, err := e.record(zoe, types.DirectionIn, e.l1.ID)
	require.NoError(t, err)
	// Mihai is registered at L1 but entered at L2; he still counts as present.
	e.clock.Set(at(9, 30))
	_, err = e.record(mihai, types.DirectionIn, e.l2.ID)
	require.NoError(t, err)

	rows, err := e.engine.Presence.Roster(ctx, store.EntityFilter{Kind: types.KindEmployee, LocationID: &e.l1.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"Mihai Stan", "Zoe Marin", "Ana Ionescu"}, rosterNames(rows))

	assert.True(t, rows[0].Present)
	require.NotNil(t, rows[0].EntryLocation)
	assert.Equal(t, "South Gate", rows[0].EntryLocation.Name)
	assert.Equal(t, at(9, 30), *rows[0].EntryTime)
	assert.Equal(t, "North Gate", rows[0].HomeLocation.Name)
	assert.False(t, rows[2].Present)
	assert.Nil(t, rows[2].EntryTime)
	assert.NotEmpty(t, rows[2].ExtID)

	all, err := e.engine.Presence.Roster(ctx, store.EntityFilter{Kind: types.KindEmployee})
	require.NoError(t, err)
	assert.Len(t, all, 4, "deactivated entities are left out")
}

func TestRoster_Search(t *testing.T) {
	e := newMemoryEnv(t, nil)
	ctx := context.Background()
	e.employee(t, "Jane Doe", "Logistics", e.l1.ID)
	e.employee(t, "Ion Popescu", "Security", e.l1.ID)
	e.vehicle(t, "ABC 123", "jane doe", e.l1.ID)
	e.vehicle(t, "XYZ 999", "", e.l1.ID)

	rows, err := e.engine.Presence.Roster(ctx, store.EntityFilter{Kind: types.KindEmployee, Search: "logis"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Jane Doe"}, rosterNames(rows))

	rows, err = e.engine.Presence.Roster(ctx, store.EntityFilter{Kind: types.KindEmployee, Search: "EMPL1"})
	require.NoError(t, err)
	assert.Len(t, rows, 2, "ext ids match too")

	rows, err = e.engine.Presence.Roster(ctx, store.EntityFilter{Kind: types.KindVehicle, Search: "JANE"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC 123"}, rosterNames(rows))

	rows, err = e.engine.Presence.Roster(ctx, store.EntityFilter{Kind: types.KindVehicle, Search: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = e.engine.Presence.Roster(ctx, store.EntityFilter{})
	require.ErrorIs(t, err, types.ErrInvalidArgument)
}
