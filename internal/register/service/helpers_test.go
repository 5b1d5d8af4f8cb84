package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/register/internal/register/service"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/store"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/store/memory"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/types"
)

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(hh, mm int) time.Time {
	return day.Add(time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute)
}

// clock is a settable test clock.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type env struct {
	reg    store.Registry
	log    store.EventLog
	engine *service.Engine
	clock  *clock
	l1, l2 types.Location
	admin  types.Operator
}

func newMemoryEnv(t *testing.T, cache service.CountCache) *env {
	t.Helper()
	reg := memory.NewRegistry()
	return newEnv(t, reg, memory.NewLog(reg), cache)
}

func newEnv(t *testing.T, reg store.Registry, log store.EventLog, cache service.CountCache) *env {
	t.Helper()
	ctx := context.Background()

	e := &env{reg: reg, log: log, clock: &clock{t: at(9, 0)}}
	e.engine = service.NewEngine(service.EngineConfig{
		Registry: reg,
		Log:      log,
		Cache:    cache,
		Logger:   zap.NewNop(),
		Recorder: []service.RecorderOption{service.WithClock(e.clock.Now)},
	})

	e.l1 = types.Location{Code: "L1", Name: "North Gate", Active: true}
	e.l2 = types.Location{Code: "L2", Name: "South Gate", Active: true}
	require.NoError(t, reg.CreateLocation(ctx, &e.l1))
	require.NoError(t, reg.CreateLocation(ctx, &e.l2))

	e.admin = types.Operator{Username: "admin", Role: types.RoleAdmin}
	require.NoError(t, reg.CreateOperator(ctx, &e.admin))
	return e
}

func (e *env) employee(t *testing.T, name, dept string, loc int64) types.Ref {
	t.Helper()
	emp := types.Employee{LocationID: loc, Name: name, Department: dept, Active: true}
	require.NoError(t, e.reg.CreateEmployee(context.Background(), &emp))
	return types.Ref{Kind: types.KindEmployee, ID: emp.ID}
}

func (e *env) vehicle(t *testing.T, plate, owner string, loc int64) types.Ref {
	t.Helper()
	v := types.Vehicle{LocationID: loc, PlateNumber: plate, Owner: owner, Active: true}
	require.NoError(t, e.reg.CreateVehicle(context.Background(), &v))
	return types.Ref{Kind: types.KindVehicle, ID: v.ID}
}

func (e *env) record(ref types.Ref, dir types.Direction, loc int64) (types.RecordResult, error) {
	return e.engine.Recorder.RecordEvent(context.Background(), types.RecordRequest{
		Kind:       ref.Kind,
		EntityID:   ref.ID,
		Direction:  dir,
		LocationID: loc,
		OperatorID: &e.admin.ID,
	})
}

func (e *env) present(t *testing.T, ref types.Ref) bool {
	t.Helper()
	ok, err := e.engine.Presence.IsPresent(context.Background(), ref)
	require.NoError(t, err)
	return ok
}

// fakeCache is an in-process CountCache that can be told to fail.
type fakeCache struct {
	mu          sync.Mutex
	counts      map[types.Kind]map[int64]int
	fail        bool
	invalidated int
}

func newFakeCache() *fakeCache {
	return &fakeCache{counts: make(map[types.Kind]map[int64]int)}
}

func (c *fakeCache) Counts(_ context.Context, kind types.Kind) (map[int64]int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return nil, false, context.DeadlineExceeded
	}
	m, ok := c.counts[kind]
	return m, ok, nil
}

func (c *fakeCache) StoreCounts(_ context.Context, kind types.Kind, counts map[int64]int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return context.DeadlineExceeded
	}
	c.counts[kind] = counts
	return nil
}

func (c *fakeCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated++
	if c.fail {
		return context.DeadlineExceeded
	}
	c.counts = make(map[types.Kind]map[int64]int)
	return nil
}
