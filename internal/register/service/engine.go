package service

import (
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/register/internal/register/store"
)

// Engine bundles the services the transports call.
type Engine struct {
	Registry *LocationRegistry
	Presence *PresenceService
	Recorder *Recorder
	Visits   *VisitService
}

type EngineConfig struct {
	Registry     store.Registry
	Log          store.EventLog
	Cache        CountCache // optional
	Logger       *zap.Logger
	HistoryLimit int
	Recorder     []RecorderOption
}

func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := NewLocationRegistry(cfg.Registry)
	presence := NewPresenceService(cfg.Log, reg, cfg.Cache, logger.Named("presence"))
	return &Engine{
		Registry: reg,
		Presence: presence,
		Recorder: NewRecorder(cfg.Log, reg, presence, logger.Named("recorder"), cfg.Recorder...),
		Visits:   NewVisitService(cfg.Log, reg, cfg.HistoryLimit),
	}
}
