package service

import (
	"time"

	"spec-mc/internal/config"
)

type ServiceContext struct {
	Registry     *DatabaseRegistry
	Solver       Solver
	BatchService *BatchService
}

func NewServiceContext(cfg *config.Config) *ServiceContext {
	registry := NewDatabaseRegistry(cfg.Phreeqc.DatabaseDir, cfg.Phreeqc.DefaultDatabase)
	solver := NewPhreeqcClient(
		cfg.Phreeqc.BinaryPath,
		cfg.Phreeqc.WorkDir,
		time.Duration(cfg.Phreeqc.TimeoutSeconds)*time.Second,
		time.Duration(cfg.Phreeqc.KillGraceSeconds)*time.Second,
	)

	return &ServiceContext{
		Registry:     registry,
		Solver:       solver,
		BatchService: NewBatchService(registry, solver, cfg.MonteCarlo),
	}
}
