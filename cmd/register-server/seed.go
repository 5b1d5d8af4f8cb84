package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/register/internal/config"
	"github.com/BrandonDHaskell/Portunus/register/internal/db"
)

func newSeedCmd(a *app) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load locations, operators, employees and vehicles from a YAML fixture file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.Store.Driver == config.DriverMemory {
				a.logger.Warn("seeding the memory store; data is lost when this command exits")
			}
			ctx := cmd.Context()

			be, err := openBackend(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer be.close()

			var stats db.SeedStats
			if file == "" {
				stats, err = db.SeedDev(ctx, be.registry)
			} else {
				fx, ferr := db.LoadFixtures(file)
				if ferr != nil {
					return ferr
				}
				stats, err = db.Seed(ctx, be.registry, fx)
			}
			if err != nil {
				return err
			}
			a.logger.Info("seeded", zap.String("file", file), zap.Any("created", stats))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "fixture file (default: built-in dev fixtures)")
	return cmd
}
