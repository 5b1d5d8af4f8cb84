package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/register/internal/export"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/service"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/store"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/types"
)

const dayLayout = "2006-01-02"

type exportVisitsOptions struct {
	from, to string
	kind     string
	location string
	format   string
	out      string
}

func newExportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write history files without going through the API",
	}
	cmd.AddCommand(newExportVisitsCmd(a), newExportRosterCmd(a))
	return cmd
}

type exportRosterOptions struct {
	kind     string
	location string
	search   string
	out      string
}

func newExportRosterCmd(a *app) *cobra.Command {
	var o exportRosterOptions

	cmd := &cobra.Command{
		Use:   "roster",
		Short: "Export active employees or vehicles with their presence as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.exportRoster(cmd, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.kind, "kind", "employee", "employee or vehicle")
	f.StringVar(&o.location, "location", "", "home location code (default: every location)")
	f.StringVar(&o.search, "search", "", "case-insensitive substring filter")
	f.StringVar(&o.out, "out", "", "output path (default: <kind>s_<dd-mm-yyyy>.csv)")
	return cmd
}

func newExportVisitsCmd(a *app) *cobra.Command {
	var o exportVisitsOptions

	cmd := &cobra.Command{
		Use:   "visits",
		Short: "Export paired visits as CSV or XLSX",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.exportVisits(cmd, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.from, "from", "", "first day, YYYY-MM-DD (inclusive)")
	f.StringVar(&o.to, "to", "", "last day, YYYY-MM-DD (inclusive)")
	f.StringVar(&o.kind, "kind", "", "employee, vehicle or all")
	f.StringVar(&o.location, "location", "", "location code (default: every location)")
	f.StringVar(&o.format, "format", "csv", "csv or xlsx")
	f.StringVar(&o.out, "out", "", "output path (default: visits_<dd-mm-yyyy>.<format>)")
	return cmd
}

// visitRange turns inclusive calendar days in loc into a half-open range.
func visitRange(from, to string, loc *time.Location) (time.Time, time.Time, error) {
	var start, end time.Time
	if from != "" {
		d, err := time.ParseInLocation(dayLayout, from, loc)
		if err != nil {
			return start, end, fmt.Errorf("--from: %w", err)
		}
		start = d
	}
	if to != "" {
		d, err := time.ParseInLocation(dayLayout, to, loc)
		if err != nil {
			return start, end, fmt.Errorf("--to: %w", err)
		}
		end = d.AddDate(0, 0, 1)
	}
	return start, end, nil
}

func (a *app) exportVisits(cmd *cobra.Command, o exportVisitsOptions) error {
	ctx := cmd.Context()
	loc := a.cfg.Location()

	format := strings.ToLower(o.format)
	if format != "csv" && format != "xlsx" {
		return fmt.Errorf("--format must be csv or xlsx, got %q", o.format)
	}
	kind, err := types.ParseKind(o.kind)
	if err != nil {
		return err
	}
	from, to, err := visitRange(o.from, o.to, loc)
	if err != nil {
		return err
	}

	be, err := openBackend(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer be.close()

	q := types.VisitQuery{From: from, To: to, Kind: kind, Limit: a.cfg.History.ExportLimit}
	if o.location != "" {
		l, err := be.registry.LocationByCode(ctx, o.location)
		if err != nil {
			return fmt.Errorf("location %q: %w", o.location, err)
		}
		q.LocationID = &l.ID
	}

	visits, err := service.NewVisitService(be.log, service.NewLocationRegistry(be.registry), a.cfg.History.DefaultLimit).
		ListVisits(ctx, q)
	if err != nil {
		return err
	}

	path := o.out
	if path == "" {
		path = export.VisitsFileName(time.Now().In(loc), format)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if format == "xlsx" {
		err = export.WriteVisitsXLSX(f, visits, loc)
	} else {
		err = export.WriteVisitsCSV(f, visits, loc)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	a.logger.Info("visits exported", zap.String("path", path), zap.Int("visits", len(visits)))
	return nil
}

func (a *app) exportRoster(cmd *cobra.Command, o exportRosterOptions) error {
	ctx := cmd.Context()

	kind, err := types.ParseKind(o.kind)
	if err != nil {
		return err
	}
	if kind == "" {
		return errors.New("--kind must be employee or vehicle")
	}

	be, err := openBackend(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer be.close()

	filter := store.EntityFilter{Kind: kind, Search: o.search}
	if o.location != "" {
		l, err := be.registry.LocationByCode(ctx, o.location)
		if err != nil {
			return fmt.Errorf("location %q: %w", o.location, err)
		}
		filter.LocationID = &l.ID
	}

	presence := service.NewPresenceService(be.log, service.NewLocationRegistry(be.registry), nil, a.logger)
	rows, err := presence.Roster(ctx, filter)
	if err != nil {
		return err
	}

	path := o.out
	if path == "" {
		path = export.RosterFileName(kind, time.Now().In(a.cfg.Location()))
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	err = export.WriteRosterCSV(f, kind, rows)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	a.logger.Info("roster exported", zap.String("path", path), zap.String("kind", string(kind)), zap.Int("rows", len(rows)))
	return nil
}
