package db

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BrandonDHaskell/Portunus/register/internal/register/store"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/types"
)

//go:embed fixtures/dev.yaml
var devFixtures []byte

// Fixtures is the on-disk seed format. Locations are referenced by code.
type Fixtures struct {
	Locations []struct {
		Code    string `yaml:"code"`
		Name    string `yaml:"name"`
		Address string `yaml:"address"`
	} `yaml:"locations"`

	Operators []struct {
		Username    string `yaml:"username"`
		DisplayName string `yaml:"display_name"`
		Role        string `yaml:"role"`
		Location    string `yaml:"location"`
	} `yaml:"operators"`

	Employees []struct {
		ExtID      string `yaml:"ext_id"`
		Name       string `yaml:"name"`
		Department string `yaml:"department"`
		Location   string `yaml:"location"`
	} `yaml:"employees"`

	Vehicles []struct {
		Plate       string `yaml:"plate"`
		Description string `yaml:"description"`
		Owner       string `yaml:"owner"`
		Location    string `yaml:"location"`
	} `yaml:"vehicles"`
}

// SeedStats counts the records a Seed call created.
type SeedStats struct {
	Locations int
	Operators int
	Employees int
	Vehicles  int
}

func ParseFixtures(r io.Reader) (Fixtures, error) {
	var fx Fixtures
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil && !errors.Is(err, io.EOF) {
		return Fixtures{}, fmt.Errorf("parse fixtures: %w", err)
	}
	return fx, nil
}

func LoadFixtures(path string) (Fixtures, error) {
	f, err := os.Open(path)
	if err != nil {
		return Fixtures{}, fmt.Errorf("open fixtures: %w", err)
	}
	defer f.Close()
	return ParseFixtures(f)
}

// SeedDev loads the embedded development fixtures.
func SeedDev(ctx context.Context, reg store.Registry) (SeedStats, error) {
	fx, err := ParseFixtures(bytes.NewReader(devFixtures))
	if err != nil {
		return SeedStats{}, err
	}
	return Seed(ctx, reg, fx)
}

// Seed creates the fixture records. Locations and operators that already
// exist are reused, so seeding twice does not fail; employees and
// vehicles are only created when their location was created by this call.
func Seed(ctx context.Context, reg store.Registry, fx Fixtures) (SeedStats, error) {
	var stats SeedStats
	fresh := make(map[string]bool)
	codes := make(map[string]int64)

	for _, l := range fx.Locations {
		loc := types.Location{Code: l.Code, Name: l.Name, Address: l.Address, Active: true}
		err := reg.CreateLocation(ctx, &loc)
		switch {
		case err == nil:
			stats.Locations++
			fresh[strings.ToUpper(l.Code)] = true
		case errors.Is(err, store.ErrConflict):
			loc, err = reg.LocationByCode(ctx, l.Code)
			if err != nil {
				return stats, fmt.Errorf("seed location %s: %w", l.Code, err)
			}
		default:
			return stats, fmt.Errorf("seed location %s: %w", l.Code, err)
		}
		codes[strings.ToUpper(l.Code)] = loc.ID
	}

	lookup := func(code string) (int64, error) {
		id, ok := codes[strings.ToUpper(code)]
		if ok {
			return id, nil
		}
		loc, err := reg.LocationByCode(ctx, code)
		if err != nil {
			return 0, fmt.Errorf("location %q: %w", code, err)
		}
		codes[strings.ToUpper(code)] = loc.ID
		return loc.ID, nil
	}

	for _, o := range fx.Operators {
		role, err := types.ParseRole(o.Role)
		if err != nil {
			return stats, fmt.Errorf("seed operator %s: %w", o.Username, err)
		}
		op := types.Operator{Username: o.Username, DisplayName: o.DisplayName, Role: role}
		if o.Location != "" {
			id, err := lookup(o.Location)
			if err != nil {
				return stats, fmt.Errorf("seed operator %s: %w", o.Username, err)
			}
			op.LocationID = &id
		}
		err = reg.CreateOperator(ctx, &op)
		switch {
		case err == nil:
			stats.Operators++
		case errors.Is(err, store.ErrConflict):
		default:
			return stats, fmt.Errorf("seed operator %s: %w", o.Username, err)
		}
	}

	for _, e := range fx.Employees {
		if !fresh[strings.ToUpper(e.Location)] {
			continue
		}
		id, err := lookup(e.Location)
		if err != nil {
			return stats, fmt.Errorf("seed employee %s: %w", e.Name, err)
		}
		emp := types.Employee{LocationID: id, ExtID: e.ExtID, Name: e.Name, Department: e.Department, Active: true}
		if err := reg.CreateEmployee(ctx, &emp); err != nil {
			return stats, fmt.Errorf("seed employee %s: %w", e.Name, err)
		}
		stats.Employees++
	}

	for _, v := range fx.Vehicles {
		if !fresh[strings.ToUpper(v.Location)] {
			continue
		}
		id, err := lookup(v.Location)
		if err != nil {
			return stats, fmt.Errorf("seed vehicle %s: %w", v.Plate, err)
		}
		veh := types.Vehicle{LocationID: id, PlateNumber: v.Plate, Description: v.Description, Owner: v.Owner, Active: true}
		if err := reg.CreateVehicle(ctx, &veh); err != nil {
			return stats, fmt.Errorf("seed vehicle %s: %w", v.Plate, err)
		}
		stats.Vehicles++
	}

	return stats, nil
}
