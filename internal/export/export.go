package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/BrandonDHaskell/Portunus/register/internal/register/types"
)

const (
	dateLayout     = "02.01.2006"
	clockLayout    = "15:04"
	fileDateLayout = "02-01-2006"

	stillPresent = "Still present"
	visitsSheet  = "Visits"

	statusOnSite = "On site"
	statusAbsent = "Absent"
)

// utf8BOM lets spreadsheet programs detect the encoding of CSV downloads.
const utf8BOM = "\ufeff"

var (
	visitHeader = []string{
		"Type", "Name/Plate", "Department/Description",
		"Entry Date", "Entry Time", "Exit Date", "Exit Time", "Duration", "Location",
	}
	presenceHeader = []string{
		"Type", "Name/Plate", "Department/Description", "Entry Time", "Entry Location",
	}
	employeeRosterHeader = []string{"ID", "Name", "Department", "Location", "Status"}
	vehicleRosterHeader  = []string{"Plate", "Description", "Owner", "Location", "Status"}
)

// FormatDuration renders d as "<h>h<m>m", or "<m>m" under an hour.
// Seconds are dropped.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

// VisitsFileName is the download name for a visit export made at now.
func VisitsFileName(now time.Time, ext string) string {
	return fmt.Sprintf("visits_%s.%s", now.Format(fileDateLayout), ext)
}

func PresenceFileName(now time.Time) string {
	return fmt.Sprintf("present_%s.csv", now.Format(fileDateLayout))
}

// RosterFileName is "employees_<date>.csv" or "vehicles_<date>.csv".
func RosterFileName(kind types.Kind, now time.Time) string {
	return fmt.Sprintf("%ss_%s.csv", kind, now.Format(fileDateLayout))
}

func visitRow(v types.Visit, loc *time.Location) []string {
	entry := v.EntryTime.In(loc)
	row := []string{
		v.Kind.Label(),
		v.DisplayName,
		v.GroupLabel,
		entry.Format(dateLayout),
		entry.Format(clockLayout),
		stillPresent,
		"",
		"",
		v.EntryLocation.Name,
	}
	if v.ExitTime != nil {
		exit := v.ExitTime.In(loc)
		row[5] = exit.Format(dateLayout)
		row[6] = exit.Format(clockLayout)
		row[7] = FormatDuration(exit.Sub(entry))
	}
	return row
}

// WriteVisitsCSV writes a BOM-prefixed CSV of visits with times shown in loc.
func WriteVisitsCSV(w io.Writer, visits []types.Visit, loc *time.Location) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(visitHeader); err != nil {
		return err
	}
	for _, v := range visits {
		if err := cw.Write(visitRow(v, loc)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WritePresenceCSV writes a BOM-prefixed CSV of present entities.
func WritePresenceCSV(w io.Writer, rows []types.PresenceRow, loc *time.Location) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(presenceHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{
			r.Kind.Label(),
			r.DisplayName,
			r.GroupLabel,
			r.EntryTime.In(loc).Format(clockLayout),
			r.EntryLocation.Name,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteRosterCSV writes a BOM-prefixed CSV of one kind's roster. Employees
// without an external id fall back to their numeric id.
func WriteRosterCSV(w io.Writer, kind types.Kind, rows []types.RosterRow) error {
	header := employeeRosterHeader
	if kind == types.KindVehicle {
		header = vehicleRosterHeader
	}
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		status := statusAbsent
		if r.Present {
			status = statusOnSite
		}
		var rec []string
		if kind == types.KindVehicle {
			rec = []string{r.DisplayName, r.GroupLabel, r.Owner, r.HomeLocation.Name, status}
		} else {
			id := r.ExtID
			if id == "" {
				id = strconv.FormatInt(r.ID, 10)
			}
			rec = []string{id, r.DisplayName, r.GroupLabel, r.HomeLocation.Name, status}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteVisitsXLSX writes the visit export as a workbook with one sheet.
func WriteVisitsXLSX(w io.Writer, visits []types.Visit, loc *time.Location) error {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(visitsSheet)
	if err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("xlsx style: %w", err)
	}

	if err := setRow(f, 1, visitHeader); err != nil {
		return err
	}
	last, _ := excelize.ColumnNumberToName(len(visitHeader))
	if err := f.SetCellStyle(visitsSheet, "A1", last+"1", headerStyle); err != nil {
		return fmt.Errorf("xlsx style: %w", err)
	}
	_ = f.SetColWidth(visitsSheet, "A", "A", 10)
	_ = f.SetColWidth(visitsSheet, "B", "C", 24)
	_ = f.SetColWidth(visitsSheet, "D", "H", 12)
	_ = f.SetColWidth(visitsSheet, "I", "I", 20)

	for i, v := range visits {
		if err := setRow(f, i+2, visitRow(v, loc)); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	if err := f.SetSheetRow(visitsSheet, cell, &vals); err != nil {
		return fmt.Errorf("xlsx row %d: %w", row, err)
	}
	return nil
}
