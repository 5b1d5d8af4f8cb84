package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/BrandonDHaskell/Portunus/register/internal/export"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/service"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/store"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/types"
)

const (
	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type recordEventRequest struct {
	Kind       string `json:"kind" binding:"required"`
	EntityID   int64  `json:"entity_id" binding:"required"`
	Direction  string `json:"direction" binding:"required"`
	LocationID *int64 `json:"location_id"`
}

type recordEventResponse struct {
	OK       bool            `json:"ok"`
	Entry    types.LogEntry  `json:"entry"`
	Mirrored *types.LogEntry `json:"mirrored,omitempty"`
	Message  string          `json:"message"`
}

func (s *Server) handleRecordEvent(c *gin.Context) {
	var req recordEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	kind, err := types.ParseKind(req.Kind)
	if err == nil && kind == "" {
		err = types.ErrInvalidArgument.WithMessage("kind must be employee or vehicle")
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	dir, err := types.ParseDirection(req.Direction)
	if err != nil {
		s.writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	op := operatorFrom(c)

	ent, err := s.engine.Registry.Entity(ctx, types.Ref{Kind: kind, ID: req.EntityID})
	if err != nil {
		s.writeError(c, err)
		return
	}
	loc, err := s.engine.Presence.RecordLocationFor(ctx, op, ent, dir, req.LocationID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	res, err := s.engine.Recorder.RecordEvent(ctx, types.RecordRequest{
		Kind:       kind,
		EntityID:   req.EntityID,
		Direction:  dir,
		LocationID: loc,
		OperatorID: &op.ID,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, recordEventResponse{
		OK:       true,
		Entry:    res.Entry,
		Mirrored: res.Mirrored,
		Message:  res.Message(),
	})
}

func (s *Server) handleListPresent(c *gin.Context) {
	rows, ok := s.presentRows(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(rows), "rows": rows})
}

// presentRows applies the operator's scope and the kind filter.
func (s *Server) presentRows(c *gin.Context) ([]types.PresenceRow, bool) {
	requested, err := optionalInt64(c, "location_id")
	if err != nil {
		s.writeError(c, err)
		return nil, false
	}
	scope, err := service.ScopeFor(operatorFrom(c), requested)
	if err != nil {
		s.writeError(c, err)
		return nil, false
	}
	kind, err := types.ParseKind(c.Query("kind"))
	if err != nil {
		s.writeError(c, err)
		return nil, false
	}

	rows, err := s.engine.Presence.ListPresent(c.Request.Context(), store.PresenceFilter{LocationID: scope, Kind: kind})
	if err != nil {
		s.writeError(c, err)
		return nil, false
	}
	return rows, true
}

func (s *Server) handlePresentCounts(c *gin.Context) {
	kind := types.KindEmployee
	if raw := c.Query("kind"); raw != "" {
		k, err := types.ParseKind(raw)
		if err != nil {
			s.writeError(c, err)
			return
		}
		kind = k
	}

	counts, err := s.engine.Presence.PresentCounts(c.Request.Context(), kind)
	if err != nil {
		s.writeError(c, err)
		return
	}

	if op := operatorFrom(c); !op.IsAdmin() {
		scope, err := service.ScopeFor(op, nil)
		if err != nil {
			s.writeError(c, err)
			return
		}
		counts = map[int64]int{*scope: counts[*scope]}
	}

	label := string(kind)
	if kind == "" {
		label = "all"
	}
	c.JSON(http.StatusOK, gin.H{"kind": label, "counts": counts})
}

func (s *Server) handleIsPresent(c *gin.Context) {
	kind, err := types.ParseKind(c.Param("kind"))
	if err == nil && kind == "" {
		err = types.ErrInvalidArgument.WithMessage("kind must be employee or vehicle")
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(c, types.ErrInvalidArgument.WithMessage("id must be a positive integer"))
		return
	}

	dir, ok, err := s.engine.Presence.LastDirection(c.Request.Context(), types.Ref{Kind: kind, ID: id})
	if err != nil {
		s.writeError(c, err)
		return
	}
	resp := gin.H{"kind": kind, "id": id, "present": ok && dir == types.DirectionIn}
	if ok {
		resp["last_direction"] = dir
	}
	c.JSON(http.StatusOK, resp)
}

// scopedVisits reads the visit filters, applies the operator's scope and
// runs the aggregator.
func (s *Server) scopedVisits(c *gin.Context, maxLimit, forceLimit int) ([]types.Visit, bool) {
	q, err := s.visitQuery(c, maxLimit)
	if err != nil {
		s.writeError(c, err)
		return nil, false
	}
	if q.LocationID, err = service.ScopeFor(operatorFrom(c), q.LocationID); err != nil {
		s.writeError(c, err)
		return nil, false
	}
	if forceLimit > 0 && q.Limit == 0 {
		q.Limit = forceLimit
	}

	visits, err := s.engine.Visits.ListVisits(c.Request.Context(), q)
	if err != nil {
		s.writeError(c, err)
		return nil, false
	}
	return visits, true
}

func (s *Server) handleListVisits(c *gin.Context) {
	visits, ok := s.scopedVisits(c, s.exportLimit, 0)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(visits), "visits": visits})
}

func (s *Server) handleExportVisits(c *gin.Context) {
	format := strings.ToLower(c.DefaultQuery("format", "csv"))
	if format != "csv" && format != "xlsx" {
		s.writeError(c, types.ErrInvalidArgument.WithMessage("format must be csv or xlsx"))
		return
	}

	visits, ok := s.scopedVisits(c, s.exportLimit, s.exportLimit)
	if !ok {
		return
	}

	var (
		buf bytes.Buffer
		err error
		ct  = contentTypeCSV
	)
	if format == "xlsx" {
		ct = contentTypeXLSX
		err = export.WriteVisitsXLSX(&buf, visits, s.loc)
	} else {
		err = export.WriteVisitsCSV(&buf, visits, s.loc)
	}
	if err != nil {
		s.writeError(c, err)
		return
	}

	attachment(c, export.VisitsFileName(s.now().In(s.loc), format))
	c.Data(http.StatusOK, ct, buf.Bytes())
}

func (s *Server) handleExportPresence(c *gin.Context) {
	rows, ok := s.presentRows(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := export.WritePresenceCSV(&buf, rows, s.loc); err != nil {
		s.writeError(c, err)
		return
	}
	attachment(c, export.PresenceFileName(s.now().In(s.loc)))
	c.Data(http.StatusOK, contentTypeCSV, buf.Bytes())
}

// rosterRows lists one kind's active entities within the operator's scope,
// filtered by ?search=.
func (s *Server) rosterRows(c *gin.Context, kind types.Kind) ([]types.RosterRow, bool) {
	requested, err := optionalInt64(c, "location_id")
	if err != nil {
		s.writeError(c, err)
		return nil, false
	}
	scope, err := service.ScopeFor(operatorFrom(c), requested)
	if err != nil {
		s.writeError(c, err)
		return nil, false
	}

	rows, err := s.engine.Presence.Roster(c.Request.Context(), store.EntityFilter{
		Kind:       kind,
		LocationID: scope,
		Search:     c.Query("search"),
	})
	if err != nil {
		s.writeError(c, err)
		return nil, false
	}
	return rows, true
}

func (s *Server) handleRoster(kind types.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, ok := s.rosterRows(c, kind)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"kind": kind, "count": len(rows), "rows": rows})
	}
}

func (s *Server) handleExportRoster(kind types.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, ok := s.rosterRows(c, kind)
		if !ok {
			return
		}

		var buf bytes.Buffer
		if err := export.WriteRosterCSV(&buf, kind, rows); err != nil {
			s.writeError(c, err)
			return
		}
		attachment(c, export.RosterFileName(kind, s.now().In(s.loc)))
		c.Data(http.StatusOK, contentTypeCSV, buf.Bytes())
	}
}

func attachment(c *gin.Context, filename string) {
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
}

type locationSummary struct {
	types.Location
	PresentEmployees int `json:"present_employees"`
}

func (s *Server) handleLocations(c *gin.Context) {
	ctx := c.Request.Context()

	locs, err := s.engine.Registry.ActiveLocations(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}
	counts, err := s.engine.Presence.PresentCounts(ctx, types.KindEmployee)
	if err != nil {
		s.writeError(c, err)
		return
	}

	out := make([]locationSummary, 0, len(locs))
	for _, l := range locs {
		out = append(out, locationSummary{Location: l, PresentEmployees: counts[l.ID]})
	}
	c.JSON(http.StatusOK, gin.H{"locations": out})
}
