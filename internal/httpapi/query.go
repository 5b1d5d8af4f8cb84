package httpapi

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/BrandonDHaskell/Portunus/register/internal/register/types"
)

const dayLayout = "2006-01-02"

func optionalInt64(c *gin.Context, key string) (*int64, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return nil, types.ErrInvalidArgument.WithMessage(fmt.Sprintf("%s must be a positive integer", key))
	}
	return &v, nil
}

// day parses a calendar day in loc; an empty value is the zero time.
func day(c *gin.Context, key string, loc *time.Location) (time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(dayLayout, raw, loc)
	if err != nil {
		return time.Time{}, types.ErrInvalidArgument.WithMessage(fmt.Sprintf("%s must be a date (YYYY-MM-DD)", key))
	}
	return t, nil
}

// visitQuery reads location_id, from, to, kind and limit. The to day is
// inclusive and becomes the exclusive start of the following day.
func (s *Server) visitQuery(c *gin.Context, maxLimit int) (types.VisitQuery, error) {
	var (
		q   types.VisitQuery
		err error
	)
	if q.LocationID, err = optionalInt64(c, "location_id"); err != nil {
		return q, err
	}
	if q.From, err = day(c, "from", s.loc); err != nil {
		return q, err
	}
	to, err := day(c, "to", s.loc)
	if err != nil {
		return q, err
	}
	if !to.IsZero() {
		q.To = to.AddDate(0, 0, 1)
	}
	if q.Kind, err = types.ParseKind(c.Query("kind")); err != nil {
		return q, err
	}
	limit, err := optionalInt64(c, "limit")
	if err != nil {
		return q, err
	}
	if limit != nil {
		q.Limit = int(min(*limit, int64(maxLimit)))
	}
	return q, nil
}
