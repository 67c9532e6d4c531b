package model

import (
	"fmt"
	"strings"
	"time"

	"divination-ai/internal/domain"
)

type QueryType string

const (
	QueryNatal   QueryType = "natal"
	QueryYearly  QueryType = "yearly"
	QueryMonthly QueryType = "monthly"
	QueryDaily   QueryType = "daily"
)

// AstrologyQuery is a Zi Wei chart request. It is not random; the core only
// carries it to the backend.
type AstrologyQuery struct {
	Name          string     `json:"name"`
	Gender        string     `json:"gender"`
	BirthTime     time.Time  `json:"birth_time"`
	BirthLocation string     `json:"birth_location"`
	IsTwin        bool       `json:"is_twin,omitempty"`
	TwinOrder     string     `json:"twin_order,omitempty"`
	QueryType     QueryType  `json:"query_type"`
	QueryDate     *time.Time `json:"query_date,omitempty"`
	Chart         []byte     `json:"chart,omitempty"` // opaque chart payload from the charting collaborator
}

func (q AstrologyQuery) Validate() error {
	if strings.TrimSpace(q.Name) == "" {
		return fmt.Errorf("%w: name is required", domain.ErrInvalidDraw)
	}
	if q.BirthTime.IsZero() {
		return fmt.Errorf("%w: birth time is required", domain.ErrInvalidDraw)
	}
	switch q.QueryType {
	case QueryNatal:
	case QueryYearly, QueryMonthly, QueryDaily:
		if q.QueryDate == nil || q.QueryDate.IsZero() {
			return fmt.Errorf("%w: %s query needs a query date", domain.ErrInvalidDraw, q.QueryType)
		}
	default:
		return fmt.Errorf("%w: query type %q", domain.ErrInvalidDraw, q.QueryType)
	}
	return nil
}
