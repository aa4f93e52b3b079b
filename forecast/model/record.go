package model

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

var ErrInvalidRecords = errors.New("invalid training records")

// Flag accepts JSON booleans and the 0/1 integers some producers send.
type Flag bool

func (f *Flag) UnmarshalJSON(raw []byte) error {
	switch s := string(bytes.Trim(bytes.TrimSpace(raw), `"`)); strings.ToLower(s) {
	case "true", "1":
		*f = true
	case "false", "0", "", "null":
		*f = false
	default:
		return fmt.Errorf("invalid flag value %s", string(raw))
	}
	return nil
}

// DailyRecord is one product's activity on one day.
type DailyRecord struct {
	Date               string  `json:"date"`
	ProductID          string  `json:"product_id"`
	UnitsSold          float64 `json:"units_sold"`
	Revenue            float64 `json:"revenue"`
	CustomerFlow       float64 `json:"customer_flow"`
	WeatherTemp        float64 `json:"weather_temp"`
	WeatherCondition   string  `json:"weather_condition,omitempty"`
	HolidayName        string  `json:"holiday_name,omitempty"`
	IsStoreOpen        *Flag   `json:"is_store_open,omitempty"`
	IsOnSale           Flag    `json:"is_on_sale"`
	DiscountPercentage float64 `json:"discount_percentage"`
	FlowStudents       float64 `json:"flow_students"`
	FlowFamilies       float64 `json:"flow_families"`
	FlowSeniors        float64 `json:"flow_seniors"`
}

// Open reports whether the store traded that day. Missing means open.
func (r DailyRecord) Open() bool {
	return r.IsStoreOpen == nil || bool(*r.IsStoreOpen)
}

// ValidationError lists every problem found in a batch.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRecords }

func Validate(records []DailyRecord) error {
	if len(records) == 0 {
		return &ValidationError{Problems: []string{"data is required"}}
	}

	var problems []string
	add := func(i int, format string, args ...any) {
		problems = append(problems, fmt.Sprintf("record %d: ", i)+fmt.Sprintf(format, args...))
	}

	for i, r := range records {
		if _, err := time.Parse(DateLayout, r.Date); err != nil {
			add(i, "invalid date %q, expected YYYY-MM-DD", r.Date)
		}
		if strings.TrimSpace(r.ProductID) == "" {
			add(i, "product_id is required")
		}
		if r.UnitsSold < 0 {
			add(i, "units_sold must be non-negative")
		}
		if r.Revenue < 0 {
			add(i, "revenue must be non-negative")
		}
		if r.CustomerFlow < 0 || r.FlowStudents < 0 || r.FlowFamilies < 0 || r.FlowSeniors < 0 {
			add(i, "customer flow counts must be non-negative")
		}
		if r.DiscountPercentage < 0 || r.DiscountPercentage > 100 {
			add(i, "discount_percentage must be within [0, 100]")
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// SortRecords orders records chronologically, keeping input order within a day.
func SortRecords(records []DailyRecord) []DailyRecord {
	out := append([]DailyRecord(nil), records...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// ProductIDs returns distinct product ids in first-seen order.
func ProductIDs(records []DailyRecord) []string {
	seen := map[string]bool{}
	var ids []string
	for _, r := range records {
		if !seen[r.ProductID] {
			seen[r.ProductID] = true
			ids = append(ids, r.ProductID)
		}
	}
	return ids
}
