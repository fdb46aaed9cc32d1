package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DateLayout is the accepted date format.
const DateLayout = "2006-01-02"

// ValidationError lists every configuration problem found.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Issues, "; ")
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks required fields and the date rules relative to now.
func (c *Config) Validate(now time.Time) error {
	var issues []string

	if err := newValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return &ValidationError{Issues: []string{err.Error()}}
		}
		for _, fe := range verrs {
			issues = append(issues, fieldIssue(fe))
		}
	}

	issues = append(issues, c.dateIssues(now)...)

	if !c.ExportHits && !c.ExportVisits {
		issues = append(issues, "nothing to export: both export_hits and export_visits are false")
	}
	switch c.Destination.Kind {
	case "clickhouse":
		if c.Host == "" {
			issues = append(issues, "ch_host is required for the clickhouse destination")
		}
	case "":
	default:
		if c.Destination.DSN == "" {
			issues = append(issues, fmt.Sprintf("destination.dsn is required for the %s destination", c.Destination.Kind))
		}
	}
	if c.Polling.Interval.D() <= 0 || c.Polling.MaxWait.D() <= 0 {
		issues = append(issues, "polling.interval and polling.max_wait must be positive")
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

func fieldIssue(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "required_with":
		return fmt.Sprintf("%s is required when %s is set", fe.Field(), strings.ToLower(fe.Param()))
	case "numeric":
		return fe.Field() + " must be numeric"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", fe.Field(), fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

// dateIssues checks format, that neither date is after today, and start <= end.
func (c *Config) dateIssues(now time.Time) []string {
	if c.StartDate == "" || c.EndDate == "" {
		return nil
	}
	var issues []string
	start, err := time.Parse(DateLayout, c.StartDate)
	if err != nil {
		issues = append(issues, fmt.Sprintf("start_date %q is not YYYY-MM-DD", c.StartDate))
	}
	end, err2 := time.Parse(DateLayout, c.EndDate)
	if err2 != nil {
		issues = append(issues, fmt.Sprintf("end_date %q is not YYYY-MM-DD", c.EndDate))
	}
	if err != nil || err2 != nil {
		return issues
	}

	today, _ := time.Parse(DateLayout, now.Format(DateLayout))
	if start.After(today) || end.After(today) {
		issues = append(issues, fmt.Sprintf("dates must not be in the future (today is %s)", today.Format(DateLayout)))
	}
	if start.After(end) {
		issues = append(issues, fmt.Sprintf("start_date %s is after end_date %s", c.StartDate, c.EndDate))
	}
	return issues
}

// Days is the inclusive number of days in the period, or 0 if invalid.
func (p Period) Days() int {
	start, err := time.Parse(DateLayout, p.StartDate)
	if err != nil {
		return 0
	}
	end, err := time.Parse(DateLayout, p.EndDate)
	if err != nil || end.Before(start) {
		return 0
	}
	return int(end.Sub(start).Hours()/24) + 1
}
