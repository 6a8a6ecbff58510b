// Package cron implements the §4.E CronEngine: a hand-rolled five-field
// matcher, not a scheduling runtime. It only ever answers "does this
// expression match this instant", leaving firing and de-duplication to
// internal/scheduler.
package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/taskforge/orchestrator/internal/domain"
)

// fieldSpec is one parsed cron field: the set of values it matches,
// within the field's domain.
type fieldSpec struct {
	values map[int]struct{}
}

func (f fieldSpec) matches(v int) bool {
	_, ok := f.values[v]
	return ok
}

// Expression is a parsed five-field cron string (§4.E), immutable
// after Parse succeeds.
type Expression struct {
	minute fieldSpec
	hour   fieldSpec
	dom    fieldSpec
	month  fieldSpec
	// dow uses 0 = Sunday, matching the cron(8)/robfig-cron convention
	// rather than leaving the platform's time.Weekday ambiguity open
	// (§9 decision 2).
	dow fieldSpec
	raw string
}

func (e Expression) String() string { return e.raw }

// namedAliases is the §4.E alias table; Parse resolves these before
// falling back to five-field syntax.
var namedAliases = map[string]string{
	"every_minute":     "* * * * *",
	"every_5_minutes":  "*/5 * * * *",
	"every_10_minutes": "*/10 * * * *",
	"every_15_minutes": "*/15 * * * *",
	"every_30_minutes": "*/30 * * * *",
	"hourly":           "0 * * * *",
	"daily":            "0 0 * * *",
	"weekly":           "0 0 * * 0",
	"monthly":          "0 0 1 * *",
}

type fieldDomain struct {
	min, max int
}

var domains = [5]fieldDomain{
	{0, 59}, // minute
	{0, 23}, // hour
	{1, 31}, // day of month
	{1, 12}, // month
	{0, 6},  // day of week, 0 = Sunday
}

// Parse parses a five-field cron expression, a named alias
// (every_minute, hourly, …), or the "*/N" shorthand equivalent to
// "*/N * * * *". Invalid syntax returns domain.ErrInvalidCronExpression.
func Parse(expr string) (Expression, error) {
	raw := strings.TrimSpace(expr)
	if resolved, ok := namedAliases[raw]; ok {
		return parseFields(raw, resolved)
	}
	if strings.HasPrefix(raw, "*/") && !strings.Contains(raw, " ") {
		return parseFields(raw, raw+" * * * *")
	}
	return parseFields(raw, raw)
}

func parseFields(raw, expr string) (Expression, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return Expression{}, fmt.Errorf("%w: %q: expected 5 fields, got %d", domain.ErrInvalidCronExpression, raw, len(fields))
	}

	parsed := make([]fieldSpec, 5)
	for i, f := range fields {
		spec, err := parseField(f, domains[i])
		if err != nil {
			return Expression{}, fmt.Errorf("%w: %q: field %d: %v", domain.ErrInvalidCronExpression, raw, i+1, err)
		}
		parsed[i] = spec
	}

	return Expression{
		minute: parsed[0],
		hour:   parsed[1],
		dom:    parsed[2],
		month:  parsed[3],
		dow:    parsed[4],
		raw:    raw,
	}, nil
}

// parseField handles "*", "N", "*/N", "A-B" and "A,B,C" for one field.
func parseField(f string, dom fieldDomain) (fieldSpec, error) {
	values := make(map[int]struct{})

	for _, part := range strings.Split(f, ",") {
		switch {
		case part == "*":
			for v := dom.min; v <= dom.max; v++ {
				values[v] = struct{}{}
			}
		case strings.HasPrefix(part, "*/"):
			step, err := strconv.Atoi(strings.TrimPrefix(part, "*/"))
			if err != nil || step <= 0 {
				return fieldSpec{}, fmt.Errorf("bad step %q", part)
			}
			for v := dom.min; v <= dom.max; v++ {
				if v%step == 0 {
					values[v] = struct{}{}
				}
			}
		case strings.Contains(part, "-"):
			bounds := strings.SplitN(part, "-", 2)
			lo, err1 := strconv.Atoi(bounds[0])
			hi, err2 := strconv.Atoi(bounds[1])
			if err1 != nil || err2 != nil || lo > hi {
				return fieldSpec{}, fmt.Errorf("bad range %q", part)
			}
			for v := lo; v <= hi; v++ {
				if v < dom.min || v > dom.max {
					return fieldSpec{}, fmt.Errorf("value %d out of range in %q", v, part)
				}
				values[v] = struct{}{}
			}
		default:
			v, err := strconv.Atoi(part)
			if err != nil || v < dom.min || v > dom.max {
				return fieldSpec{}, fmt.Errorf("bad value %q", part)
			}
			values[v] = struct{}{}
		}
	}

	if len(values) == 0 {
		return fieldSpec{}, fmt.Errorf("empty field")
	}
	return fieldSpec{values: values}, nil
}

// Match reports whether the expression matches now, truncated to
// minute resolution (§4.E: seconds are ignored).
func Match(e Expression, now time.Time) bool {
	dow := int(now.Weekday()) // time.Sunday == 0, matching our convention
	return e.minute.matches(now.Minute()) &&
		e.hour.matches(now.Hour()) &&
		e.dom.matches(now.Day()) &&
		e.month.matches(int(now.Month())) &&
		e.dow.matches(dow)
}

// IsValid reports whether expr parses successfully, without needing
// the caller to hold onto the parsed Expression.
func IsValid(expr string) bool {
	_, err := Parse(expr)
	return err == nil
}
