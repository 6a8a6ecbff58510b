package cron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskforge/orchestrator/internal/domain"
)

func mustParse(t *testing.T, expr string) Expression {
	t.Helper()
	e, err := Parse(expr)
	require.NoError(t, err)
	return e
}

func TestParse_NamedAliases(t *testing.T) {
	for alias := range namedAliases {
		_, err := Parse(alias)
		assert.NoError(t, err, "alias %q should parse", alias)
	}
}

func TestParse_StarSlashShorthand(t *testing.T) {
	e, err := Parse("*/15")
	require.NoError(t, err)
	assert.Equal(t, "*/15", e.String())
	// Equivalent to "*/15 * * * *": matches minute 0, 15, 30, 45.
	now := time.Date(2026, 7, 30, 10, 30, 0, 0, time.UTC)
	assert.True(t, Match(e, now))
	now = time.Date(2026, 7, 30, 10, 31, 0, 0, time.UTC)
	assert.False(t, Match(e, now))
}

func TestParse_InvalidExpression(t *testing.T) {
	cases := []string{
		"",
		"* * * *",     // too few fields
		"60 * * * *",  // minute out of range
		"* 24 * * *",  // hour out of range
		"* * 0 * *",   // dom out of range (1-31)
		"* * * 13 *",  // month out of range
		"* * * * 7",   // dow out of range (0-6)
		"*/0 * * * *", // invalid step
		"a b c d e",
	}
	for _, c := range cases {
		_, err := Parse(c)
		assert.ErrorIs(t, err, domain.ErrInvalidCronExpression, "expr %q", c)
		assert.False(t, IsValid(c))
	}
}

func TestMatch_ExactFields(t *testing.T) {
	e := mustParse(t, "30 14 1 6 *")
	assert.True(t, Match(e, time.Date(2026, 6, 1, 14, 30, 0, 0, time.UTC)))
	assert.False(t, Match(e, time.Date(2026, 6, 1, 14, 31, 0, 0, time.UTC)))
	assert.False(t, Match(e, time.Date(2026, 6, 2, 14, 30, 0, 0, time.UTC)))
}

func TestMatch_Range(t *testing.T) {
	e := mustParse(t, "0 9-17 * * 1-5")
	mon9 := time.Date(2026, 7, 27, 9, 0, 0, 0, time.UTC) // a Monday
	assert.True(t, Match(e, mon9))
	sun9 := time.Date(2026, 7, 26, 9, 0, 0, 0, time.UTC) // a Sunday
	assert.False(t, Match(e, sun9))
}

func TestMatch_List(t *testing.T) {
	e := mustParse(t, "0,30 * * * *")
	assert.True(t, Match(e, time.Date(2026, 1, 1, 5, 0, 0, 0, time.UTC)))
	assert.True(t, Match(e, time.Date(2026, 1, 1, 5, 30, 0, 0, time.UTC)))
	assert.False(t, Match(e, time.Date(2026, 1, 1, 5, 15, 0, 0, time.UTC)))
}

func TestMatch_IgnoresSeconds(t *testing.T) {
	e := mustParse(t, "every_minute")
	assert.True(t, Match(e, time.Date(2026, 1, 1, 5, 0, 59, 0, time.UTC)))
}

func TestMatch_DayOfWeekZeroIsSunday(t *testing.T) {
	e := mustParse(t, "weekly") // "0 0 * * 0"
	sunday := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Sunday, sunday.Weekday())
	assert.True(t, Match(e, sunday))
	monday := sunday.AddDate(0, 0, 1)
	assert.False(t, Match(e, monday))
}

// Canonicalisation property: equivalent expressions (alias vs explicit
// five-field form) must match exactly the same instants.
func TestMatch_AliasEquivalentToExplicitForm(t *testing.T) {
	alias := mustParse(t, "daily")
	explicit := mustParse(t, "0 0 * * *")
	probe := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, Match(alias, probe), Match(explicit, probe))
	probe = probe.Add(time.Hour)
	assert.Equal(t, Match(alias, probe), Match(explicit, probe))
}
