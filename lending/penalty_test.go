package lending_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmlink/cooperative/lending"
)

// =============================================================================
// PENALTY TESTS
// =============================================================================

func daysAgo(n int) time.Time {
	return testNow.AddDate(0, 0, -n)
}

func TestCalculatePenalty_ReferenceVectors(t *testing.T) {
	engine := newTestEngine(t)

	cases := []struct {
		name        string
		due         time.Time
		amount      int64
		wantPenalty int64
		wantDays    int
	}{
		{"within grace", daysAgo(5), 10000, 0, 0},
		{"exactly at grace boundary", daysAgo(7), 10000, 0, 0},
		{"five days past grace", daysAgo(12), 10000, 50, 5},
		{"twenty days past grace", daysAgo(27), 50000, 1000, 20},
		{"future due date", testNow.AddDate(0, 0, 5), 10000, 0, 0},
		{"rounds 37.035 to 37", daysAgo(10), 12345, 37, 3},
		{"zero amount still counts days", daysAgo(15), 0, 0, 8},
		{"large amount", daysAgo(37), 1000000, 30000, 30},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := engine.CalculatePenalty(tc.due, amt(tc.amount))

			require.NoError(t, err)
			assert.True(t, result.Penalty.Equal(amt(tc.wantPenalty)),
				"expected penalty %d, got %s", tc.wantPenalty, result.Penalty)
			assert.Equal(t, tc.wantDays, result.DaysOverdue)
		})
	}
}

func TestCalculatePenalty_DayAfterGrace(t *testing.T) {
	engine := newTestEngine(t)

	result, err := engine.CalculatePenalty(daysAgo(8), amt(10000))

	require.NoError(t, err)
	assert.Equal(t, 1, result.DaysOverdue)
	assert.True(t, result.Penalty.Equal(amt(10)))
}

func TestCalculatePenalty_PartialDaysTruncate(t *testing.T) {
	// GIVEN: A due date 7 days and 23 hours ago
	// WHEN: Computing the penalty
	// THEN: Partial days don't count, so it's still within grace

	engine := newTestEngine(t)
	due := testNow.Add(-(7*24 + 23) * time.Hour)

	result, err := engine.CalculatePenalty(due, amt(10000))

	require.NoError(t, err)
	assert.Equal(t, 0, result.DaysOverdue)
	assert.True(t, result.Penalty.IsZero())
}

func TestCalculatePenalty_RoundsHalfUp(t *testing.T) {
	// 500 * 0.001 * 1 = 0.5 -> 1 (half-up), 1500 * 0.001 * 1 = 1.5 -> 2, 2500 -> 3
	engine := newTestEngine(t)

	for amount, want := range map[int64]int64{500: 1, 1500: 2, 2500: 3, 499: 0} {
		result, err := engine.CalculatePenalty(daysAgo(8), amt(amount))
		require.NoError(t, err)
		assert.True(t, result.Penalty.Equal(amt(want)), "amount %d: expected %d, got %s", amount, want, result.Penalty)
	}
}

func TestCalculatePenalty_NegativeAmount(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.CalculatePenalty(daysAgo(30), amt(-1))

	assert.ErrorIs(t, err, lending.ErrNegativeAmount)
}

func TestCalculatePenaltyAt_ExplicitInstant(t *testing.T) {
	engine := newTestEngine(t)
	due := date(2025, time.January, 1)

	result, err := engine.CalculatePenaltyAt(date(2025, time.January, 18), due, amt(20000))

	require.NoError(t, err)
	assert.Equal(t, 10, result.DaysOverdue)
	assert.True(t, result.Penalty.Equal(amt(200)))
}

func TestCalculatePenalty_CustomGracePolicy(t *testing.T) {
	policy := lending.DefaultPolicy()
	policy.GraceDays = 0
	policy.DailyPenaltyRate = dec("0.01")
	engine, err := lending.NewEngine(policy, lending.FixedClock{T: testNow})
	require.NoError(t, err)

	result, err := engine.CalculatePenalty(daysAgo(2), amt(1000))

	require.NoError(t, err)
	assert.Equal(t, 2, result.DaysOverdue)
	assert.True(t, result.Penalty.Equal(amt(20)))
}

func TestWholeDaysBetween(t *testing.T) {
	from := date(2025, time.March, 1)

	assert.Equal(t, 0, lending.WholeDaysBetween(from, from.Add(23*time.Hour)))
	assert.Equal(t, 1, lending.WholeDaysBetween(from, from.Add(24*time.Hour)))
	assert.Equal(t, -5, lending.WholeDaysBetween(from, from.AddDate(0, 0, -5)))
}
