package scheduling

import (
	"time"

	"github.com/cuidarlink/clinic-app/models"
	"github.com/cuidarlink/clinic-app/utils"
)

// CreationHorizonMonths bounds how far ahead occurrences are generated when
// a recurring series is first created.
const CreationHorizonMonths = 3

// ConversionOccurrences is how many future occurrences are generated when an
// existing appointment is converted to a series or its interval changes.
//
// Note the two policies differ on purpose: creation is bounded by date,
// conversion by count. See DESIGN.md.
const ConversionOccurrences = 12

// GenerateUntilHorizon expands a recurrence rule into occurrence times
// starting at start, stepping by the frequency interval, until the running
// date would pass start + 3 months. A non-recurring frequency yields nil:
// the caller already has its explicit timestamps.
func GenerateUntilHorizon(start time.Time, freq models.Frequency) []time.Time {
	step := freq.IntervalDays()
	if step == 0 {
		return nil
	}

	horizon := utils.MonthsAfter(start, CreationHorizonMonths)
	var occurrences []time.Time
	for t := start; !t.After(horizon); t = utils.AddDays(t, step) {
		occurrences = append(occurrences, t)
	}
	return occurrences
}

// GenerateCount emits exactly n occurrences strictly after seed, spaced by
// the frequency interval.
func GenerateCount(seed time.Time, freq models.Frequency, n int) []time.Time {
	step := freq.IntervalDays()
	if step == 0 || n <= 0 {
		return nil
	}

	occurrences := make([]time.Time, 0, n)
	t := seed
	for i := 0; i < n; i++ {
		t = utils.AddDays(t, step)
		occurrences = append(occurrences, t)
	}
	return occurrences
}
