package scheduler

import (
	"fmt"
	"strings"
	"time"
)

const ledgerDateLayout = "2006-01-02"

// Ledger records when each slot last fired, keyed by LedgerKey. A key
// exists for a day at most once, which is what keeps a slot from firing
// twice on the same date.
type Ledger map[string]int64

// LedgerKey builds "{date}_{locale}_{class}_{hour}:{minute}" for slot on
// the calendar day of day.
func LedgerKey(day time.Time, s Slot) string {
	return fmt.Sprintf("%s_%s_%s_%d:%d", day.Format(ledgerDateLayout), s.Locale, s.Class, s.Hour, s.Minute)
}

// Has reports whether slot already fired on day.
func (l Ledger) Has(day time.Time, s Slot) bool {
	_, ok := l[LedgerKey(day, s)]
	return ok
}

func (l Ledger) clone() Ledger {
	out := make(Ledger, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// prune drops entries dated more than keepDays before today. Keys whose
// date cannot be read are left alone.
func (l Ledger) prune(today time.Time, keepDays int) int {
	if keepDays <= 0 {
		return 0
	}
	y, m, d := today.Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, today.Location()).AddDate(0, 0, -keepDays)

	removed := 0
	for k := range l {
		date, _, ok := strings.Cut(k, "_")
		if !ok {
			continue
		}
		day, err := time.ParseInLocation(ledgerDateLayout, date, today.Location())
		if err != nil {
			continue
		}
		if day.Before(cutoff) {
			delete(l, k)
			removed++
		}
	}
	return removed
}
