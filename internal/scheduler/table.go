package scheduler

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/ibeckermayer/prayerkit/internal/config"
	"github.com/ibeckermayer/prayerkit/internal/types"
)

// Long-form slots repeat at the locale's long hour, LongSlotSpacing
// minutes apart, up to MaxLongCadence times a day.
const (
	MaxLongCadence  = 3
	LongSlotSpacing = 5
	MaxShortHours   = 3
)

// LocaleSchedule is one row of the slot table.
type LocaleSchedule struct {
	LongHour     int
	ShortHours   []int
	MinuteOffset int
}

// Table maps each locale to its schedule. Order fixes the iteration order
// used for tie-breaking.
type Table struct {
	Order   []types.Locale
	Locales map[types.Locale]LocaleSchedule
}

// TableFromConfig validates and converts the configured slot table.
func TableFromConfig(cfg config.ScheduleConfig) (Table, error) {
	t := Table{Locales: make(map[types.Locale]LocaleSchedule, len(cfg.Order))}
	for _, name := range cfg.Order {
		l, err := types.ParseLocale(name)
		if err != nil {
			return Table{}, err
		}
		row, ok := cfg.Locales[name]
		if !ok {
			return Table{}, errors.Newf("schedule: locale %s has no row", name)
		}
		if _, dup := t.Locales[l]; dup {
			return Table{}, errors.Newf("schedule: locale %s listed twice", name)
		}
		if err := validateRow(row); err != nil {
			return Table{}, errors.Wrapf(err, "schedule: locale %s", name)
		}
		t.Order = append(t.Order, l)
		t.Locales[l] = LocaleSchedule{
			LongHour:     row.LongHour,
			ShortHours:   append([]int(nil), row.ShortHours...),
			MinuteOffset: row.MinuteOffset,
		}
	}
	return t, nil
}

func validateRow(row config.LocaleSchedule) error {
	if row.LongHour < 0 || row.LongHour > 23 {
		return errors.Newf("long hour %d out of range", row.LongHour)
	}
	if len(row.ShortHours) > MaxShortHours {
		return errors.Newf("at most %d short hours, got %d", MaxShortHours, len(row.ShortHours))
	}
	for _, h := range row.ShortHours {
		if h < 0 || h > 23 {
			return errors.Newf("short hour %d out of range", h)
		}
	}
	if row.MinuteOffset < 0 || row.MinuteOffset > 59 {
		return errors.Newf("minute offset %d out of range", row.MinuteOffset)
	}
	return nil
}

// maxShort is the largest number of short hours any locale has.
func (t Table) maxShort() int {
	n := 0
	for _, row := range t.Locales {
		n = max(n, len(row.ShortHours))
	}
	return n
}

// CadenceBounds returns the inclusive range of valid cadences for class.
func (t Table) CadenceBounds(class types.JobClass) (lo, hi int) {
	if class == types.ClassLong {
		return 1, MaxLongCadence
	}
	return 0, t.maxShort()
}

// Slot is one scheduled daily firing.
type Slot struct {
	Locale types.Locale   `json:"locale"`
	Class  types.JobClass `json:"class"`
	Hour   int            `json:"hour"`
	Minute int            `json:"minute"`
}

// Clock renders the slot time as HH:MM.
func (s Slot) Clock() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
}

func (s Slot) String() string {
	return fmt.Sprintf("%s/%s@%s", s.Locale, s.Class, s.Clock())
}

// On returns the slot's firing time on the calendar day of day.
func (s Slot) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, s.Hour, s.Minute, 0, 0, day.Location())
}

// Slots enumerates the daily slots for class at the given cadence, in
// locale order and then hour order.
func Slots(t Table, class types.JobClass, cadence int) []Slot {
	var out []Slot
	for _, l := range t.Order {
		row := t.Locales[l]
		switch class {
		case types.ClassLong:
			for i := 0; i < cadence; i++ {
				out = append(out, Slot{Locale: l, Class: class, Hour: row.LongHour, Minute: i * LongSlotSpacing})
			}
		case types.ClassShort:
			n := min(max(cadence, 0), len(row.ShortHours))
			for _, h := range row.ShortHours[:n] {
				out = append(out, Slot{Locale: l, Class: class, Hour: h, Minute: row.MinuteOffset})
			}
		}
	}
	return out
}
