package referral

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/clinic/clinic/internal/domain/staff"
	"github.com/clinic/clinic/pkg/dates"
)

// DefaultWindowDays is how far ahead availability looks when no end date is
// given.
const DefaultWindowDays = 90

// ParseRange reads optional start and end dates. Missing values default to
// today and today plus DefaultWindowDays.
func ParseRange(start, end string, today time.Time) (from, to time.Time, err error) {
	from = today
	to = today.AddDate(0, 0, DefaultWindowDays)
	if s := strings.TrimSpace(start); s != "" {
		if from, err = time.ParseInLocation(dates.DateLayout, s, today.Location()); err != nil {
			return time.Time{}, time.Time{}, ErrInvalidDate
		}
		if strings.TrimSpace(end) == "" {
			to = from.AddDate(0, 0, DefaultWindowDays)
		}
	}
	if s := strings.TrimSpace(end); s != "" {
		if to, err = time.ParseInLocation(dates.DateLayout, s, today.Location()); err != nil {
			return time.Time{}, time.Time{}, ErrInvalidDate
		}
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, ErrInvalidRange
	}
	return from, to, nil
}

// Slots cuts each scheduled working window between the dates from and to
// (inclusive, in loc) into slotLen pieces. Slots starting before now or
// overlapping a booked appointment are left out. The result is sorted.
func Slots(schedules []*staff.Schedule, booked []time.Time, from, to, now time.Time, loc *time.Location, slotLen time.Duration) []Slot {
	slots := []Slot{}
	if slotLen <= 0 {
		return slots
	}
	byDay := map[time.Weekday][]*staff.Schedule{}
	for _, sch := range schedules {
		if d, ok := sch.Weekday(); ok {
			byDay[d] = append(byDay[d], sch)
		}
	}

	seen := map[int64]bool{}
	first := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
	last := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, loc)
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		for _, sch := range byDay[day.Weekday()] {
			startOff, err := staff.ParseClock(sch.StartTime)
			if err != nil {
				continue
			}
			endOff, err := staff.ParseClock(sch.EndTime)
			if err != nil {
				continue
			}
			windowEnd := clock(day, endOff, loc)
			for s := clock(day, startOff, loc); !s.Add(slotLen).After(windowEnd); s = s.Add(slotLen) {
				if s.Before(now) || seen[s.Unix()] || overlapsAny(s, slotLen, booked) {
					continue
				}
				seen[s.Unix()] = true
				slots = append(slots, Slot{Start: s, End: s.Add(slotLen)})
			}
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	return slots
}

func clock(day time.Time, offset time.Duration, loc *time.Location) time.Time {
	h := int(offset / time.Hour)
	m := int((offset % time.Hour) / time.Minute)
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, loc)
}

// overlapsAny treats every booked appointment as occupying one slot.
func overlapsAny(start time.Time, slotLen time.Duration, booked []time.Time) bool {
	end := start.Add(slotLen)
	for _, b := range booked {
		if start.Before(b.Add(slotLen)) && b.Before(end) {
			return true
		}
	}
	return false
}

// SlotFree reports whether at is the start of an available slot.
func SlotFree(slots []Slot, at time.Time) bool {
	for _, s := range slots {
		if s.Start.Equal(at) {
			return true
		}
	}
	return false
}

var appointmentLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseAppointmentTime accepts RFC 3339 timestamps and zone-less local
// times, which are read in loc.
func ParseAppointmentTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range appointmentLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("appointment_date must be an ISO 8601 date and time")
}
