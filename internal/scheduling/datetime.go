// Package scheduling contains the pure text extractors for the visit
// scheduling flow: pt-BR datetime parsing, property reference
// classification and confirmation vocabulary matching.
package scheduling

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Location is the fixed offset every parsed datetime carries. Listings and
// leads are in Brasília time; DST was abolished in 2019 so a fixed offset
// is correct.
var Location = time.FixedZone("-03", -3*60*60)

var (
	// "dia 24 às 17h", "dia 24 as 17:30"
	reDayHour = regexp.MustCompile(`(?i)\bdia\s+(\d{1,2})\s+(?:às|as)?\s*(\d{1,2})(?::(\d{2})|h(\d{2})?)?\b`)
	// "24/01 17:00", "24/01/2026 17h", "24/1 às 9h30"
	reSlashDate = regexp.MustCompile(`(?i)\b(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?\s+(?:às|as)?\s*(\d{1,2})(?::(\d{2})|h(\d{2})?)?\b`)
	// "hoje às 15h", "amanhã 10:30"
	reRelative = regexp.MustCompile(`(?i)\b(hoje|amanh[ãa])\s+(?:às|as)?\s*(\d{1,2})(?::(\d{2})|h(\d{2})?)?\b`)
	// bare "24 17h" fallback, both numbers required
	reBare = regexp.MustCompile(`(?i)\b(\d{1,2})\s+(\d{1,2})(?::(\d{2})|h(\d{2})?)\b`)
)

// ParseDateTime extracts the first recognizable pt-BR date-plus-hour
// expression from text. An explicit hour is required: a bare day with no
// time never matches. Day-only forms resolve to the next future occurrence
// of that day of month relative to now.
func ParseDateTime(text string, now time.Time) (time.Time, bool) {
	now = now.In(Location)

	if m := reSlashDate.FindStringSubmatch(text); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		hour, ok := parseHour(m[4], m[5], m[6])
		if !ok || !validDay(day) || month < 1 || month > 12 {
			return time.Time{}, false
		}
		year := now.Year()
		if m[3] != "" {
			y, _ := strconv.Atoi(m[3])
			if y < 100 {
				y += 2000
			}
			year = y
		}
		candidate := time.Date(year, time.Month(month), day, hour.h, hour.m, 0, 0, Location)
		if m[3] == "" && candidate.Before(now.Add(-24*time.Hour)) {
			candidate = candidate.AddDate(1, 0, 0)
		}
		return candidate, true
	}

	if m := reRelative.FindStringSubmatch(text); m != nil {
		hour, ok := parseHour(m[2], m[3], m[4])
		if !ok {
			return time.Time{}, false
		}
		base := now
		if strings.HasPrefix(strings.ToLower(m[1]), "amanh") {
			base = now.AddDate(0, 0, 1)
		}
		return time.Date(base.Year(), base.Month(), base.Day(), hour.h, hour.m, 0, 0, Location), true
	}

	if m := reDayHour.FindStringSubmatch(text); m != nil {
		day, _ := strconv.Atoi(m[1])
		hour, ok := parseHour(m[2], m[3], m[4])
		if !ok || !validDay(day) {
			return time.Time{}, false
		}
		return nextDayOfMonth(day, hour, now), true
	}

	if m := reBare.FindStringSubmatch(text); m != nil {
		day, _ := strconv.Atoi(m[1])
		hour, ok := parseHour(m[2], m[3], m[4])
		if !ok || !validDay(day) {
			return time.Time{}, false
		}
		return nextDayOfMonth(day, hour, now), true
	}

	return time.Time{}, false
}

type hourMinute struct {
	h, m int
}

func parseHour(hourStr, colonMin, hMin string) (hourMinute, bool) {
	h, err := strconv.Atoi(hourStr)
	if err != nil || h < 0 || h > 23 {
		return hourMinute{}, false
	}
	minStr := colonMin
	if minStr == "" {
		minStr = hMin
	}
	m := 0
	if minStr != "" {
		m, err = strconv.Atoi(minStr)
		if err != nil || m < 0 || m > 59 {
			return hourMinute{}, false
		}
	}
	return hourMinute{h: h, m: m}, true
}

func validDay(day int) bool {
	return day >= 1 && day <= 31
}

// nextDayOfMonth resolves a day-of-month with no explicit month to its next
// future occurrence.
func nextDayOfMonth(day int, hour hourMinute, now time.Time) time.Time {
	for i := 0; i < 13; i++ {
		candidate := time.Date(now.Year(), now.Month()+time.Month(i), day, hour.h, hour.m, 0, 0, Location)
		// Date normalizes day 31 in a 30-day month to the next month.
		if candidate.Day() != day {
			continue
		}
		if !candidate.Before(now) {
			return candidate
		}
	}
	return time.Date(now.Year(), now.Month(), day, hour.h, hour.m, 0, 0, Location)
}
