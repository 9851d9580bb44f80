// Package notes extracts timestamps embedded in free-text contact notes.
// It is a best-effort extractor: invalid matches are discarded silently.
package notes

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Timestamp is one extracted occurrence, in text order.
type Timestamp struct {
	Time     time.Time
	Original string
}

const (
	minYear = 2000
	maxYear = 2100

	// defaultHour is assumed for date-only matches.
	defaultHour = 12
)

// daysInMonth is a fixed table; February always admits 29.
var daysInMonth = [13]int{0, 31, 29, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// timestampPattern pairs a regexp with an extractor. Patterns run in
// priority order; spans consumed by an earlier pattern are skipped by
// later ones, so a full date+time is never double-counted by the looser
// month/day form.
type timestampPattern struct {
	re    *regexp.Regexp
	build func(groups []string, year int) (time.Time, bool)
}

var patterns = []timestampPattern{
	// 2023/9/14 12:24, optional single-letter prefix (e.g. "T2023/9/14 12:24").
	{
		re: regexp.MustCompile(`[A-Za-z]?(\d{4})/(\d{1,2})/(\d{1,2})\s+(\d{1,2}):(\d{2})`),
		build: func(g []string, _ int) (time.Time, bool) {
			return buildTime(atoi(g[1]), atoi(g[2]), atoi(g[3]), atoi(g[4]), atoi(g[5]), true)
		},
	},
	// 2023/9/14, time defaults to noon.
	{
		re: regexp.MustCompile(`(\d{4})/(\d{1,2})/(\d{1,2})`),
		build: func(g []string, _ int) (time.Time, bool) {
			return buildTime(atoi(g[1]), atoi(g[2]), atoi(g[3]), defaultHour, 0, true)
		},
	},
	// 3/2 12:00, current calendar year assumed.
	{
		re: regexp.MustCompile(`(\d{1,2})/(\d{1,2})\s+(\d{1,2}):(\d{2})`),
		build: func(g []string, year int) (time.Time, bool) {
			return buildTime(year, atoi(g[1]), atoi(g[2]), atoi(g[3]), atoi(g[4]), false)
		},
	},
	// 3/2, current year and noon.
	{
		re: regexp.MustCompile(`(\d{1,2})/(\d{1,2})`),
		build: func(g []string, year int) (time.Time, bool) {
			return buildTime(year, atoi(g[1]), atoi(g[2]), defaultHour, 0, false)
		},
	},
}

// ParseTimestamps extracts every valid timestamp from text, ordered by
// position of occurrence.
func ParseTimestamps(text string) []Timestamp {
	if text == "" {
		return nil
	}

	year := time.Now().Year()
	consumed := make([]bool, len(text))

	type located struct {
		ts    Timestamp
		start int
	}
	var found []located

	for _, p := range patterns {
		for _, idx := range p.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := idx[0], idx[1]
			if overlaps(consumed, start, end) {
				continue
			}

			groups := make([]string, 0, len(idx)/2)
			for g := 0; g < len(idx); g += 2 {
				if idx[g] < 0 {
					groups = append(groups, "")
					continue
				}
				groups = append(groups, text[idx[g]:idx[g+1]])
			}

			// Recognized spans are consumed even when validation rejects
			// them, so a malformed full form is never re-read as a valid
			// shorter one.
			mark(consumed, start, end)

			t, ok := p.build(groups, year)
			if !ok {
				continue
			}

			found = append(found, located{
				ts:    Timestamp{Time: t, Original: text[start:end]},
				start: start,
			})
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].start < found[j].start })

	result := make([]Timestamp, len(found))
	for i, f := range found {
		result[i] = f.ts
	}
	return result
}

// MostRecent returns the latest timestamp in text.
func MostRecent(text string) (Timestamp, bool) {
	var best Timestamp
	ok := false
	for _, ts := range ParseTimestamps(text) {
		if !ok || ts.Time.After(best.Time) {
			best = ts
			ok = true
		}
	}
	return best, ok
}

// AllTimestamps extracts from several texts, deduplicates by instant and
// sorts most recent first.
func AllTimestamps(texts ...string) []Timestamp {
	seen := make(map[time.Time]bool)
	var all []Timestamp
	for _, text := range texts {
		for _, ts := range ParseTimestamps(text) {
			if seen[ts.Time] {
				continue
			}
			seen[ts.Time] = true
			all = append(all, ts)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Time.After(all[j].Time) })
	return all
}

// HasTimestamp reports whether text contains at least one valid timestamp.
func HasTimestamp(text string) bool {
	return len(ParseTimestamps(text)) > 0
}

// CountCalls counts timestamped lines in contact notes. Each dated line is
// treated as one logged call.
func CountCalls(text string) int {
	count := 0
	for _, line := range strings.Split(text, "\n") {
		if HasTimestamp(line) {
			count++
		}
	}
	return count
}

func buildTime(year, month, day, hour, minute int, yearBearing bool) (time.Time, bool) {
	if yearBearing && (year < minYear || year > maxYear) {
		return time.Time{}, false
	}
	if month < 1 || month > 12 {
		return time.Time{}, false
	}
	if day < 1 || day > daysInMonth[month] {
		return time.Time{}, false
	}
	if hour > 23 || minute > 59 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.Local), true
}

func overlaps(consumed []bool, start, end int) bool {
	for i := start; i < end; i++ {
		if consumed[i] {
			return true
		}
	}
	return false
}

func mark(consumed []bool, start, end int) {
	for i := start; i < end; i++ {
		consumed[i] = true
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
