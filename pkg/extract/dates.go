package extract

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateNormalizer converts free-text date fragments found near a file link
// into a calendar date. Strategies run in a fixed order; the first success
// wins. When everything fails the document is stamped with today's date
// (or dropped, depending on the configured undated policy); callers see
// the guessed flag and must treat the default as lossy.
type DateNormalizer struct {
	now func() time.Time
}

// NewDateNormalizer creates a normalizer. now is injectable for tests; nil
// means time.Now.
func NewDateNormalizer(now func() time.Time) *DateNormalizer {
	if now == nil {
		now = time.Now
	}
	return &DateNormalizer{now: now}
}

var monthsByName = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may": time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

var (
	// "March 15, 2024", "Mar 5 2024", "March 2024"
	monthDayYearRe = regexp.MustCompile(`(?i)\b([a-z]{3,9})\.?\s+(\d{1,2})(?:st|nd|rd|th)?\s*,?\s+(\d{4})\b`)
	monthYearRe    = regexp.MustCompile(`(?i)\b([a-z]{3,9})\.?\s*,?\s+(\d{4})\b`)
	// "2024-03-15"
	isoDateRe = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	// "03/15/2024", "03-15-24" (strictly month-first explicit formats)
	numericSlashDashRe = regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})[/-](\d{2,4})\b`)
	// "15.03.24", "3-1-24" last-resort numeric, month/day order resolved at use
	numericDateRe = regexp.MustCompile(`\b(\d{1,2})[./-](\d{1,2})[./-](\d{2,4})\b`)
	yearRe        = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	monthNameRe   = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec)\b`)
	// Date-like substrings inside file URLs
	urlSlashDateRe = regexp.MustCompile(`\b(\d{4})/(\d{1,2})/(\d{1,2})\b`)
	// \b is useless here: underscores are word characters, so it would never
	// fire on names like deck_20240315.pdf. Bound by non-digits instead.
	urlCompactRe = regexp.MustCompile(`(?:^|[^0-9])((?:19|20)\d{2})(0[1-9]|1[0-2])(0[1-9]|[12]\d|3[01])(?:[^0-9]|$)`)
)

// Normalize resolves a publication date from the text fragment near a file
// link, falling back to date-like substrings in the file's own URL, and
// finally to today. guessed reports that the date was defaulted rather than
// observed; callers applying the "skip" undated policy drop guessed records.
func (n *DateNormalizer) Normalize(fragment, fileURL string) (date time.Time, guessed bool) {
	if d, ok := n.fromText(fragment); ok {
		return d, false
	}
	if d, ok := n.fromURL(fileURL); ok {
		return d, false
	}
	// Lossy default: an undated document passes the recency cutoff.
	return n.today(), true
}

// fromText runs strategies 1-4 against a free-text fragment, in order,
// first success wins.
func (n *DateNormalizer) fromText(fragment string) (time.Time, bool) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return time.Time{}, false
	}

	// 1. Explicit formats: ISO, month-first numeric with / or - separators
	// (US convention), and month-name forms.
	if m := isoDateRe.FindStringSubmatch(fragment); m != nil {
		if d, ok := makeDate(m[1], m[2], m[3]); ok {
			return d, true
		}
	}
	if m := numericSlashDashRe.FindStringSubmatch(fragment); m != nil {
		year := expandYear(m[3])
		if d, ok := makeDate(strconv.Itoa(year), m[1], m[2]); ok {
			return d, true
		}
	}
	if m := monthDayYearRe.FindStringSubmatch(fragment); m != nil {
		if month, ok := monthsByName[strings.ToLower(m[1])]; ok {
			day, _ := strconv.Atoi(m[2])
			year, _ := strconv.Atoi(m[3])
			if validDay(year, month, day) {
				return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), true
			}
		}
	}
	if m := monthYearRe.FindStringSubmatch(fragment); m != nil {
		if month, ok := monthsByName[strings.ToLower(m[1])]; ok {
			year, _ := strconv.Atoi(m[2])
			if year >= 1900 && year <= 2100 {
				return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC), true
			}
		}
	}

	// 2. Four-digit year plus a month name anywhere -> 1st of that month.
	// 3. Year alone -> Jan 1 of that year.
	if yearMatch := yearRe.FindString(fragment); yearMatch != "" {
		year, _ := strconv.Atoi(yearMatch)
		if nameMatch := monthNameRe.FindString(fragment); nameMatch != "" {
			if month, ok := monthsByName[strings.ToLower(nameMatch)]; ok {
				return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC), true
			}
		}
		return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC), true
	}

	// 4. Bare numeric D[./-]D[./-]Y. The first group is the month when <=12
	// (US convention), otherwise day-first.
	if m := numericDateRe.FindStringSubmatch(fragment); m != nil {
		first, _ := strconv.Atoi(m[1])
		second, _ := strconv.Atoi(m[2])
		year := expandYear(m[3])

		month, day := first, second
		if first > 12 {
			month, day = second, first
		}
		if month >= 1 && month <= 12 && validDay(year, time.Month(month), day) {
			return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
		}
	}

	return time.Time{}, false
}

// fromURL looks for date-like substrings inside the file's own URL:
// yyyy-MM-dd, yyyy/MM/dd, or bare yyyymmdd.
func (n *DateNormalizer) fromURL(fileURL string) (time.Time, bool) {
	if fileURL == "" {
		return time.Time{}, false
	}
	candidate := fileURL
	if u, err := url.Parse(fileURL); err == nil {
		candidate = u.Path
	}

	if m := isoDateRe.FindStringSubmatch(candidate); m != nil {
		if d, ok := makeDate(m[1], m[2], m[3]); ok {
			return d, true
		}
	}
	if m := urlSlashDateRe.FindStringSubmatch(candidate); m != nil {
		if d, ok := makeDate(m[1], m[2], m[3]); ok {
			return d, true
		}
	}
	if m := urlCompactRe.FindStringSubmatch(candidate); m != nil {
		if d, ok := makeDate(m[1], m[2], m[3]); ok {
			return d, true
		}
	}
	return time.Time{}, false
}

func (n *DateNormalizer) today() time.Time {
	y, m, d := n.now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// makeDate builds a date from year/month/day strings, rejecting impossible
// calendar values.
func makeDate(yearStr, monthStr, dayStr string) (time.Time, bool) {
	year, _ := strconv.Atoi(yearStr)
	month, _ := strconv.Atoi(monthStr)
	day, _ := strconv.Atoi(dayStr)
	if year < 1900 || year > 2100 || month < 1 || month > 12 || !validDay(year, time.Month(month), day) {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}

// expandYear maps 2-digit years below 50 to 20xx, the rest to 19xx.
func expandYear(s string) int {
	year, _ := strconv.Atoi(s)
	if len(s) > 2 {
		return year
	}
	if year < 50 {
		return 2000 + year
	}
	return 1900 + year
}

// validDay checks day-of-month against the actual month length.
func validDay(year int, month time.Month, day int) bool {
	if day < 1 || day > 31 {
		return false
	}
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return d.Month() == month && d.Day() == day
}
