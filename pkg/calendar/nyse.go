package calendar

import "time"

const dateKey = "2006-01-02"

// Unscheduled full-day closures.
var specialClosures = []string{
	"2001-09-11", "2001-09-12", "2001-09-13", "2001-09-14",
	"2004-06-11",
	"2007-01-02",
	"2012-10-29", "2012-10-30",
	"2018-12-05",
	"2025-01-09",
}

// NYSE is the New York Stock Exchange trading calendar. Holidays for
// [fromYear, toYear] are computed once at construction; other years are
// computed on demand.
type NYSE struct {
	fromYear, toYear int
	holidays         map[string]struct{}
}

// NewNYSE precomputes holidays for the inclusive year range.
func NewNYSE(fromYear, toYear int) *NYSE {
	c := &NYSE{fromYear: fromYear, toYear: toYear, holidays: make(map[string]struct{})}
	for y := fromYear; y <= toYear; y++ {
		for _, d := range Holidays(y) {
			c.holidays[d.Format(dateKey)] = struct{}{}
		}
	}
	return c
}

// IsTradingDay reports whether the exchange holds a regular session on d.
func (c *NYSE) IsTradingDay(d time.Time) bool {
	if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !c.isHoliday(d)
}

// NextTradingDay returns the first trading day strictly after d.
func (c *NYSE) NextTradingDay(d time.Time) time.Time {
	next := date(d.Year(), d.Month(), d.Day()+1)
	for !c.IsTradingDay(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// TradingDays lists trading days in [from, to].
func (c *NYSE) TradingDays(from, to time.Time) []time.Time {
	var out []time.Time
	for d := date(from.Year(), from.Month(), from.Day()); !d.After(to); d = d.AddDate(0, 0, 1) {
		if c.IsTradingDay(d) {
			out = append(out, d)
		}
	}
	return out
}

func (c *NYSE) isHoliday(d time.Time) bool {
	key := d.Format(dateKey)
	if y := d.Year(); y < c.fromYear || y > c.toYear {
		for _, h := range Holidays(y) {
			if h.Format(dateKey) == key {
				return true
			}
		}
		return false
	}
	_, ok := c.holidays[key]
	return ok
}

// Holidays returns the full-day NYSE closures of a year, including special closures.
func Holidays(year int) []time.Time {
	var out []time.Time

	// New Year's Day on a Saturday is not observed on the prior Friday.
	ny := date(year, time.January, 1)
	switch ny.Weekday() {
	case time.Sunday:
		out = append(out, ny.AddDate(0, 0, 1))
	case time.Saturday:
	default:
		out = append(out, ny)
	}

	out = append(out,
		nthWeekday(year, time.January, time.Monday, 3),
		nthWeekday(year, time.February, time.Monday, 3),
		easter(year).AddDate(0, 0, -2),
		lastWeekday(year, time.May, time.Monday),
	)
	if year >= 2022 {
		out = append(out, observed(date(year, time.June, 19)))
	}
	out = append(out,
		observed(date(year, time.July, 4)),
		nthWeekday(year, time.September, time.Monday, 1),
		nthWeekday(year, time.November, time.Thursday, 4),
		observed(date(year, time.December, 25)),
	)

	for _, s := range specialClosures {
		t, _ := time.Parse(dateKey, s)
		if t.Year() == year {
			out = append(out, t)
		}
	}
	return out
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// observed shifts Saturday holidays to Friday and Sunday holidays to Monday.
func observed(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	}
	return d
}

func nthWeekday(year int, month time.Month, wd time.Weekday, n int) time.Time {
	d := date(year, month, 1)
	offset := (int(wd) - int(d.Weekday()) + 7) % 7
	return d.AddDate(0, 0, offset+7*(n-1))
}

func lastWeekday(year int, month time.Month, wd time.Weekday) time.Time {
	d := date(year, month+1, 0)
	offset := (int(d.Weekday()) - int(wd) + 7) % 7
	return d.AddDate(0, 0, -offset)
}

// easter returns Gregorian Easter Sunday (anonymous algorithm).
func easter(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return date(year, time.Month(month), day)
}
