package scheduler

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind names the form a schedule expression was written in.
type Kind string

const (
	KindInterval Kind = "interval"
	KindDaily    Kind = "daily"
	KindCron     Kind = "cron"
)

// MinInterval is the shortest accepted "every" period.
const MinInterval = time.Minute

// Expression is a parsed schedule. Use Parse to build one.
type Expression struct {
	Kind     Kind
	Source   string
	Interval time.Duration
	Hour     int
	Minute   int
	Cron     *CronSpec
}

// CronSpec holds the allowed values of each field of a five-field cron line.
type CronSpec struct {
	Minutes     []int
	Hours       []int
	DaysOfMonth []int
	Months      []int
	DaysOfWeek  []int

	anyDayOfMonth bool
	anyDayOfWeek  bool
}

var (
	everyPattern = regexp.MustCompile(`^every\s+(\d+)\s*(s|m|h|d|seconds?|minutes?|hours?|days?)$`)
	dailyPattern = regexp.MustCompile(`^daily\s+at\s+(\d{1,2}):(\d{2})$`)
	cronPattern  = regexp.MustCompile(`^(\S+)\s+(\S+)\s+(\S+)\s+(\S+)\s+(\S+)$`)
)

// Parse accepts "every 30m", "every 2 hours", "daily at 02:00" or a
// five-field cron line such as "*/15 8-18 * * 1-5".
func Parse(expr string) (*Expression, error) {
	src := strings.TrimSpace(expr)
	norm := strings.ToLower(src)

	if m := everyPattern.FindStringSubmatch(norm); m != nil {
		n, _ := strconv.Atoi(m[1])
		var unit time.Duration
		switch m[2][0] {
		case 's':
			unit = time.Second
		case 'm':
			unit = time.Minute
		case 'h':
			unit = time.Hour
		case 'd':
			unit = 24 * time.Hour
		}
		d := time.Duration(n) * unit
		if d < MinInterval {
			return nil, fmt.Errorf("schedule %q: interval must be at least %s", src, MinInterval)
		}
		return &Expression{Kind: KindInterval, Source: src, Interval: d}, nil
	}

	if m := dailyPattern.FindStringSubmatch(norm); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if hour > 23 || minute > 59 {
			return nil, fmt.Errorf("schedule %q: invalid time of day", src)
		}
		return &Expression{Kind: KindDaily, Source: src, Hour: hour, Minute: minute}, nil
	}

	if m := cronPattern.FindStringSubmatch(norm); m != nil {
		spec, err := parseCron(m[1:])
		if err != nil {
			return nil, fmt.Errorf("schedule %q: %w", src, err)
		}
		return &Expression{Kind: KindCron, Source: src, Cron: spec}, nil
	}

	return nil, fmt.Errorf("unrecognized schedule expression: %q", src)
}

// Next returns the first run time strictly after from.
func (e *Expression) Next(from time.Time) time.Time {
	switch e.Kind {
	case KindInterval:
		return from.Add(e.Interval)
	case KindDaily:
		next := time.Date(from.Year(), from.Month(), from.Day(), e.Hour, e.Minute, 0, 0, from.Location())
		if !next.After(from) {
			next = next.AddDate(0, 0, 1)
		}
		return next
	case KindCron:
		return e.Cron.next(from)
	}
	return from.Add(time.Hour)
}

func (e *Expression) String() string {
	return e.Source
}

var cronFields = []struct {
	name     string
	min, max int
}{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6},
}

func parseCron(fields []string) (*CronSpec, error) {
	values := make([][]int, len(cronFields))
	for i, f := range cronFields {
		v, err := parseCronField(fields[i], f.min, f.max)
		if err != nil {
			return nil, fmt.Errorf("%s field: %w", f.name, err)
		}
		values[i] = v
	}
	return &CronSpec{
		Minutes:     values[0],
		Hours:       values[1],
		DaysOfMonth: values[2],
		Months:      values[3],
		DaysOfWeek:  values[4],

		anyDayOfMonth: fields[2] == "*",
		anyDayOfWeek:  fields[4] == "*",
	}, nil
}

// parseCronField expands "*", "*/n", "a-b", "a-b/n", single values and
// comma-separated lists of those into a sorted set.
func parseCronField(field string, min, max int) ([]int, error) {
	set := map[int]struct{}{}
	for _, part := range strings.Split(field, ",") {
		lo, hi, step := min, max, 1
		rng := part
		if i := strings.IndexByte(part, '/'); i >= 0 {
			s, err := strconv.Atoi(part[i+1:])
			if err != nil || s <= 0 {
				return nil, fmt.Errorf("invalid step in %q", part)
			}
			step, rng = s, part[:i]
		}
		switch {
		case rng == "*":
		case strings.Contains(rng, "-"):
			bounds := strings.SplitN(rng, "-", 2)
			a, errA := strconv.Atoi(bounds[0])
			b, errB := strconv.Atoi(bounds[1])
			if errA != nil || errB != nil || a > b {
				return nil, fmt.Errorf("invalid range %q", rng)
			}
			lo, hi = a, b
		default:
			v, err := strconv.Atoi(rng)
			if err != nil {
				return nil, fmt.Errorf("invalid value %q", rng)
			}
			lo, hi = v, v
		}
		if lo < min || hi > max {
			return nil, fmt.Errorf("%q out of range [%d-%d]", part, min, max)
		}
		for v := lo; v <= hi; v += step {
			set[v] = struct{}{}
		}
	}
	out := make([]int, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Ints(out)
	return out, nil
}

func (c *CronSpec) next(from time.Time) time.Time {
	t := from.Truncate(time.Minute).Add(time.Minute)
	limit := from.AddDate(1, 0, 0)
	for t.Before(limit) {
		switch {
		case !has(c.Months, int(t.Month())):
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
		case !c.dayMatches(t):
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
		case !has(c.Hours, t.Hour()):
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, t.Location())
		case !has(c.Minutes, t.Minute()):
			t = t.Add(time.Minute)
		default:
			return t
		}
	}
	return from.Add(time.Hour)
}

// When both day fields are restricted either may match, as in classic cron.
func (c *CronSpec) dayMatches(t time.Time) bool {
	dom := has(c.DaysOfMonth, t.Day())
	dow := has(c.DaysOfWeek, int(t.Weekday()))
	switch {
	case c.anyDayOfMonth:
		return dow
	case c.anyDayOfWeek:
		return dom
	}
	return dom || dow
}

func has(set []int, v int) bool {
	i := sort.SearchInts(set, v)
	return i < len(set) && set[i] == v
}

// FormatDuration renders d in its largest whole unit.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}
