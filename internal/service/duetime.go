package service

import (
	"cmp"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/LeventeLantos/message-scheduler/internal/model"
)

// DueLayout is how scheduled times are written back when the caller omits one.
const DueLayout = "2006-01-02T15:04:05"

var (
	minutePrecision = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}$`)
	naiveLayouts    = []string{DueLayout, "2006-01-02 15:04:05"}
)

// ParseDue turns a stored scheduled time into an instant. Minute-precision
// values from a time picker get ":00" appended; values without an offset are
// read in loc.
func ParseDue(raw string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, errors.New("scheduled time is empty")
	}
	if loc == nil {
		loc = time.Local
	}
	if minutePrecision.MatchString(s) {
		s += ":00"
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized scheduled time %q", raw)
}

func FormatDue(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DueLayout)
}

// SortByDue orders entries by their parsed scheduled time, then id. Stored
// times mix separators and offsets, so text order is not chronological.
// Entries whose time does not parse go last.
func SortByDue(entries []model.Entry, loc *time.Location) {
	type dueKey struct {
		at time.Time
		ok bool
	}
	keys := make(map[int64]dueKey, len(entries))
	for _, e := range entries {
		at, err := ParseDue(e.ScheduledTime, loc)
		keys[e.ID] = dueKey{at: at, ok: err == nil}
	}
	slices.SortFunc(entries, func(a, b model.Entry) int {
		ka, kb := keys[a.ID], keys[b.ID]
		switch {
		case ka.ok && !kb.ok:
			return -1
		case !ka.ok && kb.ok:
			return 1
		case ka.ok && kb.ok:
			if c := ka.at.Compare(kb.at); c != 0 {
				return c
			}
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
