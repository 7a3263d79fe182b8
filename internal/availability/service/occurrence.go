package service

import (
	"slotkeeper/pkg/model"
	"time"

	"github.com/teambition/rrule-go"
)

const (
	minutesPerDay = 24 * 60
	dateLayout    = "2006-01-02"
	// longest single occurrence, one local day plus a DST shift
	maxOccurrenceSpan = 25 * time.Hour
)

var weekdays = []rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

var frequencies = map[model.Frequency]rrule.Frequency{
	model.FrequencyDaily:   rrule.DAILY,
	model.FrequencyWeekly:  rrule.WEEKLY,
	model.FrequencyMonthly: rrule.MONTHLY,
	model.FrequencyYearly:  rrule.YEARLY,
}

// occurrence is one concrete interval produced by a rule pattern.
type occurrence struct {
	model.Window
	// local calendar date the occurrence starts on
	Date string
}

// expandRule returns the rule's occurrences that intersect w, in start order.
func expandRule(rule *model.AvailabilityRule, loc *time.Location, w model.Window) ([]occurrence, error) {
	switch rule.Mode {
	case model.ModeTimestampRange:
		if rule.StartAt == nil || rule.EndAt == nil {
			return nil, nil
		}
		occ := model.Window{Start: *rule.StartAt, End: *rule.EndAt}
		if !occ.Overlaps(w) {
			return nil, nil
		}
		return splitByDay(occ, loc, w), nil
	case model.ModeDateRange:
		return expandDateRange(rule, loc, w)
	case model.ModeRecurring:
		return expandRecurring(rule, loc, w)
	}
	return nil, nil
}

func expandDateRange(rule *model.AvailabilityRule, loc *time.Location, w model.Window) ([]occurrence, error) {
	first, err := time.ParseInLocation(dateLayout, rule.StartDate, loc)
	if err != nil {
		return nil, err
	}
	last, err := time.ParseInLocation(dateLayout, rule.EndDate, loc)
	if err != nil {
		return nil, err
	}

	// a wrapping occurrence that starts the day before the window can still reach into it
	from := midnight(w.Start.Add(-maxOccurrenceSpan), loc)
	if from.Before(first) {
		from = first
	}
	to := midnight(w.End, loc)
	if to.After(last) {
		to = last
	}

	var out []occurrence
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		occ := dailySpan(rule, day, loc)
		if occ.Overlaps(w) {
			out = append(out, occurrence{Window: occ, Date: day.Format(dateLayout)})
		}
	}
	return out, nil
}

func expandRecurring(rule *model.AvailabilityRule, loc *time.Location, w model.Window) ([]occurrence, error) {
	freq, ok := frequencies[rule.Frequency]
	if !ok {
		return nil, nil
	}
	interval := rule.Interval
	if interval < 1 {
		interval = 1
	}

	searchFrom := w.Start.Add(-maxOccurrenceSpan)

	// the pattern only depends on the anchor for stepped or yearly rules
	var anchor time.Time
	switch {
	case rule.RecurrenceStart != nil && (interval > 1 || freq == rrule.YEARLY):
		anchor = midnight(*rule.RecurrenceStart, loc)
	default:
		anchor = midnight(searchFrom, loc)
		if rule.RecurrenceStart != nil {
			if start := midnight(*rule.RecurrenceStart, loc); start.After(anchor) {
				anchor = start
			}
		}
	}

	startMin, ok := clockMinutes(rule.StartTime)
	if !ok {
		startMin = 0
	}
	dtstart := time.Date(anchor.Year(), anchor.Month(), anchor.Day(), startMin/60, startMin%60, 0, 0, loc)

	opt := rrule.ROption{
		Freq:     freq,
		Interval: interval,
		Dtstart:  dtstart,
	}
	for _, d := range rule.ByWeekday {
		if d >= 0 && d < len(weekdays) {
			opt.Byweekday = append(opt.Byweekday, weekdays[d])
		}
	}
	opt.Bymonthday = append(opt.Bymonthday, rule.ByMonthDay...)
	if freq == rrule.YEARLY {
		opt.Bymonth = []int{int(anchor.Month())}
		if len(opt.Bymonthday) == 0 && len(opt.Byweekday) == 0 {
			opt.Bymonthday = []int{anchor.Day()}
		}
	}
	if rule.RecurrenceUntil != nil {
		opt.Until = *rule.RecurrenceUntil
	}

	rr, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, err
	}

	var out []occurrence
	for _, start := range rr.Between(searchFrom, w.End, true) {
		if rule.RecurrenceUntil != nil && !start.Before(*rule.RecurrenceUntil) {
			continue
		}
		day := midnight(start, loc)
		occ := dailySpan(rule, day, loc)
		if occ.Overlaps(w) {
			out = append(out, occurrence{Window: occ, Date: day.Format(dateLayout)})
		}
	}
	return out, nil
}

// splitByDay cuts occ at local midnights so each piece carries the date it falls on,
// keeping only the pieces that intersect w.
func splitByDay(occ model.Window, loc *time.Location, w model.Window) []occurrence {
	var out []occurrence
	for start := occ.Start; start.Before(occ.End); {
		end := nextMidnight(start, loc)
		if end.After(occ.End) {
			end = occ.End
		}
		piece := model.Window{Start: start, End: end}
		if piece.Overlaps(w) {
			out = append(out, occurrence{Window: piece, Date: localDate(start, loc)})
		}
		start = end
	}
	return out
}

// dailySpan is the rule's hours on the local day starting at day. An end at or
// before the start runs into the next day; no hours means the whole day.
func dailySpan(rule *model.AvailabilityRule, day time.Time, loc *time.Location) model.Window {
	startMin, okStart := clockMinutes(rule.StartTime)
	endMin, okEnd := clockMinutes(rule.EndTime)
	if !okStart || !okEnd {
		return model.Window{Start: day, End: nextMidnight(day, loc)}
	}
	y, m, d := day.Date()
	start := time.Date(y, m, d, startMin/60, startMin%60, 0, 0, loc)
	endDay := d
	if endMin <= startMin {
		endDay++
	}
	end := time.Date(y, m, endDay, endMin/60, endMin%60, 0, 0, loc)
	return model.Window{Start: start, End: end}
}

func midnight(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func nextMidnight(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}

func localDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dateLayout)
}
