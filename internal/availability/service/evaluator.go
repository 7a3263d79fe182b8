package service

import (
	"context"
	"fmt"
	availabilityerrors "slotkeeper/internal/availability/errors"
	"slotkeeper/pkg/model"
	"sort"
	"time"
)

var statePrecedence = map[model.AvailabilityState]int{
	model.StateUnavailable:      4,
	model.StateCapacityAdjusted: 3,
	model.StatePriceAdjusted:    2,
	model.StateAvailable:        1,
}

// Evaluator resolves a composed rule set over one window. It performs no I/O.
type Evaluator struct {
	maxWindow time.Duration
}

func NewEvaluator(maxWindow time.Duration) *Evaluator {
	return &Evaluator{maxWindow: maxWindow}
}

type tracer struct {
	entries []model.TraceEntry
}

func (t *tracer) add(e model.TraceEntry) {
	e.Seq = len(t.entries) + 1
	t.entries = append(t.entries, e)
}

type claim struct {
	model.Window
	order int
	rule  *EffectiveRule
}

type segment struct {
	model.SubInterval
	fromDefault bool
	overrideGap bool
}

// Check rejects windows that cannot be evaluated for the calendar.
func (e *Evaluator) Check(cal *model.Calendar, w model.Window, ectx model.EvaluationContext) error {
	if !w.Valid() {
		return availabilityerrors.ErrInvalidWindow
	}
	if e.maxWindow > 0 && w.Duration() > e.maxWindow {
		return availabilityerrors.ErrWindowTooLarge
	}
	if ectx.RequireSlotAlignment {
		slot := time.Duration(cal.SlotDurationMin) * time.Minute
		if slot <= 0 || w.Duration()%slot != 0 {
			return availabilityerrors.ErrSlotMisaligned
		}
	}
	return nil
}

// Evaluate walks set over w. When ctx ends mid-walk the returned verdict holds
// the partial trace and the error wraps ErrEvaluationAborted.
func (e *Evaluator) Evaluate(ctx context.Context, set *RuleSet, w model.Window, ectx model.EvaluationContext, deps []DependencyOutcome) (*model.Verdict, error) {
	cal := set.Calendar
	if err := e.Check(cal, w, ectx); err != nil {
		return nil, err
	}
	loc := cal.Location()
	tr := &tracer{}
	verdict := &model.Verdict{CalendarID: cal.ID, Window: w, StrictNonOverlap: cal.EnforceStrictNonOverlap}

	eff := w.Expand(
		time.Duration(cal.PreBufferMin)*time.Minute,
		time.Duration(cal.PostBufferMin)*time.Minute,
	)

	if cal.Status != "" && cal.Status != model.CalendarActive {
		tr.add(model.TraceEntry{Kind: model.TraceDefault, Effect: string(model.StateUnavailable), Detail: "calendar is " + cal.Status})
		segs := []segment{{SubInterval: model.SubInterval{Start: eff.Start, End: eff.End, State: model.StateUnavailable}}}
		finish(verdict, segs, nil, tr)
		return verdict, nil
	}
	if reason, violated := horizonViolation(cal, w, ectx); violated {
		tr.add(model.TraceEntry{Kind: model.TraceHorizon, Effect: string(model.StateUnavailable), Detail: reason})
		segs := []segment{{SubInterval: model.SubInterval{Start: eff.Start, End: eff.End, State: model.StateUnavailable}}}
		finish(verdict, segs, nil, tr)
		return verdict, nil
	}

	var claims []claim
	for i, er := range set.Rules {
		if err := ctx.Err(); err != nil {
			verdict.Trace = tr.entries
			return verdict, fmt.Errorf("%w: %v", availabilityerrors.ErrEvaluationAborted, err)
		}
		occs, err := expandRule(er.Rule, loc, eff)
		if err != nil {
			return nil, fmt.Errorf("failed to expand rule %s: %w", er.Rule.ID, err)
		}
		for _, occ := range occs {
			if er.ExcludedOn(occ.Date) {
				tr.add(model.TraceEntry{
					Kind:   model.TraceExclusion,
					RuleID: er.Rule.ID,
					Action: er.Rule.Action,
					Effect: "skipped",
					Detail: occ.Date,
				})
				continue
			}
			piece, ok := intersect(occ.Window, eff)
			if !ok {
				continue
			}
			if piece, ok = er.clip(piece); !ok {
				continue
			}
			claims = append(claims, claim{Window: piece, order: i, rule: er})
			tr.add(model.TraceEntry{
				Kind:   model.TraceRule,
				RuleID: er.Rule.ID,
				Action: er.Rule.Action,
				Effect: "matched",
				Start:  timePtr(piece.Start),
				End:    timePtr(piece.End),
				Detail: er.Source,
			})
		}
	}

	overrideRank := overrideDays(claims, loc)
	points := breakpoints(eff, claims, overrideRank, loc)

	capacity := make(map[string]int)
	pricing := make(map[string]model.PricingAdjustment)

	segs := make([]segment, 0, len(points))
	for k := 0; k+1 < len(points); k++ {
		seg := segment{SubInterval: model.SubInterval{Start: points[k], End: points[k+1]}}
		span := model.Window{Start: seg.Start, End: seg.End}
		oRank, overriding := overrideRank[localDate(seg.Start, loc)]

		var gates, adjust []claim
		for _, c := range claims {
			if !c.Overlaps(span) {
				continue
			}
			switch c.rule.Rule.Action {
			case model.ActionAvailable, model.ActionUnavailable:
				if overriding && model.SpecificityRank(c.rule.Rule.Mode) >= oRank {
					continue
				}
				gates = append(gates, c)
			case model.ActionOverrideHours:
				gates = append(gates, c)
			default:
				adjust = append(adjust, c)
			}
		}

		switch {
		case len(gates) == 0 && overriding:
			seg.State = model.StateUnavailable
			seg.overrideGap = true
		case len(gates) == 0:
			seg.State = defaultState(cal.DefaultMode)
			seg.fromDefault = true
		default:
			state, conflicted := resolveGates(gates, cal.ConflictResolutionMode)
			seg.State = state
			for _, g := range gates {
				seg.RuleIDs = appendUnique(seg.RuleIDs, g.rule.Rule.ID)
			}
			if conflicted {
				tr.add(model.TraceEntry{
					Kind:   model.TraceConflict,
					Effect: string(state),
					Start:  timePtr(seg.Start),
					End:    timePtr(seg.End),
					Detail: string(cal.ConflictResolutionMode),
				})
			}
		}

		if seg.State == model.StateAvailable {
			for _, c := range adjust {
				r := c.rule.Rule
				seg.RuleIDs = appendUnique(seg.RuleIDs, r.ID)
				if r.CapacityDelta != nil {
					seg.CapacityDelta += *r.CapacityDelta
					capacity[r.ID] = *r.CapacityDelta
				}
				if r.PricingAdjustment != nil {
					seg.Pricing = append(seg.Pricing, *r.PricingAdjustment)
					pricing[r.ID] = *r.PricingAdjustment
				}
			}
			seg.Pricing = sumPricing(seg.Pricing)
			seg.State = adjustedState(seg.SubInterval, len(adjust) > 0)
		}
		segs = append(segs, seg)
	}

	segs = mergeSegments(segs)
	for _, s := range segs {
		switch {
		case s.fromDefault:
			tr.add(model.TraceEntry{Kind: model.TraceDefault, Effect: string(s.State), Start: timePtr(s.Start), End: timePtr(s.End), Detail: string(cal.DefaultMode)})
		case s.overrideGap:
			tr.add(model.TraceEntry{Kind: model.TraceOverride, Effect: string(s.State), Start: timePtr(s.Start), End: timePtr(s.End), Detail: "outside override hours"})
		}
	}

	var adjustments []model.PricingAdjustment
	netCapacity := 0
	for _, d := range capacity {
		netCapacity += d
	}
	for _, p := range pricing {
		adjustments = append(adjustments, p)
	}

	for _, d := range deps {
		res := d.Result
		satisfied := res.Satisfied
		verdict.Dependencies = append(verdict.Dependencies, res)
		tr.add(model.TraceEntry{
			Kind:      model.TraceDependency,
			RuleID:    res.RuleID,
			Action:    res.FailureAction,
			Effect:    string(res.EnforcementMode),
			Satisfied: &satisfied,
			Detail:    fmt.Sprintf("%d of %d targets available", res.SatisfiedCount, len(res.Targets)),
		})
		if satisfied || res.EnforcementMode == model.EnforceAdvisory {
			continue
		}
		if res.EnforcementMode == model.EnforceHardBlock || res.FailureAction == model.ActionUnavailable {
			for i := range segs {
				segs[i].State = model.StateUnavailable
				segs[i].CapacityDelta = 0
				segs[i].Pricing = nil
			}
			netCapacity = 0
			adjustments = nil
			continue
		}
		switch res.FailureAction {
		case model.ActionCapacityAdjustment:
			if d.Rule.FailureCapacityDelta == nil {
				continue
			}
			delta := *d.Rule.FailureCapacityDelta
			netCapacity += delta
			for i := range segs {
				if segs[i].State != model.StateUnavailable {
					segs[i].CapacityDelta += delta
					segs[i].State = adjustedState(segs[i].SubInterval, true)
				}
			}
		case model.ActionSpecialPricing:
			if d.Rule.FailurePricing == nil {
				continue
			}
			adjustments = append(adjustments, *d.Rule.FailurePricing)
			for i := range segs {
				if segs[i].State != model.StateUnavailable {
					segs[i].Pricing = sumPricing(append(segs[i].Pricing, *d.Rule.FailurePricing))
					segs[i].State = adjustedState(segs[i].SubInterval, true)
				}
			}
		}
	}

	verdict.CapacityDelta = netCapacity
	finish(verdict, mergeSegments(segs), sumPricing(adjustments), tr)
	return verdict, nil
}

func finish(v *model.Verdict, segs []segment, pricing []model.PricingAdjustment, tr *tracer) {
	v.Intervals = make([]model.SubInterval, len(segs))
	v.Status = model.StateAvailable
	v.Available = true
	for i, s := range segs {
		v.Intervals[i] = s.SubInterval
		if statePrecedence[s.State] > statePrecedence[v.Status] {
			v.Status = s.State
		}
		if s.State == model.StateUnavailable {
			v.Available = false
		}
	}
	v.Pricing = pricing
	v.Trace = tr.entries
}

func horizonViolation(cal *model.Calendar, w model.Window, ectx model.EvaluationContext) (string, bool) {
	if ectx.Now == nil || ectx.IgnoreHorizon {
		return "", false
	}
	now := *ectx.Now
	earliest := now.Add(time.Duration(cal.MinAdvanceBookingHours) * time.Hour)
	if w.Start.Before(earliest) {
		return fmt.Sprintf("starts before the minimum advance of %dh", cal.MinAdvanceBookingHours), true
	}
	if cal.MaxAdvanceBookingDays > 0 {
		latest := now.AddDate(0, 0, cal.MaxAdvanceBookingDays)
		if w.End.After(latest) {
			return fmt.Sprintf("ends after the maximum advance of %dd", cal.MaxAdvanceBookingDays), true
		}
	}
	return "", false
}

// overrideDays maps each local date touched by an override_hours claim to the
// narrowest specificity rank among those claims.
func overrideDays(claims []claim, loc *time.Location) map[string]int {
	days := make(map[string]int)
	for _, c := range claims {
		if c.rule.Rule.Action != model.ActionOverrideHours {
			continue
		}
		rank := model.SpecificityRank(c.rule.Rule.Mode)
		for day := midnight(c.Start, loc); day.Before(c.End); day = nextMidnight(day, loc) {
			date := day.Format(dateLayout)
			if cur, ok := days[date]; !ok || rank < cur {
				days[date] = rank
			}
		}
	}
	return days
}

func breakpoints(eff model.Window, claims []claim, overrideRank map[string]int, loc *time.Location) []time.Time {
	set := map[int64]time.Time{
		eff.Start.UnixNano(): eff.Start,
		eff.End.UnixNano():   eff.End,
	}
	add := func(t time.Time) {
		if t.After(eff.Start) && t.Before(eff.End) {
			set[t.UnixNano()] = t
		}
	}
	for _, c := range claims {
		add(c.Start)
		add(c.End)
	}
	if len(overrideRank) > 0 {
		for day := midnight(eff.Start, loc); day.Before(eff.End); day = nextMidnight(day, loc) {
			if _, ok := overrideRank[day.Format(dateLayout)]; ok {
				add(day)
				add(nextMidnight(day, loc))
			}
		}
	}

	points := make([]time.Time, 0, len(set))
	for _, t := range set {
		points = append(points, t)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Before(points[j]) })
	return points
}

// resolveGates applies the calendar's conflict mode to the open/close claims of one
// segment. Gates are in evaluation order.
func resolveGates(gates []claim, mode model.ConflictResolutionMode) (model.AvailabilityState, bool) {
	var open, closed bool
	for _, g := range gates {
		if g.rule.Rule.Action == model.ActionUnavailable {
			closed = true
		} else {
			open = true
		}
	}
	conflicted := open && closed

	switch mode {
	case model.AvailableWins:
		if open {
			return model.StateAvailable, conflicted
		}
		return model.StateUnavailable, conflicted
	case model.PriorityWins:
		if gates[0].rule.Rule.Action == model.ActionUnavailable {
			return model.StateUnavailable, conflicted
		}
		return model.StateAvailable, conflicted
	default:
		if closed {
			return model.StateUnavailable, conflicted
		}
		return model.StateAvailable, conflicted
	}
}

func defaultState(mode model.DefaultMode) model.AvailabilityState {
	if mode == model.AvailableByDefault {
		return model.StateAvailable
	}
	return model.StateUnavailable
}

func adjustedState(s model.SubInterval, adjusted bool) model.AvailabilityState {
	if s.State == model.StateUnavailable || !adjusted {
		return s.State
	}
	if s.CapacityDelta != 0 {
		return model.StateCapacityAdjusted
	}
	if len(s.Pricing) > 0 {
		return model.StatePriceAdjusted
	}
	return s.State
}

func mergeSegments(segs []segment) []segment {
	if len(segs) == 0 {
		return segs
	}
	out := []segment{segs[0]}
	for _, s := range segs[1:] {
		last := &out[len(out)-1]
		if last.End.Equal(s.Start) && last.State == s.State && last.CapacityDelta == s.CapacityDelta &&
			last.fromDefault == s.fromDefault && last.overrideGap == s.overrideGap && samePricing(last.Pricing, s.Pricing) {
			last.End = s.End
			for _, id := range s.RuleIDs {
				last.RuleIDs = appendUnique(last.RuleIDs, id)
			}
			continue
		}
		out = append(out, s)
	}
	return out
}

// sumPricing folds adjustments into one entry per kind, ordered by kind.
func sumPricing(adjs []model.PricingAdjustment) []model.PricingAdjustment {
	if len(adjs) == 0 {
		return nil
	}
	totals := make(map[model.PricingKind]int64)
	for _, a := range adjs {
		totals[a.Kind] += a.Value
	}
	out := make([]model.PricingAdjustment, 0, len(totals))
	for kind, v := range totals {
		out = append(out, model.PricingAdjustment{Kind: kind, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

func samePricing(a, b []model.PricingAdjustment) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func intersect(a, b model.Window) (model.Window, bool) {
	w := a
	if b.Start.After(w.Start) {
		w.Start = b.Start
	}
	if b.End.Before(w.End) {
		w.End = b.End
	}
	return w, w.Valid()
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func timePtr(t time.Time) *time.Time {
	return &t
}
