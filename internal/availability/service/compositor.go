package service

import (
	"context"
	"slotkeeper/internal/availability/repository"
	"slotkeeper/pkg/model"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultOverlayPriority applies to rules that are not placed on an overlay.
const DefaultOverlayPriority = 100

const calendarSource = "calendar"

// EffectiveRule is one rule of a composed rule set together with the layer it came from.
type EffectiveRule struct {
	Rule            *model.AvailabilityRule `json:"rule"`
	OverlayID       string                  `json:"overlay_id,omitempty"`
	OverlayPriority int                     `json:"overlay_priority"`
	Source          string                  `json:"source"`
	// occurrences outside [ClipFrom, ClipTo) are ignored
	ClipFrom *time.Time `json:"clip_from,omitempty"`
	ClipTo   *time.Time `json:"clip_to,omitempty"`

	excludedDates map[string]struct{}
}

// ExcludedOn reports whether the rule is suppressed on the local calendar date.
func (r *EffectiveRule) ExcludedOn(date string) bool {
	_, ok := r.excludedDates[date]
	return ok
}

func (r *EffectiveRule) clip(w model.Window) (model.Window, bool) {
	if r.ClipFrom != nil && w.Start.Before(*r.ClipFrom) {
		w.Start = *r.ClipFrom
	}
	if r.ClipTo != nil && w.End.After(*r.ClipTo) {
		w.End = *r.ClipTo
	}
	return w, w.Valid()
}

// RuleSet is the ordered list of rules the evaluator walks for one calendar.
type RuleSet struct {
	Calendar *model.Calendar
	Rules    []*EffectiveRule
}

func (s *RuleSet) IDs() []string {
	ids := make([]string, len(s.Rules))
	for i, r := range s.Rules {
		ids[i] = r.Rule.ID
	}
	return ids
}

// BoundTemplate pairs a template binding with the template it points at.
type BoundTemplate struct {
	Binding  *model.TemplateBinding
	Template *model.RuleTemplate
}

// CompositionInput is everything stored for one calendar that shapes its rule set.
type CompositionInput struct {
	Calendar   *model.Calendar
	Overlays   []*model.Overlay
	Rules      []*model.AvailabilityRule
	Exclusions []*model.RuleExclusion
	Templates  []BoundTemplate
}

type Compositor struct {
	calendars repository.CalendarRepository
	rules     repository.RuleRepository
}

func NewCompositor(calendars repository.CalendarRepository, rules repository.RuleRepository) *Compositor {
	return &Compositor{calendars: calendars, rules: rules}
}

// Compose loads the calendar's layers and merges them into one ordered rule set.
func (c *Compositor) Compose(ctx context.Context, tenantID, calendarID string) (*RuleSet, error) {
	cal, err := c.calendars.FindByID(ctx, tenantID, calendarID)
	if err != nil {
		return nil, err
	}
	in, err := c.load(ctx, cal)
	if err != nil {
		return nil, err
	}
	return ComposeRules(in), nil
}

func (c *Compositor) load(ctx context.Context, cal *model.Calendar) (CompositionInput, error) {
	in := CompositionInput{Calendar: cal}
	var bindings []*model.TemplateBinding

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		in.Overlays, err = c.rules.ListOverlays(gctx, cal.TenantID, cal.ID)
		return err
	})
	g.Go(func() (err error) {
		in.Rules, err = c.rules.ListActiveRules(gctx, cal.TenantID, cal.ID)
		return err
	})
	g.Go(func() (err error) {
		in.Exclusions, err = c.rules.ListExclusions(gctx, cal.TenantID, cal.ID)
		return err
	})
	g.Go(func() (err error) {
		bindings, err = c.rules.ListActiveTemplateBindings(gctx, cal.TenantID, cal.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return in, err
	}

	for _, b := range bindings {
		tpl, err := c.rules.FindTemplate(ctx, cal.TenantID, b.TemplateID)
		if err != nil {
			return in, err
		}
		in.Templates = append(in.Templates, BoundTemplate{Binding: b, Template: tpl})
	}
	return in, nil
}

// ComposeRules is the pure merge step. Identical inputs always give the identical order.
func ComposeRules(in CompositionInput) *RuleSet {
	overlays := make(map[string]*model.Overlay, len(in.Overlays))
	for _, o := range in.Overlays {
		overlays[o.ID] = o
	}

	exclusions := make(map[string]map[string]struct{})
	for _, ex := range in.Exclusions {
		if exclusions[ex.RuleID] == nil {
			exclusions[ex.RuleID] = make(map[string]struct{})
		}
		exclusions[ex.RuleID][ex.Date] = struct{}{}
	}

	var local []*EffectiveRule
	for _, rule := range in.Rules {
		if !rule.IsActive {
			continue
		}
		er := &EffectiveRule{
			Rule:            rule,
			OverlayPriority: DefaultOverlayPriority,
			Source:          calendarSource,
			excludedDates:   copyDates(exclusions[rule.ID]),
		}
		if rule.OverlayID != "" {
			if o, ok := overlays[rule.OverlayID]; ok {
				if !o.IsActive {
					continue
				}
				er.OverlayID = o.ID
				er.OverlayPriority = o.Priority
				er.ClipFrom = o.EffectiveFrom
				er.ClipTo = o.EffectiveTo
			}
		}
		local = append(local, er)
	}

	templates := append([]BoundTemplate(nil), in.Templates...)
	sort.SliceStable(templates, func(i, j int) bool {
		bi, bj := templates[i].Binding, templates[j].Binding
		if bi.Priority != bj.Priority {
			return bi.Priority < bj.Priority
		}
		return bi.ID < bj.ID
	})

	var materialized []*EffectiveRule
	for _, bt := range templates {
		if !bt.Binding.IsActive || bt.Template == nil {
			continue
		}
		rules := materialize(in.Calendar, bt, exclusions)

		switch bt.Binding.MergeMode {
		case model.MergeReplace:
			local = nil
		case model.MergeOverrideConflicting:
			local = dropConflicting(local, rules)
		}
		materialized = append(materialized, rules...)
	}

	set := &RuleSet{Calendar: in.Calendar, Rules: append(local, materialized...)}
	sortRules(set.Rules, in.Calendar.RuleEvaluationOrder)
	return set
}

func materialize(cal *model.Calendar, bt BoundTemplate, exclusions map[string]map[string]struct{}) []*EffectiveRule {
	var out []*EffectiveRule
	for i := range bt.Template.Rules {
		src := bt.Template.Rules[i]
		if !src.IsActive {
			continue
		}
		rule := src
		rule.ID = bt.Binding.ID + ":" + src.ID
		rule.TenantID = cal.TenantID
		rule.CalendarID = cal.ID
		rule.TemplateID = bt.Template.ID
		rule.OverlayID = ""

		dates := copyDates(exclusions[rule.ID])
		for d := range exclusions[src.ID] {
			dates[d] = struct{}{}
		}
		for _, d := range bt.Binding.ExclusionDates {
			dates[d] = struct{}{}
		}

		out = append(out, &EffectiveRule{
			Rule:            &rule,
			OverlayPriority: bt.Binding.Priority,
			Source:          "template:" + bt.Template.ID,
			excludedDates:   dates,
		})
	}
	return out
}

func dropConflicting(local, incoming []*EffectiveRule) []*EffectiveRule {
	kept := local[:0:0]
	for _, l := range local {
		conflict := false
		for _, in := range incoming {
			if patternsOverlap(l.Rule, in.Rule) {
				conflict = true
				break
			}
		}
		if !conflict {
			kept = append(kept, l)
		}
	}
	return kept
}

func copyDates(src map[string]struct{}) map[string]struct{} {
	dst := make(map[string]struct{}, len(src))
	for d := range src {
		dst[d] = struct{}{}
	}
	return dst
}

func sortRules(rules []*EffectiveRule, order model.RuleEvaluationOrder) {
	sort.SliceStable(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]
		sa, sb := model.SpecificityRank(a.Rule.Mode), model.SpecificityRank(b.Rule.Mode)

		if order == model.PriorityThenSpecificity {
			if a.OverlayPriority != b.OverlayPriority {
				return a.OverlayPriority < b.OverlayPriority
			}
			if a.Rule.Priority != b.Rule.Priority {
				return a.Rule.Priority < b.Rule.Priority
			}
			if sa != sb {
				return sa < sb
			}
			return a.Rule.ID < b.Rule.ID
		}

		if sa != sb {
			return sa < sb
		}
		if a.OverlayPriority != b.OverlayPriority {
			return a.OverlayPriority < b.OverlayPriority
		}
		if a.Rule.Priority != b.Rule.Priority {
			return a.Rule.Priority < b.Rule.Priority
		}
		return a.Rule.ID < b.Rule.ID
	})
}

// patternsOverlap reports whether two rules of the same mode can claim the same time.
func patternsOverlap(a, b *model.AvailabilityRule) bool {
	if a.Mode != b.Mode {
		return false
	}
	switch a.Mode {
	case model.ModeTimestampRange:
		if a.StartAt == nil || a.EndAt == nil || b.StartAt == nil || b.EndAt == nil {
			return false
		}
		return a.StartAt.Before(*b.EndAt) && b.StartAt.Before(*a.EndAt)
	case model.ModeDateRange:
		if a.StartDate > b.EndDate || b.StartDate > a.EndDate {
			return false
		}
		return hoursOverlap(a, b)
	case model.ModeRecurring:
		if a.Frequency != b.Frequency {
			return false
		}
		if !intsIntersect(a.ByWeekday, b.ByWeekday) || !intsIntersect(a.ByMonthDay, b.ByMonthDay) {
			return false
		}
		return hoursOverlap(a, b)
	}
	return false
}

// intsIntersect treats an empty set as matching everything.
func intsIntersect(a, b []int) bool {
	if len(a) == 0 || len(b) == 0 {
		return true
	}
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

type minuteSpan struct{ start, end int }

func daySpans(r *model.AvailabilityRule) []minuteSpan {
	start, okStart := clockMinutes(r.StartTime)
	end, okEnd := clockMinutes(r.EndTime)
	if !okStart || !okEnd {
		return []minuteSpan{{0, minutesPerDay}}
	}
	if end > start {
		return []minuteSpan{{start, end}}
	}
	return []minuteSpan{{start, minutesPerDay}, {0, end}}
}

func hoursOverlap(a, b *model.AvailabilityRule) bool {
	for _, x := range daySpans(a) {
		for _, y := range daySpans(b) {
			if x.start < y.end && y.start < x.end {
				return true
			}
		}
	}
	return false
}

func clockMinutes(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}
