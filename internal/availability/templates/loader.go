// Package templates loads rule templates from YAML files and seeds them into the rule store.
package templates

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	availabilityerrors "slotkeeper/internal/availability/errors"
	"slotkeeper/internal/availability/repository"
	"slotkeeper/internal/availability/service"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"time"

	"gopkg.in/yaml.v3"
)

type file struct {
	Templates []templateDoc `yaml:"templates"`
}

type templateDoc struct {
	ID       string    `yaml:"id"`
	TenantID string    `yaml:"tenant_id"`
	Name     string    `yaml:"name"`
	Rules    []ruleDoc `yaml:"rules"`
}

type pricingDoc struct {
	Kind  string `yaml:"kind"`
	Value int64  `yaml:"value"`
}

type ruleDoc struct {
	ID              string      `yaml:"id"`
	Name            string      `yaml:"name"`
	Mode            string      `yaml:"mode"`
	Frequency       string      `yaml:"frequency"`
	Interval        int         `yaml:"interval"`
	ByWeekday       []int       `yaml:"by_weekday"`
	ByMonthDay      []int       `yaml:"by_month_day"`
	RecurrenceStart *time.Time  `yaml:"recurrence_start"`
	RecurrenceUntil *time.Time  `yaml:"recurrence_until"`
	StartTime       string      `yaml:"start_time"`
	EndTime         string      `yaml:"end_time"`
	StartDate       string      `yaml:"start_date"`
	EndDate         string      `yaml:"end_date"`
	StartAt         *time.Time  `yaml:"start_at"`
	EndAt           *time.Time  `yaml:"end_at"`
	Action          string      `yaml:"action"`
	CapacityDelta   *int        `yaml:"capacity_delta"`
	Pricing         *pricingDoc `yaml:"pricing_adjustment"`
	Priority        int         `yaml:"priority"`
}

func (d ruleDoc) toModel() model.AvailabilityRule {
	rule := model.AvailabilityRule{
		ID:              d.ID,
		Name:            d.Name,
		Mode:            model.RuleMode(d.Mode),
		Frequency:       model.Frequency(d.Frequency),
		Interval:        d.Interval,
		ByWeekday:       d.ByWeekday,
		ByMonthDay:      d.ByMonthDay,
		RecurrenceStart: d.RecurrenceStart,
		RecurrenceUntil: d.RecurrenceUntil,
		StartTime:       d.StartTime,
		EndTime:         d.EndTime,
		StartDate:       d.StartDate,
		EndDate:         d.EndDate,
		StartAt:         d.StartAt,
		EndAt:           d.EndAt,
		Action:          model.RuleAction(d.Action),
		CapacityDelta:   d.CapacityDelta,
		Priority:        d.Priority,
	}
	if d.Pricing != nil {
		rule.PricingAdjustment = &model.PricingAdjustment{
			Kind:  model.PricingKind(d.Pricing.Kind),
			Value: d.Pricing.Value,
		}
	}
	return rule
}

// Parse decodes a templates document. Templates without an id are rejected so that
// seeding the same file twice stays idempotent.
func Parse(r io.Reader) ([]*model.RuleTemplate, error) {
	var f file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decode templates: %w", err)
	}

	out := make([]*model.RuleTemplate, 0, len(f.Templates))
	seen := make(map[string]struct{}, len(f.Templates))
	for i, doc := range f.Templates {
		if doc.ID == "" {
			return nil, fmt.Errorf("templates[%d]: id is required", i)
		}
		if _, dup := seen[doc.ID]; dup {
			return nil, fmt.Errorf("templates[%d]: duplicate id %q", i, doc.ID)
		}
		seen[doc.ID] = struct{}{}

		tpl := &model.RuleTemplate{
			ID:       doc.ID,
			TenantID: doc.TenantID,
			Name:     doc.Name,
			Rules:    make([]model.AvailabilityRule, len(doc.Rules)),
		}
		for j, r := range doc.Rules {
			tpl.Rules[j] = r.toModel()
		}
		out = append(out, tpl)
	}
	return out, nil
}

func LoadFile(path string) ([]*model.RuleTemplate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open templates file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Seed creates every template that does not exist yet and returns how many were created.
func Seed(ctx context.Context, store service.RuleStore, rules repository.RuleRepository, tpls []*model.RuleTemplate, log *logger.Logger) (int, error) {
	created := 0
	for _, tpl := range tpls {
		_, err := rules.FindTemplate(ctx, tpl.TenantID, tpl.ID)
		if err == nil {
			log.Info("Rule template already present, skipping", "id", tpl.ID, "tenant_id", tpl.TenantID)
			continue
		}
		if !errors.Is(err, availabilityerrors.ErrTemplateNotFound) {
			return created, fmt.Errorf("failed to look up template %s: %w", tpl.ID, err)
		}

		if err := store.CreateTemplate(ctx, tpl); err != nil {
			return created, fmt.Errorf("failed to create template %s: %w", tpl.ID, err)
		}
		created++
	}
	return created, nil
}
