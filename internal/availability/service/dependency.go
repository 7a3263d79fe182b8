package service

import (
	"context"
	"errors"
	"fmt"
	availabilityerrors "slotkeeper/internal/availability/errors"
	"slotkeeper/internal/availability/repository"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"time"

	"golang.org/x/sync/errgroup"
)

const maxParallelTargets = 8

// DependencyOutcome is the result of one dependency rule together with the rule itself,
// which carries the failure payload the evaluator applies.
type DependencyOutcome struct {
	Rule   *model.DependencyRule
	Result model.DependencyResult
}

// TargetFunc reports whether calendarID is available over w, following at most depth
// further dependency hops.
type TargetFunc func(ctx context.Context, tenantID, calendarID string, w model.Window, depth int) (bool, error)

type DependencyChecker struct {
	deps      repository.DependencyRepository
	calendars repository.CalendarRepository
	log       *logger.Logger
}

func NewDependencyChecker(deps repository.DependencyRepository, calendars repository.CalendarRepository, log *logger.Logger) *DependencyChecker {
	return &DependencyChecker{deps: deps, calendars: calendars, log: log}
}

// Check evaluates every active dependency rule of the calendar over w.
func (c *DependencyChecker) Check(ctx context.Context, tenantID, calendarID string, w model.Window, depth int, available TargetFunc) ([]DependencyOutcome, error) {
	rules, err := c.deps.ListActiveByCalendar(ctx, tenantID, calendarID)
	if err != nil {
		return nil, err
	}

	outcomes := make([]DependencyOutcome, 0, len(rules))
	for _, rule := range rules {
		offset := w.Expand(minutes(rule.TimeOffsetBeforeMin), minutes(rule.TimeOffsetAfterMin))

		targets, err := c.checkTargets(ctx, tenantID, rule, offset, depth, available)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, DependencyOutcome{Rule: rule, Result: Aggregate(rule, targets)})
	}
	return outcomes, nil
}

func (c *DependencyChecker) checkTargets(ctx context.Context, tenantID string, rule *model.DependencyRule, w model.Window, depth int, available TargetFunc) ([]model.TargetResult, error) {
	results := make([]model.TargetResult, len(rule.Targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelTargets)
	for i, target := range rule.Targets {
		g.Go(func() error {
			results[i] = model.TargetResult{Target: target}

			calendarID, err := c.resolveTarget(gctx, tenantID, target)
			if err != nil {
				results[i].Error = err.Error()
				return nil
			}
			ok, err := available(gctx, tenantID, calendarID, w, depth-1)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				c.log.Warn("Dependency target evaluation failed",
					"rule_id", rule.ID,
					"target", target.Key(),
					"error", err,
				)
				results[i].Error = err.Error()
				return nil
			}
			results[i].Available = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// resolveTarget maps a dependency target onto the calendar that answers for it.
func (c *DependencyChecker) resolveTarget(ctx context.Context, tenantID string, target model.DependencyTarget) (string, error) {
	switch target.Type {
	case model.DependencyOnCalendar:
		return target.ID, nil
	case model.DependencyOnCustomSubject:
		binding, err := c.calendars.FindPrimaryBinding(ctx, tenantID, target.Key())
		if err != nil {
			if errors.Is(err, availabilityerrors.ErrNotFound) {
				return "", fmt.Errorf("custom subject %s has no primary calendar", target.ID)
			}
			return "", err
		}
		return binding.CalendarID, nil
	default:
		return "", fmt.Errorf("unknown dependency target type %q", target.Type)
	}
}

// Aggregate folds per-target results according to the rule's evaluation mode.
func Aggregate(rule *model.DependencyRule, targets []model.TargetResult) model.DependencyResult {
	res := model.DependencyResult{
		RuleID:          rule.ID,
		EvaluationMode:  rule.EvaluationMode,
		EnforcementMode: rule.EnforcementMode,
		FailureAction:   rule.FailureAction,
		Targets:         targets,
	}

	var weightTotal, weightOK int
	for _, t := range targets {
		weight := t.Target.EffectiveWeight()
		weightTotal += weight
		if t.Available {
			res.SatisfiedCount++
			weightOK += weight
		}
	}
	if weightTotal > 0 {
		res.SatisfiedPercent = float64(weightOK) * 100 / float64(weightTotal)
	}

	switch rule.EvaluationMode {
	case model.EvaluateAll:
		res.Satisfied = len(targets) > 0 && res.SatisfiedCount == len(targets)
	case model.EvaluateAny:
		res.Satisfied = res.SatisfiedCount > 0
	case model.EvaluateThreshold:
		if rule.MinSatisfiedCount != nil && res.SatisfiedCount >= *rule.MinSatisfiedCount {
			res.Satisfied = true
		}
		if rule.MinSatisfiedPercent != nil && res.SatisfiedPercent >= *rule.MinSatisfiedPercent {
			res.Satisfied = true
		}
	}
	return res
}

// ValidateAcyclic rejects a candidate rule whose edges would close a cycle in the
// tenant's active dependency graph.
func (c *DependencyChecker) ValidateAcyclic(ctx context.Context, candidate *model.DependencyRule) error {
	existing, err := c.deps.ListActive(ctx, candidate.TenantID)
	if err != nil {
		return err
	}

	resolved := make(map[string]string)
	resolve := func(t model.DependencyTarget) (string, bool, error) {
		if id, ok := resolved[t.Key()]; ok {
			return id, id != "", nil
		}
		id, err := c.resolveTarget(ctx, candidate.TenantID, t)
		if err != nil {
			if errors.Is(err, availabilityerrors.ErrNotFound) || t.Type == model.DependencyOnCustomSubject {
				resolved[t.Key()] = ""
				return "", false, nil
			}
			return "", false, err
		}
		resolved[t.Key()] = id
		return id, true, nil
	}

	graph := make(map[string][]string)
	for _, rule := range append(existing, candidate) {
		for _, t := range rule.Targets {
			id, ok, err := resolve(t)
			if err != nil {
				return err
			}
			if ok {
				graph[rule.DependentCalendarID] = append(graph[rule.DependentCalendarID], id)
			}
		}
	}

	if hasPath(graph, candidate.DependentCalendarID) {
		return availabilityerrors.ErrDependencyCycle
	}
	return nil
}

// hasPath reports whether start can reach itself through graph.
func hasPath(graph map[string][]string, start string) bool {
	visited := make(map[string]bool)
	stack := append([]string(nil), graph[start]...)
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if node == start {
			return true
		}
		if visited[node] {
			continue
		}
		visited[node] = true
		stack = append(stack, graph[node]...)
	}
	return false
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
