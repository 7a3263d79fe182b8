package service

import (
	"slotkeeper/pkg/config"
	"slotkeeper/pkg/model"
	"time"
)

type thresholds struct {
	count        int
	uniqueOwners int
	window       time.Duration
	grace        time.Duration
}

// thresholdsOf reads the act-fast settings of p, falling back to configuration for the window and grace.
func thresholdsOf(p *model.CapacityHoldPolicy, cfg *config.Config) thresholds {
	window := p.AlertWindowMin
	if window <= 0 {
		window = cfg.AlertWindowMin
	}
	grace := p.AlertGraceMin
	if grace <= 0 {
		grace = cfg.AlertGraceMin
	}
	return thresholds{
		count:        p.ActFastThresholdCount,
		uniqueOwners: p.ActFastThresholdUniqueOwners,
		window:       time.Duration(window) * time.Minute,
		grace:        time.Duration(grace) * time.Minute,
	}
}

// PressureScore weighs distinct owners above raw hold volume. Advisory holds do not count.
func PressureScore(p *model.HoldPressure) float64 {
	return float64(p.BlockingCount) + 0.5*float64(p.NonBlockingCount) + 1.5*float64(p.UniqueOwnerCount)
}

// Classify reports whether the pressure crosses either threshold and how far. A zero
// threshold is disabled.
func Classify(p *model.HoldPressure, countThreshold, ownerThreshold int) (model.AlertSeverity, bool) {
	ratio := 0.0
	crossing := false
	if countThreshold > 0 {
		total := p.BlockingCount + p.NonBlockingCount
		ratio = max(ratio, float64(total)/float64(countThreshold))
		crossing = crossing || total >= countThreshold
	}
	if ownerThreshold > 0 {
		ratio = max(ratio, float64(p.UniqueOwnerCount)/float64(ownerThreshold))
		crossing = crossing || p.UniqueOwnerCount >= ownerThreshold
	}
	if !crossing {
		return "", false
	}

	switch {
	case ratio >= 2:
		return model.SeverityCritical, true
	case ratio >= 1.5:
		return model.SeverityHigh, true
	default:
		return model.SeverityMedium, true
	}
}
