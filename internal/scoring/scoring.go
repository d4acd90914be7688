// Package scoring turns findings, gaps and excess grants into a 0–100 risk
// score where 100 is maximal risk.
package scoring

import (
	"math"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/models"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/policy"
)

// MaxScore caps every score.
const MaxScore = 100.0

// Weights are the per-item risk contributions.
type Weights struct {
	Critical float64
	High     float64
	Medium   float64
	Low      float64
	Info     float64
	Gap      float64
	Excess   float64
}

// DefaultWeights returns the built-in weights.
func DefaultWeights() Weights {
	return Weights{
		Critical: 40,
		High:     15,
		Medium:   5,
		Low:      1,
		Info:     0,
		Gap:      10,
		Excess:   2,
	}
}

// WeightsFromPolicy returns DefaultWeights with any scoring overrides from
// cfg applied. cfg may be nil.
func WeightsFromPolicy(cfg *policy.PolicyConfig) Weights {
	d := DefaultWeights()
	return Weights{
		Critical: policy.GetWeight("critical", d.Critical, cfg),
		High:     policy.GetWeight("high", d.High, cfg),
		Medium:   policy.GetWeight("medium", d.Medium, cfg),
		Low:      policy.GetWeight("low", d.Low, cfg),
		Info:     policy.GetWeight("info", d.Info, cfg),
		Gap:      policy.GetWeight("gap", d.Gap, cfg),
		Excess:   policy.GetWeight("excess", d.Excess, cfg),
	}
}

func (w Weights) severity(s models.Severity) float64 {
	switch s {
	case models.SeverityCritical:
		return w.Critical
	case models.SeverityHigh:
		return w.High
	case models.SeverityMedium:
		return w.Medium
	case models.SeverityLow:
		return w.Low
	case models.SeverityInfo:
		return w.Info
	}
	return 0
}

// Score sums severity weights over findings plus the gap and excess weights,
// capped at MaxScore. UNGRANTED_USAGE and UNUSED_GRANT findings restate gaps
// and excess and contribute only through those counts.
func (w Weights) Score(findings []models.Finding, gaps []models.CoverageEntry, excess []models.PermissionStatement) float64 {
	total := 0.0
	for _, f := range findings {
		if f.Kind == models.KindUngrantedUsage || f.Kind == models.KindUnusedGrant {
			continue
		}
		total += w.severity(f.Severity)
	}
	total += float64(len(gaps)) * w.Gap
	total += float64(len(excess)) * w.Excess
	return math.Min(total, MaxScore)
}

// Score scores with DefaultWeights.
func Score(findings []models.Finding, gaps []models.CoverageEntry, excess []models.PermissionStatement) float64 {
	return DefaultWeights().Score(findings, gaps, excess)
}

// Overall is the mean of the per-principal scores, 0 when there are none.
func Overall(perPrincipal map[string]float64) float64 {
	if len(perPrincipal) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range perPrincipal {
		sum += s
	}
	return sum / float64(len(perPrincipal))
}
