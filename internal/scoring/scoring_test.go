package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/models"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/policy"
)

func finding(kind models.FindingKind, sev models.Severity) models.Finding {
	return models.Finding{Kind: kind, Severity: sev}
}

func TestScore_Empty(t *testing.T) {
	assert.Equal(t, 0.0, Score(nil, nil, nil))
}

func TestScore_WeightedSum(t *testing.T) {
	findings := []models.Finding{
		finding(models.KindPassRoleHazard, models.SeverityCritical),
		finding(models.KindWildcardAction, models.SeverityHigh),
		finding(models.KindWildcardResource, models.SeverityMedium),
		finding(models.KindDenyOverlap, models.SeverityLow),
	}
	gaps := []models.CoverageEntry{{ActorID: "a"}}
	excess := []models.PermissionStatement{{}, {}}

	assert.Equal(t, 40.0+15+5+1+10+4, Score(findings, gaps, excess))
}

func TestScore_Capped(t *testing.T) {
	findings := []models.Finding{
		finding(models.KindPassRoleHazard, models.SeverityCritical),
		finding(models.KindPassRoleHazard, models.SeverityCritical),
		finding(models.KindPassRoleHazard, models.SeverityCritical),
	}
	assert.Equal(t, MaxScore, Score(findings, nil, nil))
}

func TestScore_CarolWildcard(t *testing.T) {
	findings := []models.Finding{
		finding(models.KindWildcardAction, models.SeverityHigh),
		finding(models.KindWildcardResource, models.SeverityHigh),
	}
	assert.GreaterOrEqual(t, Score(findings, nil, []models.PermissionStatement{{}}), 30.0)
}

func TestScore_GapAndExcessFindingsNotDoubleCounted(t *testing.T) {
	gaps := []models.CoverageEntry{{ActorID: "bob"}}
	findings := []models.Finding{finding(models.KindUngrantedUsage, models.SeverityMedium)}
	assert.Equal(t, 10.0, Score(findings, gaps, nil))
}

func TestWeightsFromPolicy(t *testing.T) {
	cfg := &policy.PolicyConfig{Scoring: map[string]float64{"gap": 20, "excess": 0}}
	w := WeightsFromPolicy(cfg)
	assert.Equal(t, 20.0, w.Gap)
	assert.Equal(t, 0.0, w.Excess)
	assert.Equal(t, 40.0, w.Critical)
	assert.Equal(t, DefaultWeights(), WeightsFromPolicy(nil))
}

func TestOverall(t *testing.T) {
	assert.Equal(t, 0.0, Overall(nil))
	assert.Equal(t, 25.0, Overall(map[string]float64{"a": 10, "b": 40}))
}
