package report

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/coverage"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/models"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/reducer"
)

var ts = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

func sampleReduction() reducer.ReductionResult {
	idx := coverage.Build([]models.ActivityRecord{
		{ActorID: "bob", Action: "delete-object", ResourceID: "bucket/x", Timestamp: ts, Outcome: models.OutcomeAllowed},
	})
	existing := map[string]models.PermissionSet{
		"carol": {{Effect: models.EffectAllow, Actions: []string{"*"}, Resources: []string{"*"}}},
	}
	return reducer.Reduce(idx, existing, reducer.Config{})
}

func TestAssemble_AddsGapAndExcessFindings(t *testing.T) {
	red := sampleReduction()
	findings := map[string][]models.Finding{
		"carol": {
			{ID: "WILDCARD_ACTION-carol-0", Kind: models.KindWildcardAction, Severity: models.SeverityHigh},
			{ID: "WILDCARD_RESOURCE-carol-0", Kind: models.KindWildcardResource, Severity: models.SeverityHigh},
		},
	}
	scores := map[string]float64{"bob": 10, "carol": 32}

	rep, err := Assemble(red, findings, scores, ts, WithReportID("r-1"))
	require.NoError(t, err)

	assert.Equal(t, "r-1", rep.ReportID)
	assert.Equal(t, ts, rep.GeneratedAt)
	assert.Equal(t, []string{"bob", "carol"}, rep.PrincipalIDs())

	bob := rep.Principals["bob"]
	require.Len(t, bob.Findings, 1)
	assert.Equal(t, models.KindUngrantedUsage, bob.Findings[0].Kind)
	assert.Equal(t, models.SeverityMedium, bob.Findings[0].Severity)
	assert.Equal(t, models.SubjectCoverageEntry, bob.Findings[0].Subject.Type)
	assert.Equal(t, -1, bob.Findings[0].Subject.StatementIndex)

	carol := rep.Principals["carol"]
	require.Len(t, carol.Findings, 3)
	assert.Equal(t, models.KindUnusedGrant, carol.Findings[2].Kind)
	assert.Equal(t, "UNUSED_GRANT-carol-0", carol.Findings[2].ID)
	assert.Len(t, carol.Excess, 1)

	assert.Equal(t, 21.0, rep.OverallScore)
	assert.Equal(t, models.Summary{
		Principals:     2,
		TotalFindings:  4,
		HighFindings:   2,
		MediumFindings: 1,
		LowFindings:    1,
		Gaps:           1,
		Excess:         1,
	}, rep.Summary)
}

func TestAssemble_GeneratesReportID(t *testing.T) {
	a, err := Assemble(sampleReduction(), nil, nil, ts)
	require.NoError(t, err)
	b, err := Assemble(sampleReduction(), nil, nil, ts)
	require.NoError(t, err)
	assert.NotEmpty(t, a.ReportID)
	assert.NotEqual(t, a.ReportID, b.ReportID)
}

func TestAssemble_InconsistentFindings(t *testing.T) {
	findings := map[string][]models.Finding{"zed": {{Kind: models.KindWildcardAction}}}

	rep, err := Assemble(sampleReduction(), findings, nil, ts)
	assert.Nil(t, rep)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInconsistentPrincipalSet))

	var ae *AssemblyError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, []string{"zed"}, ae.Principals)
	assert.Equal(t, "findings", ae.Source)
}

func TestAssemble_InconsistentScores(t *testing.T) {
	_, err := Assemble(sampleReduction(), nil, map[string]float64{"ghost": 1}, ts)
	assert.ErrorIs(t, err, ErrInconsistentPrincipalSet)
}

func TestAssemble_EmptyInput(t *testing.T) {
	rep, err := Assemble(reducer.ReductionResult{}, nil, nil, ts)
	require.NoError(t, err)
	assert.Empty(t, rep.Principals)
	assert.Equal(t, 0.0, rep.OverallScore)
	assert.Equal(t, models.Summary{}, rep.Summary)
}

func TestAssemble_OptionsAndImmutability(t *testing.T) {
	red := sampleReduction()
	diags := []models.Diagnostic{{Kind: models.DiagnosticMalformedRecord, Source: "record 3", Message: "bad"}}
	window := models.AnalysisWindow{Start: ts.Add(-time.Hour), End: ts}

	rep, err := Assemble(red, nil, nil, ts, WithDiagnostics(diags), WithWindow(window))
	require.NoError(t, err)
	assert.Equal(t, window, rep.Window)
	assert.Equal(t, diags, rep.Diagnostics)

	rep.Principals["bob"].MinimalSet[0].Actions[0] = "mutated"
	assert.Equal(t, "delete-object", red.Principals["bob"].MinimalSet[0].Actions[0])
}
