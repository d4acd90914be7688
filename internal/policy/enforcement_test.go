package policy

import (
	"testing"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/models"
)

func TestShouldFail_NilConfig(t *testing.T) {
	findings := []models.Finding{{Severity: models.SeverityCritical}}
	if ShouldFail(DomainIAM, findings, nil) {
		t.Error("nil cfg must return false")
	}
}

func TestShouldFail_NoEnforcementBlock(t *testing.T) {
	cfg := &PolicyConfig{}
	findings := []models.Finding{{Severity: models.SeverityCritical}}
	if ShouldFail(DomainIAM, findings, cfg) {
		t.Error("absent enforcement block must return false")
	}
}

func TestShouldFail_DomainNotConfigured(t *testing.T) {
	cfg := &PolicyConfig{
		Enforcement: map[string]EnforcementConfig{
			"other": {FailOnSeverity: "HIGH"},
		},
	}
	findings := []models.Finding{{Severity: models.SeverityCritical}}
	if ShouldFail(DomainIAM, findings, cfg) {
		t.Error("enforcement for a different domain must not affect iam lookup")
	}
}

func TestShouldFail_NoFindings(t *testing.T) {
	cfg := &PolicyConfig{
		Enforcement: map[string]EnforcementConfig{
			DomainIAM: {FailOnSeverity: "HIGH"},
		},
	}
	if ShouldFail(DomainIAM, nil, cfg) {
		t.Error("empty findings slice must return false")
	}
}

func TestShouldFail_InvalidSeverityIgnored(t *testing.T) {
	cfg := &PolicyConfig{
		Enforcement: map[string]EnforcementConfig{
			DomainIAM: {FailOnSeverity: "BOGUS"},
		},
	}
	findings := []models.Finding{{Severity: models.SeverityCritical}}
	if ShouldFail(DomainIAM, findings, cfg) {
		t.Error("unrecognised fail_on_severity must return false")
	}
}

func TestShouldFail_Thresholds(t *testing.T) {
	tests := []struct {
		threshold string
		severity  models.Severity
		want      bool
	}{
		{"HIGH", models.SeverityCritical, true},
		{"HIGH", models.SeverityHigh, true},
		{"HIGH", models.SeverityMedium, false},
		{"critical", models.SeverityCritical, true},
		{"critical", models.SeverityHigh, false},
		{"low", models.SeverityLow, true},
		{"low", models.SeverityInfo, false},
	}
	for _, tc := range tests {
		cfg := &PolicyConfig{
			Enforcement: map[string]EnforcementConfig{
				DomainIAM: {FailOnSeverity: tc.threshold},
			},
		}
		got := ShouldFail(DomainIAM, []models.Finding{{Severity: tc.severity}}, cfg)
		if got != tc.want {
			t.Errorf("threshold %s, finding %s: got %v, want %v", tc.threshold, tc.severity, got, tc.want)
		}
	}
}

func TestShouldFailScore(t *testing.T) {
	cfg := &PolicyConfig{
		Enforcement: map[string]EnforcementConfig{
			DomainIAM: {FailOnScore: 50},
		},
	}
	if ShouldFailScore(DomainIAM, 49.9, cfg) {
		t.Error("score below threshold must not fail")
	}
	if !ShouldFailScore(DomainIAM, 50, cfg) {
		t.Error("score equal to threshold must fail")
	}
	if ShouldFailScore(DomainIAM, 100, &PolicyConfig{}) {
		t.Error("absent fail_on_score must not fail")
	}
	if ShouldFailScore(DomainIAM, 100, nil) {
		t.Error("nil cfg must return false")
	}
}
