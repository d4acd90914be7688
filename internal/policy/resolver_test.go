package policy

import (
	"testing"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/models"
)

func boolPtr(b bool) *bool { return &b }

func TestApplyPolicy_NilConfig(t *testing.T) {
	findings := []models.Finding{{Kind: models.KindWildcardAction}}
	if got := ApplyPolicy(findings, DomainIAM, nil); len(got) != 1 {
		t.Fatalf("nil cfg must pass findings through")
	}
}

func TestApplyPolicy_DomainDisabled(t *testing.T) {
	cfg := &PolicyConfig{
		Domains: map[string]DomainConfig{
			DomainIAM: {Enabled: false},
		},
	}

	findings := []models.Finding{
		{Kind: models.KindWildcardAction},
	}

	result := ApplyPolicy(findings, DomainIAM, cfg)

	if len(result) != 0 {
		t.Fatalf("expected all findings dropped")
	}
}

func TestApplyPolicy_RuleDisabled(t *testing.T) {
	cfg := &PolicyConfig{
		Rules: map[string]RuleConfig{
			"WILDCARD_RESOURCE": {Enabled: boolPtr(false)},
		},
	}

	findings := []models.Finding{
		{Kind: models.KindWildcardResource},
		{Kind: models.KindPassRoleHazard},
	}

	result := ApplyPolicy(findings, DomainIAM, cfg)

	if len(result) != 1 {
		t.Fatalf("expected one finding remaining")
	}
	if result[0].Kind != models.KindPassRoleHazard {
		t.Fatalf("wrong finding kept")
	}
}

func TestApplyPolicy_SeverityOverride(t *testing.T) {
	cfg := &PolicyConfig{
		Rules: map[string]RuleConfig{
			"UNUSED_GRANT": {Severity: "high"},
		},
	}

	findings := []models.Finding{
		{Kind: models.KindUnusedGrant, Severity: models.SeverityLow},
	}

	result := ApplyPolicy(findings, DomainIAM, cfg)

	if result[0].Severity != models.SeverityHigh {
		t.Fatalf("expected severity overridden to HIGH; got %s", result[0].Severity)
	}
	if findings[0].Severity != models.SeverityLow {
		t.Fatalf("input slice must not be modified")
	}
}

func TestApplyPolicy_MinSeverity(t *testing.T) {
	cfg := &PolicyConfig{
		Domains: map[string]DomainConfig{
			DomainIAM: {Enabled: true, MinSeverity: "medium"},
		},
	}

	findings := []models.Finding{
		{Kind: models.KindWildcardAction, Severity: models.SeverityHigh},
		{Kind: models.KindUngrantedUsage, Severity: models.SeverityMedium},
		{Kind: models.KindUnusedGrant, Severity: models.SeverityLow},
	}

	result := ApplyPolicy(findings, DomainIAM, cfg)

	if len(result) != 2 {
		t.Fatalf("expected LOW finding dropped; got %d findings", len(result))
	}
}

func TestRuleEnabled(t *testing.T) {
	cfg := &PolicyConfig{
		Rules: map[string]RuleConfig{
			"DENY_OVERLAP":    {Enabled: boolPtr(false)},
			"WILDCARD_ACTION": {Severity: "LOW"},
		},
	}
	if RuleEnabled("DENY_OVERLAP", cfg) {
		t.Error("explicitly disabled rule must be disabled")
	}
	if !RuleEnabled("WILDCARD_ACTION", cfg) {
		t.Error("rule without enabled flag must stay enabled")
	}
	if !RuleEnabled("PASSROLE_HAZARD", nil) {
		t.Error("nil cfg enables every rule")
	}
}

func TestExcluded(t *testing.T) {
	cfg := &PolicyConfig{
		ExcludePrincipals: []string{
			"arn:aws:iam::111122223333:role/break-glass*",
			"ci-bot",
		},
	}
	cases := map[string]bool{
		"arn:aws:iam::111122223333:role/break-glass-admin": true,
		"ci-bot":  true,
		"ci-bot2": false,
		"arn:aws:iam::111122223333:role/deploy": false,
	}
	for principal, want := range cases {
		if got := Excluded(principal, cfg); got != want {
			t.Errorf("Excluded(%q) = %v, want %v", principal, got, want)
		}
	}
	if Excluded("ci-bot", nil) {
		t.Error("nil cfg excludes nothing")
	}
}
