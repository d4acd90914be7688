package iam

import (
	"testing"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/rules"
)

func TestNew_RegistersWithoutDuplicates(t *testing.T) {
	reg := rules.NewDefaultRuleRegistry()
	for _, r := range New() {
		reg.Register(r)
	}
	want := []string{"WILDCARD_ACTION", "WILDCARD_RESOURCE", "PASSROLE_HAZARD", "DENY_OVERLAP"}
	got := reg.IDs()
	if len(got) != len(want) {
		t.Fatalf("want %d rules, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("rule %d: got %s; want %s", i, got[i], want[i])
		}
	}
}
