package policy

import "testing"

func TestGetThreshold_NilConfig(t *testing.T) {
	if got := GetThreshold("WILDCARD_RESOURCE", "max", 5, nil); got != 5 {
		t.Errorf("expected default 5; got %v", got)
	}
}

func TestGetThreshold_RuleAbsent(t *testing.T) {
	cfg := &PolicyConfig{Rules: map[string]RuleConfig{}}
	if got := GetThreshold("WILDCARD_RESOURCE", "max", 5, cfg); got != 5 {
		t.Errorf("expected default 5; got %v", got)
	}
}

func TestGetThreshold_ParamAbsent(t *testing.T) {
	cfg := &PolicyConfig{Rules: map[string]RuleConfig{
		"WILDCARD_RESOURCE": {Params: map[string]float64{"other": 1}},
	}}
	if got := GetThreshold("WILDCARD_RESOURCE", "max", 5, cfg); got != 5 {
		t.Errorf("expected default 5; got %v", got)
	}
}

func TestGetThreshold_Override(t *testing.T) {
	cfg := &PolicyConfig{Rules: map[string]RuleConfig{
		"WILDCARD_RESOURCE": {Params: map[string]float64{"max": 9}},
	}}
	if got := GetThreshold("WILDCARD_RESOURCE", "max", 5, cfg); got != 9 {
		t.Errorf("expected 9; got %v", got)
	}
}

func TestGetWeight(t *testing.T) {
	cfg := &PolicyConfig{Scoring: map[string]float64{"gap": 12, "info": 0}}
	if got := GetWeight("gap", 10, cfg); got != 12 {
		t.Errorf("expected 12; got %v", got)
	}
	if got := GetWeight("info", 3, cfg); got != 0 {
		t.Errorf("explicit zero must win over default; got %v", got)
	}
	if got := GetWeight("excess", 2, cfg); got != 2 {
		t.Errorf("expected default 2; got %v", got)
	}
	if got := GetWeight("gap", 10, nil); got != 10 {
		t.Errorf("expected default 10 for nil cfg; got %v", got)
	}
}
