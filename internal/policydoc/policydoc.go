// Package policydoc translates AWS JSON policy documents to and from the
// normalized statement model.
package policydoc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/models"
)

// Version is the policy language version written by Render.
const Version = "2012-10-17"

// ErrUnsupportedStatement is returned for statements the normalized model
// cannot express, such as NotAction or NotResource.
var ErrUnsupportedStatement = errors.New("unsupported policy statement")

// Document is the wire form of an IAM policy document.
type Document struct {
	Version   string          `json:"Version,omitempty"`
	ID        string          `json:"Id,omitempty"`
	Statement json.RawMessage `json:"Statement"`
}

// Statement is the wire form of one policy statement.
type Statement struct {
	Sid         string                       `json:"Sid,omitempty"`
	Effect      string                       `json:"Effect"`
	Action      Values                       `json:"Action,omitempty"`
	NotAction   Values                       `json:"NotAction,omitempty"`
	Resource    Values                       `json:"Resource,omitempty"`
	NotResource Values                       `json:"NotResource,omitempty"`
	Principal   json.RawMessage              `json:"Principal,omitempty"`
	Condition   map[string]map[string]Values `json:"Condition,omitempty"`
}

// Values is a JSON string or array of strings.
type Values []string

func (v *Values) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = Values{s}
		return nil
	}
	var ss []string
	if err := json.Unmarshal(b, &ss); err != nil {
		return fmt.Errorf("expected string or string array: %w", err)
	}
	*v = ss
	return nil
}

// MarshalJSON writes a single value as a bare string.
func (v Values) MarshalJSON() ([]byte, error) {
	if len(v) == 1 {
		return json.Marshal(v[0])
	}
	return json.Marshal([]string(v))
}

// Parse decodes a policy document into normalized statements. Conditions are
// flattened to "Operator:key" → comma-joined values.
func Parse(data []byte) (models.PermissionSet, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode policy document: %w", err)
	}
	stmts, err := statements(doc.Statement)
	if err != nil {
		return nil, err
	}

	set := make(models.PermissionSet, 0, len(stmts))
	for i, s := range stmts {
		ps, err := normalize(s)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i, err)
		}
		set = append(set, ps)
	}
	return set, nil
}

// ParseEncoded URL-decodes data before parsing it. The IAM API returns
// policy documents in this form.
func ParseEncoded(data string) (models.PermissionSet, error) {
	decoded, err := url.PathUnescape(data)
	if err != nil {
		return nil, fmt.Errorf("url-decode policy document: %w", err)
	}
	return Parse([]byte(decoded))
}

func statements(raw json.RawMessage) ([]Statement, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '{' {
		var s Statement
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode statement: %w", err)
		}
		return []Statement{s}, nil
	}
	var ss []Statement
	if err := json.Unmarshal(raw, &ss); err != nil {
		return nil, fmt.Errorf("decode statements: %w", err)
	}
	return ss, nil
}

func normalize(s Statement) (models.PermissionStatement, error) {
	if len(s.NotAction) > 0 {
		return models.PermissionStatement{}, fmt.Errorf("%w: NotAction", ErrUnsupportedStatement)
	}
	if len(s.NotResource) > 0 {
		return models.PermissionStatement{}, fmt.Errorf("%w: NotResource", ErrUnsupportedStatement)
	}

	var effect models.Effect
	switch {
	case strings.EqualFold(s.Effect, string(models.EffectAllow)):
		effect = models.EffectAllow
	case strings.EqualFold(s.Effect, string(models.EffectDeny)):
		effect = models.EffectDeny
	default:
		return models.PermissionStatement{}, fmt.Errorf("%w: effect %q", ErrUnsupportedStatement, s.Effect)
	}
	if len(s.Action) == 0 {
		return models.PermissionStatement{}, fmt.Errorf("%w: no actions", ErrUnsupportedStatement)
	}

	ps := models.PermissionStatement{
		Effect:    effect,
		Actions:   append([]string(nil), s.Action...),
		Resources: append([]string(nil), s.Resource...),
	}
	if len(s.Condition) > 0 {
		ps.Conditions = make(map[string]string)
		for op, kv := range s.Condition {
			for key, vals := range kv {
				ps.Conditions[op+":"+key] = strings.Join(vals, ",")
			}
		}
	}
	return ps, nil
}

// Render encodes set as an indented policy document. Conditions are expanded
// back to the Operator → key → values form.
func Render(set models.PermissionSet) ([]byte, error) {
	out := struct {
		Version   string      `json:"Version"`
		Statement []Statement `json:"Statement"`
	}{Version: Version, Statement: make([]Statement, 0, len(set))}

	for _, s := range set {
		st := Statement{
			Effect:   string(s.Effect),
			Action:   Values(append([]string(nil), s.Actions...)),
			Resource: Values(s.ResourcePatterns()),
		}
		if len(s.Conditions) > 0 {
			st.Condition = make(map[string]map[string]Values)
			keys := make([]string, 0, len(s.Conditions))
			for k := range s.Conditions {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				op, key, ok := splitConditionKey(k)
				if !ok {
					return nil, fmt.Errorf("condition %q: expected Operator:key", k)
				}
				if st.Condition[op] == nil {
					st.Condition[op] = make(map[string]Values)
				}
				st.Condition[op][key] = Values(strings.Split(s.Conditions[k], ","))
			}
		}
		out.Statement = append(out.Statement, st)
	}
	return json.MarshalIndent(out, "", "  ")
}

// splitConditionKey splits "Operator:key" where the operator may carry a
// set qualifier ("ForAnyValue:StringLike:aws:TagKeys").
func splitConditionKey(k string) (op, key string, ok bool) {
	op, key, ok = strings.Cut(k, ":")
	if !ok {
		return "", "", false
	}
	if op == "ForAnyValue" || op == "ForAllValues" {
		inner, rest, ok := strings.Cut(key, ":")
		if !ok {
			return "", "", false
		}
		return op + ":" + inner, rest, true
	}
	return op, key, true
}
