package rules

import (
	"fmt"
	"strings"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/models"
)

// findingID builds the stable identifier "<KIND>-<principal>-<index>".
func findingID(kind models.FindingKind, principal string, index int) string {
	if principal == "" {
		return fmt.Sprintf("%s-%d", kind, index)
	}
	return fmt.Sprintf("%s-%s-%d", kind, principal, index)
}

func statementFinding(kind models.FindingKind, sev models.Severity, ctx RuleContext, i int, msg, rec string) models.Finding {
	return models.Finding{
		ID:             findingID(kind, ctx.Principal, i),
		Kind:           kind,
		Principal:      ctx.Principal,
		Severity:       sev,
		Subject:        models.StatementSubject(i, ctx.Statements[i]),
		Message:        msg,
		Recommendation: rec,
	}
}

// readOnlyVerbs are lower-cased verb prefixes of actions that only observe
// state, e.g. "s3:GetObject", "ec2:DescribeInstances" or "read-object".
var readOnlyVerbs = []string{
	"batchget",
	"describe",
	"get",
	"head",
	"list",
	"lookup",
	"query",
	"read",
	"search",
	"view",
}

// isReadOnlyAction reports whether the action pattern can only match
// read-only actions. Bare and service-level wildcards are never read-only.
func isReadOnlyAction(action string) bool {
	verb := action
	if i := strings.LastIndex(action, ":"); i >= 0 {
		verb = action[i+1:]
	}
	verb = strings.ToLower(verb)
	if verb == "" || verb == models.Wildcard {
		return false
	}
	for _, v := range readOnlyVerbs {
		if strings.HasPrefix(verb, v) {
			return true
		}
	}
	return false
}

// isServiceWildcard reports whether action is "*" or "<service>:*".
func isServiceWildcard(action string) bool {
	if action == models.Wildcard {
		return true
	}
	svc, rest, ok := strings.Cut(action, ":")
	return ok && svc != "" && rest == models.Wildcard
}
