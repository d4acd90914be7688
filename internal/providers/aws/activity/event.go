package awsactivity

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/models"
)

// cloudTrailEvent is the subset of a CloudTrail event record used to build
// an ActivityRecord.
type cloudTrailEvent struct {
	EventTime    time.Time `json:"eventTime"`
	EventSource  string    `json:"eventSource"`
	EventName    string    `json:"eventName"`
	ErrorCode    string    `json:"errorCode"`
	UserIdentity struct {
		Type           string `json:"type"`
		ARN            string `json:"arn"`
		SessionContext struct {
			SessionIssuer struct {
				Type string `json:"type"`
				ARN  string `json:"arn"`
			} `json:"sessionIssuer"`
		} `json:"sessionContext"`
	} `json:"userIdentity"`
	Resources []struct {
		ARN string `json:"ARN"`
	} `json:"resources"`
}

// deniedErrorCodes are CloudTrail error codes that mean the caller was not
// authorized. Any other error code still counts as an authorized call.
var deniedErrorCodes = map[string]struct{}{
	"AccessDenied":                 {},
	"AccessDeniedException":        {},
	"UnauthorizedOperation":        {},
	"Client.UnauthorizedOperation": {},
	"Unauthorized":                 {},
	"UnauthorizedException":        {},
}

// NormalizeEvent converts one raw CloudTrail event into an ActivityRecord.
// fallbackResource is used when the event carries no resource ARN; pass ""
// to default to "*". The returned error wraps models.ErrMalformedRecord.
func NormalizeEvent(raw []byte, fallbackResource string) (models.ActivityRecord, error) {
	var ev cloudTrailEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return models.ActivityRecord{}, fmt.Errorf("%w: %v", models.ErrMalformedRecord, err)
	}

	rec := models.ActivityRecord{
		ActorID:    actorARN(ev),
		Action:     actionName(ev.EventSource, ev.EventName),
		ResourceID: models.Wildcard,
		Timestamp:  ev.EventTime.UTC(),
		Outcome:    models.OutcomeAllowed,
	}
	if fallbackResource != "" {
		rec.ResourceID = fallbackResource
	}
	for _, r := range ev.Resources {
		if r.ARN != "" {
			rec.ResourceID = r.ARN
			break
		}
	}
	if _, denied := deniedErrorCodes[ev.ErrorCode]; denied {
		rec.Outcome = models.OutcomeDenied
	}
	if err := rec.Check(); err != nil {
		return models.ActivityRecord{}, err
	}
	return rec, nil
}

// actorARN returns the identity ARN, collapsing assumed-role sessions onto
// the role that issued them so every session of a role is one principal.
func actorARN(ev cloudTrailEvent) string {
	issuer := ev.UserIdentity.SessionContext.SessionIssuer
	if ev.UserIdentity.Type == "AssumedRole" && issuer.ARN != "" {
		return issuer.ARN
	}
	return ev.UserIdentity.ARN
}

// actionName builds "service:EventName" from "service.amazonaws.com".
func actionName(source, name string) string {
	if source == "" || name == "" {
		return ""
	}
	svc, _, _ := strings.Cut(source, ".")
	return svc + ":" + name
}
