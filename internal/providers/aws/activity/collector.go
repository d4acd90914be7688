// Package awsactivity collects activity records from AWS CloudTrail, either
// through the event history API or from log files archived in S3.
package awsactivity

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	cloudtrailsvc "github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	"golang.org/x/sync/errgroup"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/coverage"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/logger"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/models"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/providers/aws/common"
)

// maxConcurrentRegions bounds parallel LookupEvents scans.
const maxConcurrentRegions = 4

// ActivityCollector collects raw activity from an AWS account.
//
// Implementations must never apply business logic or produce findings.
// Non-fatal collection failures (e.g. one region unreachable) are returned as
// diagnostics so the rest of the analysis can complete.
type ActivityCollector interface {
	CollectAll(
		ctx context.Context,
		profile *common.ProfileConfig,
		provider common.AWSClientProvider,
		regions []string,
		window coverage.Window,
	) ([]models.ActivityRecord, []models.Diagnostic, error)
}

// DefaultActivityCollector reads the CloudTrail event history of every
// requested region.
type DefaultActivityCollector struct {
	log logger.Logger
}

// NewDefaultActivityCollector returns a collector logging through log, which
// may be nil.
func NewDefaultActivityCollector(log logger.Logger) *DefaultActivityCollector {
	if log == nil {
		log = logger.NewNop()
	}
	return &DefaultActivityCollector{log: log}
}

type regionResult struct {
	records []models.ActivityRecord
	diags   []models.Diagnostic
	err     error
}

// CollectAll scans each region concurrently and concatenates the results in
// region order. A failing region becomes a SOURCE_ERROR diagnostic; an error
// is returned only when every region fails.
func (c *DefaultActivityCollector) CollectAll(
	ctx context.Context,
	profile *common.ProfileConfig,
	provider common.AWSClientProvider,
	regions []string,
	window coverage.Window,
) ([]models.ActivityRecord, []models.Diagnostic, error) {
	if len(regions) == 0 {
		return nil, nil, fmt.Errorf("no regions to collect activity from")
	}

	results := make([]regionResult, len(regions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentRegions)
	for i, region := range regions {
		g.Go(func() error {
			clients := provider.ClientsForRegion(profile, region)
			recs, diags, err := lookupEvents(gctx, clients.CloudTrail, region, window)
			results[i] = regionResult{records: recs, diags: diags, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var (
		records []models.ActivityRecord
		diags   []models.Diagnostic
		failed  int
	)
	for i, r := range results {
		if r.err != nil {
			failed++
			c.log.Warn("cloudtrail lookup failed",
				logger.String("profile", profile.ProfileName),
				logger.String("region", regions[i]),
				logger.Error(r.err))
			diags = append(diags, models.Diagnostic{
				Kind:    models.DiagnosticSourceError,
				Source:  "cloudtrail:" + regions[i],
				Message: r.err.Error(),
			})
			continue
		}
		records = append(records, r.records...)
		diags = append(diags, r.diags...)
	}
	if failed == len(regions) {
		return nil, diags, fmt.Errorf("collect activity for profile %q: all %d regions failed", profile.ProfileName, failed)
	}

	c.log.Info("collected cloudtrail activity",
		logger.String("profile", profile.ProfileName),
		logger.Int("regions", len(regions)),
		logger.Int("records", len(records)))
	return records, diags, nil
}

// lookupEvents pages through LookupEvents for one region over window.
func lookupEvents(
	ctx context.Context,
	client common.CloudTrailClient,
	region string,
	window coverage.Window,
) ([]models.ActivityRecord, []models.Diagnostic, error) {
	input := &cloudtrailsvc.LookupEventsInput{}
	if !window.Start.IsZero() {
		input.StartTime = aws.Time(window.Start)
	}
	if !window.End.IsZero() {
		input.EndTime = aws.Time(window.End)
	}

	var (
		records []models.ActivityRecord
		diags   []models.Diagnostic
	)
	paginator := cloudtrailsvc.NewLookupEventsPaginator(client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("lookup events in %s: %w", region, err)
		}
		for _, ev := range page.Events {
			fallback := ""
			if len(ev.Resources) > 0 {
				fallback = aws.ToString(ev.Resources[0].ResourceName)
			}
			rec, err := NormalizeEvent([]byte(aws.ToString(ev.CloudTrailEvent)), fallback)
			if err != nil {
				diags = append(diags, models.Diagnostic{
					Kind:    models.DiagnosticMalformedRecord,
					Source:  fmt.Sprintf("cloudtrail:%s:%s", region, aws.ToString(ev.EventId)),
					Message: err.Error(),
				})
				continue
			}
			records = append(records, rec)
		}
	}
	return records, diags, nil
}
