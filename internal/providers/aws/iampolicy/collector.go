// Package awsiampolicy collects the permission sets currently granted to IAM
// users and roles.
package awsiampolicy

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	iamsvc "github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/logger"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/models"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/policydoc"
	"github.com/pankaj-dahiya-devops/dp-leastpriv/internal/providers/aws/common"
)

// PolicyCollector gathers the existing permission set of every principal in
// an account, keyed by principal ARN.
type PolicyCollector interface {
	Collect(ctx context.Context, profile *common.ProfileConfig) (map[string]models.PermissionSet, []models.Diagnostic, error)
}

// DefaultPolicyCollector reads the account authorization details snapshot.
// IAM is a global service, so the profile's home-region clients are used.
type DefaultPolicyCollector struct {
	log logger.Logger
}

// NewDefaultPolicyCollector returns a collector logging through log, which may
// be nil.
func NewDefaultPolicyCollector(log logger.Logger) *DefaultPolicyCollector {
	if log == nil {
		log = logger.NewNop()
	}
	return &DefaultPolicyCollector{log: log}
}

// authorizationDetails accumulates every page of the snapshot.
type authorizationDetails struct {
	users   []iamtypes.UserDetail
	roles   []iamtypes.RoleDetail
	groups  map[string]iamtypes.GroupDetail
	managed map[string]iamtypes.ManagedPolicyDetail
}

// Collect flattens inline, attached managed and (for users) group policies
// into one PermissionSet per principal. Documents that cannot be parsed are
// skipped with a SKIPPED_POLICY diagnostic; the principal keeps the rest.
func (c *DefaultPolicyCollector) Collect(ctx context.Context, profile *common.ProfileConfig) (map[string]models.PermissionSet, []models.Diagnostic, error) {
	if profile == nil || profile.Clients == nil || profile.Clients.IAM == nil {
		return nil, nil, fmt.Errorf("collect policies: no IAM client")
	}
	details, err := fetchDetails(ctx, profile.Clients.IAM)
	if err != nil {
		return nil, nil, err
	}

	b := &setBuilder{details: details, out: make(map[string]models.PermissionSet)}
	for _, u := range details.users {
		arn := aws.ToString(u.Arn)
		b.ensure(arn)
		for _, p := range u.UserPolicyList {
			b.addDocument(arn, "inline:"+aws.ToString(p.PolicyName), aws.ToString(p.PolicyDocument))
		}
		b.addAttached(arn, u.AttachedManagedPolicies)
		for _, groupName := range u.GroupList {
			g, ok := details.groups[groupName]
			if !ok {
				continue
			}
			for _, p := range g.GroupPolicyList {
				b.addDocument(arn, "group:"+groupName+":"+aws.ToString(p.PolicyName), aws.ToString(p.PolicyDocument))
			}
			b.addAttached(arn, g.AttachedManagedPolicies)
		}
	}
	for _, r := range details.roles {
		arn := aws.ToString(r.Arn)
		b.ensure(arn)
		for _, p := range r.RolePolicyList {
			b.addDocument(arn, "inline:"+aws.ToString(p.PolicyName), aws.ToString(p.PolicyDocument))
		}
		b.addAttached(arn, r.AttachedManagedPolicies)
	}

	c.log.Info("collected iam policies",
		logger.String("profile", profile.ProfileName),
		logger.Int("users", len(details.users)),
		logger.Int("roles", len(details.roles)),
		logger.Int("skipped_documents", len(b.diags)))
	return b.out, b.diags, nil
}

func fetchDetails(ctx context.Context, client common.IAMClient) (*authorizationDetails, error) {
	d := &authorizationDetails{
		groups:  make(map[string]iamtypes.GroupDetail),
		managed: make(map[string]iamtypes.ManagedPolicyDetail),
	}
	paginator := iamsvc.NewGetAccountAuthorizationDetailsPaginator(client, &iamsvc.GetAccountAuthorizationDetailsInput{
		Filter: []iamtypes.EntityType{
			iamtypes.EntityTypeUser,
			iamtypes.EntityTypeRole,
			iamtypes.EntityTypeGroup,
			iamtypes.EntityTypeLocalManagedPolicy,
			iamtypes.EntityTypeAWSManagedPolicy,
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("get account authorization details: %w", err)
		}
		d.users = append(d.users, page.UserDetailList...)
		d.roles = append(d.roles, page.RoleDetailList...)
		for _, g := range page.GroupDetailList {
			d.groups[aws.ToString(g.GroupName)] = g
		}
		for _, p := range page.Policies {
			d.managed[aws.ToString(p.Arn)] = p
		}
	}
	return d, nil
}

type setBuilder struct {
	details *authorizationDetails
	out     map[string]models.PermissionSet
	diags   []models.Diagnostic
}

func (b *setBuilder) ensure(principal string) {
	if _, ok := b.out[principal]; !ok {
		b.out[principal] = models.PermissionSet{}
	}
}

func (b *setBuilder) addAttached(principal string, attached []iamtypes.AttachedPolicy) {
	for _, a := range attached {
		arn := aws.ToString(a.PolicyArn)
		doc, ok := defaultVersionDocument(b.details.managed[arn])
		if !ok {
			b.skip(principal, "managed:"+arn, fmt.Errorf("default policy version not found"))
			continue
		}
		b.addDocument(principal, "managed:"+arn, doc)
	}
}

func (b *setBuilder) addDocument(principal, name, encoded string) {
	set, err := policydoc.ParseEncoded(encoded)
	if err != nil {
		b.skip(principal, name, err)
		return
	}
	b.out[principal] = append(b.out[principal], set...)
}

func (b *setBuilder) skip(principal, name string, err error) {
	b.diags = append(b.diags, models.Diagnostic{
		Kind:    models.DiagnosticSkippedPolicy,
		Source:  principal + ":" + name,
		Message: err.Error(),
	})
}

// defaultVersionDocument returns the URL-encoded document of the policy's
// default version.
func defaultVersionDocument(p iamtypes.ManagedPolicyDetail) (string, bool) {
	for _, v := range p.PolicyVersionList {
		if v.IsDefaultVersion || (p.DefaultVersionId != nil && aws.ToString(v.VersionId) == aws.ToString(p.DefaultVersionId)) {
			if v.Document == nil {
				return "", false
			}
			return aws.ToString(v.Document), true
		}
	}
	return "", false
}
