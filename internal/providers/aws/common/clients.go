package common

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// ---------------------------------------------------------------------------
// Per-service client interfaces
//
// Each interface covers only the operations used by this project. Using narrow
// interfaces instead of the full SDK clients makes mocking in unit tests
// trivial: create a struct that satisfies the interface and return canned data.
// ---------------------------------------------------------------------------

// STSClient is the subset of STS operations used by the loader.
type STSClient interface {
	GetCallerIdentity(
		ctx context.Context,
		params *sts.GetCallerIdentityInput,
		optFns ...func(*sts.Options),
	) (*sts.GetCallerIdentityOutput, error)
}

// EC2RegionClient is the subset of EC2 operations used for region discovery.
type EC2RegionClient interface {
	DescribeRegions(
		ctx context.Context,
		params *ec2.DescribeRegionsInput,
		optFns ...func(*ec2.Options),
	) (*ec2.DescribeRegionsOutput, error)
}

// CloudTrailClient covers the event history lookups used as the activity
// log source. It satisfies cloudtrail.LookupEventsAPIClient so the SDK
// paginator can drive it.
type CloudTrailClient interface {
	LookupEvents(
		ctx context.Context,
		params *cloudtrail.LookupEventsInput,
		optFns ...func(*cloudtrail.Options),
	) (*cloudtrail.LookupEventsOutput, error)
}

// IAMClient covers the IAM operations used to collect existing policies.
type IAMClient interface {
	GetAccountAuthorizationDetails(
		ctx context.Context,
		params *iam.GetAccountAuthorizationDetailsInput,
		optFns ...func(*iam.Options),
	) (*iam.GetAccountAuthorizationDetailsOutput, error)
}

// S3LogClient covers the S3 operations used to read archived CloudTrail log
// files.
type S3LogClient interface {
	ListObjectsV2(
		ctx context.Context,
		params *s3.ListObjectsV2Input,
		optFns ...func(*s3.Options),
	) (*s3.ListObjectsV2Output, error)

	GetObject(
		ctx context.Context,
		params *s3.GetObjectInput,
		optFns ...func(*s3.Options),
	) (*s3.GetObjectOutput, error)
}

// ---------------------------------------------------------------------------
// ClientSet and ClientFactory
// ---------------------------------------------------------------------------

// ClientSet holds fully initialised AWS service clients for a given profile
// and region. All fields are interfaces so they can be replaced with mocks in
// tests without importing the AWS SDK in test files.
type ClientSet struct {
	STS        STSClient
	EC2        EC2RegionClient
	CloudTrail CloudTrailClient
	IAM        IAMClient
	S3         S3LogClient
}

// ClientFactory creates a ClientSet from an aws.Config.
// Swap this in tests to inject mock clients.
type ClientFactory func(cfg aws.Config) *ClientSet

// NewClientSet is the production ClientFactory. It constructs real AWS SDK
// clients from cfg. IAM is a global service and ignores the region.
func NewClientSet(cfg aws.Config) *ClientSet {
	return &ClientSet{
		STS:        sts.NewFromConfig(cfg),
		EC2:        ec2.NewFromConfig(cfg),
		CloudTrail: cloudtrail.NewFromConfig(cfg),
		IAM:        iam.NewFromConfig(cfg),
		S3:         s3.NewFromConfig(cfg),
	}
}
