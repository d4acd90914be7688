package common

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSTS struct {
	out *sts.GetCallerIdentityOutput
	err error
}

func (f fakeSTS) GetCallerIdentity(context.Context, *sts.GetCallerIdentityInput, ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	return f.out, f.err
}

type fakeEC2 struct {
	out *ec2.DescribeRegionsOutput
	err error
}

func (f fakeEC2) DescribeRegions(context.Context, *ec2.DescribeRegionsInput, ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error) {
	return f.out, f.err
}

func TestResolveIdentity(t *testing.T) {
	account, arn, err := resolveIdentity(context.Background(), fakeSTS{out: &sts.GetCallerIdentityOutput{
		Account: aws.String("111122223333"),
		Arn:     aws.String("arn:aws:iam::111122223333:user/auditor"),
	}})
	require.NoError(t, err)
	assert.Equal(t, "111122223333", account)
	assert.Equal(t, "arn:aws:iam::111122223333:user/auditor", arn)

	_, _, err = resolveIdentity(context.Background(), fakeSTS{out: &sts.GetCallerIdentityOutput{}})
	assert.Error(t, err, "nil account must be an error")

	_, _, err = resolveIdentity(context.Background(), fakeSTS{err: errors.New("expired")})
	assert.Error(t, err, "STS failure must be an error")
}

func TestGetActiveRegions(t *testing.T) {
	p := NewDefaultAWSClientProviderWithFactory(NewClientSet, nil)
	cfg := &ProfileConfig{ProfileName: "audit", Clients: &ClientSet{EC2: fakeEC2{out: &ec2.DescribeRegionsOutput{
		Regions: []ec2types.Region{{RegionName: aws.String("us-east-1")}, {}, {RegionName: aws.String("eu-west-1")}},
	}}}}

	regions, err := p.GetActiveRegions(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"us-east-1", "eu-west-1"}, regions)

	cfg.Clients.EC2 = fakeEC2{err: errors.New("UnauthorizedOperation")}
	_, err = p.GetActiveRegions(context.Background(), cfg)
	assert.ErrorContains(t, err, `profile "audit"`)
}

func TestClientsForRegion(t *testing.T) {
	calls := 0
	factory := func(cfg aws.Config) *ClientSet {
		calls++
		return &ClientSet{}
	}
	p := NewDefaultAWSClientProviderWithFactory(factory, nil)
	home := &ClientSet{}
	cfg := &ProfileConfig{Region: "us-east-1", Clients: home}

	assert.Same(t, home, p.ClientsForRegion(cfg, "us-east-1"), "home region reuses the profile clients")
	p.ClientsForRegion(cfg, "eu-west-1")
	assert.Equal(t, 1, calls)
	assert.Equal(t, "eu-west-1", p.ConfigForRegion(cfg, "eu-west-1").Region)
}

// writeSharedFiles writes credentials and config under home/.aws and clears
// the environment overrides.
func writeSharedFiles(t *testing.T, home, creds, conf string) {
	t.Helper()
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "")
	t.Setenv("AWS_CONFIG_FILE", "")
	dir := filepath.Join(home, ".aws")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "credentials"), []byte(creds), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config"), []byte(conf), 0o600))
}

func TestSharedProfileNames(t *testing.T) {
	home := t.TempDir()
	writeSharedFiles(t, home,
		"[staging]\naws_access_key_id = x\n\n[default]\n[ audit ]\n",
		"[default]\nregion = us-east-1\n[profile audit]\n[profile prod]\n[sso-session corp]\n[services local]\n",
	)

	names, err := sharedProfileNames(func() (string, error) { return home, nil })
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "audit", "prod", "staging"}, names)
}

func TestSharedProfileNames_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	creds := filepath.Join(dir, "creds")
	require.NoError(t, os.WriteFile(creds, []byte("[ci]\n"), 0o600))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", creds)
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "missing"))

	names, err := sharedProfileNames(func() (string, error) { return "", errors.New("home must not be consulted") })
	require.NoError(t, err)
	assert.Equal(t, []string{"ci"}, names)
}

func TestSharedProfileNames_NoFiles(t *testing.T) {
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "")
	t.Setenv("AWS_CONFIG_FILE", "")
	names, err := sharedProfileNames(func() (string, error) { return t.TempDir(), nil })
	require.NoError(t, err)
	assert.Empty(t, names)
}
