// Package cloud builds cloud SDK configuration from credentials blocks.
package cloud

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/systmms/dsload/internal/blocks"
)

// DefaultAWSRegion is used when neither configuration nor block name a region
const DefaultAWSRegion = "us-west-2"

// AWSConfig loads an aws.Config. Region precedence is the explicit region,
// then the block's region, then DefaultAWSRegion. A nil block uses the SDK's
// default credential chain.
//
// Static keys in the block take precedence over a shared profile; a role ARN
// is assumed on top of whichever base credentials result.
func AWSConfig(ctx context.Context, creds *blocks.Credentials, region string) (aws.Config, error) {
	if region == "" && creds != nil {
		region = creds.Region
	}
	if region == "" {
		region = DefaultAWSRegion
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}

	if creds != nil {
		if creds.Provider != "" && creds.Provider != "aws" {
			return aws.Config{}, fmt.Errorf("credentials block '%s' is for %s, not aws", creds.Name, creds.Provider)
		}
		if creds.AccessKeyID != "" && creds.SecretAccessKey != "" {
			opts = append(opts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken),
			))
		} else if creds.Profile != "" {
			opts = append(opts, awsconfig.WithSharedConfigProfile(creds.Profile))
		}
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if creds != nil && creds.RoleARN != "" {
		provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(cfg), creds.RoleARN, func(o *stscreds.AssumeRoleOptions) {
			o.RoleSessionName = fmt.Sprintf("dsload-%d", time.Now().Unix())
		})
		cfg.Credentials = aws.NewCredentialsCache(provider)
	}

	return cfg, nil
}
