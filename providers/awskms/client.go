package awskms

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/hengadev/locker"
)

// kmsClient interface for AWS KMS operations (allows mocking)
type kmsClient interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// stsClient interface for the caller identity lookup (allows mocking)
type stsClient interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// clientFactory returns the KMS client of a region.
type clientFactory func(region string) kmsClient

func newClientFactory(awsConfig aws.Config) clientFactory {
	return func(region string) kmsClient {
		return kms.NewFromConfig(awsConfig, func(o *kms.Options) {
			o.Region = region
		})
	}
}

// loadAWSConfig returns cfg when set, otherwise the default AWS configuration,
// optionally pinned to region.
func loadAWSConfig(ctx context.Context, cfg *aws.Config, region string) (aws.Config, error) {
	if cfg != nil {
		return *cfg, nil
	}
	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("%w: failed to load AWS config: %w", locker.ErrInvalidArgument, err)
	}
	return awsConfig, nil
}

// resolveAccountID looks up the account of the current credentials.
func resolveAccountID(ctx context.Context, client stsClient) (string, error) {
	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("%w: failed to resolve caller identity: %w", locker.ErrInvalidArgument, err)
	}
	if out.Account == nil || *out.Account == "" {
		return "", fmt.Errorf("%w: caller identity returned no account", locker.ErrInvalidArgument)
	}
	return *out.Account, nil
}
