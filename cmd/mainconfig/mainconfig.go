// Package mainconfig builds the AWS SDK configuration shared by the DynamoDB
// booking store and the SES lead alert sender.
package mainconfig

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	appconfig "github.com/wolfman30/retirement-leads-platform/internal/config"
)

// LoadAWSConfig resolves region and credentials from the app config, falling
// back to the default AWS chain when no static keys are set. AWS_ENDPOINT_OVERRIDE
// points every client at a local emulator such as LocalStack.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOptions(cfg)...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("mainconfig: load aws config: %w", err)
	}
	applyEndpointOverride(&awsCfg, cfg.AWSEndpointOverride)
	return awsCfg, nil
}

func loadOptions(cfg *appconfig.Config) []func(*config.LoadOptions) error {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}

	keyID := strings.TrimSpace(cfg.AWSAccessKeyID)
	secret := strings.TrimSpace(cfg.AWSSecretAccessKey)
	if keyID != "" && secret != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(keyID, secret, ""),
		))
	}
	return opts
}

func applyEndpointOverride(awsCfg *aws.Config, endpoint string) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return
	}
	awsCfg.BaseEndpoint = aws.String(endpoint)
}
