package database

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"go.uber.org/zap"

	"github.com/fairdinkum/course-backend/config"
)

// NewAWSConfig builds a shared aws.Config from app configuration. Static
// credentials are optional; without them the default chain applies.
func NewAWSConfig(ctx context.Context, cfg config.AWS) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

// NewDynamoClient creates a DynamoDB client, honoring an optional endpoint
// override for local development.
func NewDynamoClient(awsCfg aws.Config, endpoint string, logger *zap.Logger) *dynamodb.Client {
	var optFns []func(*dynamodb.Options)
	if endpoint != "" {
		optFns = append(optFns, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	client := dynamodb.NewFromConfig(awsCfg, optFns...)
	logger.Info("DynamoDB client ready", zap.String("region", awsCfg.Region))
	return client
}

// NewSESClient creates an SES client on the shared AWS config.
func NewSESClient(awsCfg aws.Config) *ses.Client {
	return ses.NewFromConfig(awsCfg)
}
