package sqs

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"
	"github.com/upb/outbound-request-tracker/config"
	"github.com/upb/outbound-request-tracker/repositories"
	"go.uber.org/zap"
)

// Error codes SQS uses for a create that conflicts with an existing queue
const (
	errCodeQueueAlreadyExists = "QueueAlreadyExists"
	errCodeQueueNameExists    = "QueueNameExists"
)

// API is the subset of the SQS client used by QueueRepository
type API interface {
	CreateQueue(ctx context.Context, params *sqs.CreateQueueInput, optFns ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error)
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// QueueRepository implements repositories.QueueRepository on Amazon SQS.
// Queue addresses are queue URLs.
type QueueRepository struct {
	api    API
	logger *zap.Logger
}

// NewQueueRepository creates a new SQS queue repository
func NewQueueRepository(api API, logger *zap.Logger) *QueueRepository {
	return &QueueRepository{
		api:    api,
		logger: logger,
	}
}

// NewClient builds an SQS client from the default AWS credential chain
func NewClient(ctx context.Context, cfg config.SQSConfig) (*sqs.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// CreateQueue creates a standard queue with the given name
func (r *QueueRepository) CreateQueue(ctx context.Context, name string) (string, error) {
	out, err := r.api.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName: aws.String(name),
	})
	if err != nil {
		if isQueueAlreadyExists(err) {
			return "", fmt.Errorf("%w: %s", repositories.ErrQueueAlreadyExists, name)
		}
		return "", fmt.Errorf("failed to create sqs queue %s: %w", name, err)
	}

	url := aws.ToString(out.QueueUrl)
	r.logger.Debug("sqs queue created", zap.String("queue", name), zap.String("url", url))
	return url, nil
}

// ResolveAddress returns the URL of the named queue
func (r *QueueRepository) ResolveAddress(ctx context.Context, name string) (string, error) {
	out, err := r.api.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get sqs queue url for %s: %w", name, err)
	}

	url := aws.ToString(out.QueueUrl)
	if url == "" {
		return "", fmt.Errorf("sqs returned empty queue url for %s", name)
	}
	return url, nil
}

// Send publishes payload as the message body
func (r *QueueRepository) Send(ctx context.Context, address string, payload []byte) (string, error) {
	out, err := r.api.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(address),
		MessageBody: aws.String(string(payload)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to send sqs message: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

func isQueueAlreadyExists(err error) bool {
	var exists *types.QueueNameExists
	if errors.As(err, &exists) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case errCodeQueueAlreadyExists, errCodeQueueNameExists:
			return true
		}
	}
	return false
}
