// Package pub ships terminal queue failures out of the process.
package pub

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

const EventTerminalFailure = "action.terminal_failure"

type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SNSPublisher struct{ cli snsAPI }

func NewSNS(c *sns.Client) *SNSPublisher { return &SNSPublisher{cli: c} }

// PublishRaw publishes payload to the topic arn.
func (s *SNSPublisher) PublishRaw(ctx context.Context, arn string, payload []byte) error {
	_, err := s.cli.Publish(ctx, &sns.PublishInput{
		TopicArn: &arn,
		Message:  aws.String(string(payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"content-type": {DataType: aws.String("String"), StringValue: aws.String("application/json")},
			"event":        {DataType: aws.String("String"), StringValue: aws.String(EventTerminalFailure)},
		},
	})
	return err
}
