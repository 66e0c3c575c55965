package pub

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/suite"
)

type fakeSNS struct {
	in  *sns.PublishInput
	err error
}

func (f *fakeSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.in = params
	return &sns.PublishOutput{}, f.err
}

type UnitTestSuite struct {
	suite.Suite
}

func TestUnitTestSuite(t *testing.T) {
	suite.Run(t, new(UnitTestSuite))
}

func (s *UnitTestSuite) TestSNSPublishRaw() {
	fake := &fakeSNS{}
	p := &SNSPublisher{cli: fake}
	arn := "arn:aws:sns:us-east-1:000000000000:availsync-dead"
	s.NoError(p.PublishRaw(context.Background(), arn, []byte(`{"attempts":4}`)))

	s.Require().NotNil(fake.in)
	s.Equal(arn, *fake.in.TopicArn)
	s.Equal(`{"attempts":4}`, *fake.in.Message)
	s.Equal(EventTerminalFailure, *fake.in.MessageAttributes["event"].StringValue)
	s.Equal("application/json", *fake.in.MessageAttributes["content-type"].StringValue)

	fake.err = errors.New("throttled")
	s.Error(p.PublishRaw(context.Background(), arn, []byte(`{}`)))
}

func (s *UnitTestSuite) TestLogPublisherNeverFails() {
	s.NoError(LogPublisher{}.PublishRaw(context.Background(), "", []byte(`{}`)))
}
