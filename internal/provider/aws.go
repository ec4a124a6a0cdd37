package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/smithy-go"

	"github.com/notifyhub/notification-pipeline/internal/resilience"
)

// knownCodes maps AWS error codes to whether they are worth retrying.
var knownCodes = map[string]bool{
	"Throttling":                true,
	"ThrottlingException":       true,
	"ThrottledException":        true,
	"TooManyRequestsException":  true,
	"RequestLimitExceeded":      true,
	"ServiceUnavailable":        true,
	"InternalFailure":           true,
	"KMSThrottlingException":    true,
	"EndpointDisabledException": false,
}

// classifyAWS maps an SDK error onto the resilience taxonomy.
// Throttling and server faults are Retryable; client faults are NonRetryable.
func classifyAWS(op string, err error) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", op, err)

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if retry, known := knownCodes[apiErr.ErrorCode()]; known {
			if retry {
				return resilience.NewRetryable(wrapped)
			}
			return resilience.NewNonRetryable(wrapped)
		}
		if apiErr.ErrorFault() == smithy.FaultServer {
			return resilience.NewRetryable(wrapped)
		}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		code := respErr.HTTPStatusCode()
		if code == 429 || code >= 500 {
			return resilience.NewRetryable(wrapped)
		}
		return resilience.NewNonRetryable(wrapped)
	}

	if apiErr != nil {
		return resilience.NewNonRetryable(wrapped)
	}
	// no response at all: network trouble
	return resilience.NewRetryable(wrapped)
}

// SESClient sends plain-text and HTML email through Amazon SES.
type SESClient struct {
	api  SESAPI
	from string
}

func NewSESClient(api SESAPI, from string) *SESClient {
	return &SESClient{api: api, from: from}
}

func (c *SESClient) SendEmail(ctx context.Context, to, subject, body string) error {
	_, err := c.api.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
				Html: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(c.from),
	})
	return classifyAWS("ses send email", err)
}

// SNSClient pushes to mobile application endpoints through Amazon SNS.
type SNSClient struct {
	api SNSAPI
}

func NewSNSClient(api SNSAPI) *SNSClient {
	return &SNSClient{api: api}
}

// Push publishes body to a platform application endpoint ARN.
func (c *SNSClient) Push(ctx context.Context, endpointARN, body string) error {
	_, err := c.api.Publish(ctx, &sns.PublishInput{
		TargetArn: aws.String(endpointARN),
		Message:   aws.String(body),
	})
	return classifyAWS("sns publish", err)
}
