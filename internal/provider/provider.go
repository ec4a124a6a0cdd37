// Package provider holds the thin clients that talk to external channel
// providers. Every client translates provider failures into the
// resilience.Retryable / resilience.NonRetryable taxonomy before returning.
package provider

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/notifyhub/notification-pipeline/internal/domain"
)

// WhatsAppSender delivers one rendered WhatsApp message.
type WhatsAppSender interface {
	Send(ctx context.Context, phone, body string, msg domain.WhatsappMessage) error
}

// SESAPI is the subset of the SES client used here, so tests can mock it.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SNSAPI is the subset of the SNS client used here, so tests can mock it.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}
