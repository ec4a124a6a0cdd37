package broker

import (
	"strings"
	"time"

	"github.com/notifyhub/notification-pipeline/internal/domain"
)

const (
	NotificationsExchange = "notifications.exchange"

	WhatsAppExchange        = "whatsapp.exchange"
	WhatsAppQueue           = "whatsapp.queue"
	WhatsAppRoutingKey      = "whatsapp.send"
	WhatsAppRetryQueue      = "whatsapp.retry.queue"
	WhatsAppRetryRoutingKey = "whatsapp.retry"
	WhatsAppDLX             = "whatsapp.dlx"
	WhatsAppDLQ             = "whatsapp.dlq"
	WhatsAppDLQRoutingKey   = "whatsapp.dlq"

	// MaxPriority is the highest priority a notification queue honours.
	MaxPriority uint8 = 10

	ExchangeDirect = "direct"
)

// NotificationQueue names the queue bound to one notification type.
func NotificationQueue(t domain.NotificationType) string {
	return "notifications." + strings.ToLower(string(t)) + ".queue"
}

type Exchange struct {
	Name string
	Kind string
}

type Queue struct {
	Name        string
	MaxPriority uint8

	// MessageTTL expires messages that sit in the queue this long.
	MessageTTL time.Duration

	// Expired messages are republished here.
	DeadLetterExchange   string
	DeadLetterRoutingKey string
}

type Binding struct {
	Queue      string
	Exchange   string
	RoutingKey string
}

type Topology struct {
	Exchanges []Exchange
	Queues    []Queue
	Bindings  []Binding
}

// DefaultTopology declares one priority queue per notification type and the
// WhatsApp send, retry and dead-letter queues. Messages parked on the retry
// queue expire after retryTTL and are dead-lettered back to the send queue.
func DefaultTopology(retryTTL time.Duration) Topology {
	t := Topology{
		Exchanges: []Exchange{
			{Name: NotificationsExchange, Kind: ExchangeDirect},
			{Name: WhatsAppExchange, Kind: ExchangeDirect},
			{Name: WhatsAppDLX, Kind: ExchangeDirect},
		},
	}

	for _, nt := range domain.NotificationTypes {
		q := NotificationQueue(nt)
		t.Queues = append(t.Queues, Queue{Name: q, MaxPriority: MaxPriority})
		t.Bindings = append(t.Bindings, Binding{Queue: q, Exchange: NotificationsExchange, RoutingKey: nt.RoutingKey()})
	}

	t.Queues = append(t.Queues,
		Queue{Name: WhatsAppQueue},
		Queue{
			Name:                 WhatsAppRetryQueue,
			MessageTTL:           retryTTL,
			DeadLetterExchange:   WhatsAppExchange,
			DeadLetterRoutingKey: WhatsAppRoutingKey,
		},
		Queue{Name: WhatsAppDLQ},
	)
	t.Bindings = append(t.Bindings,
		Binding{Queue: WhatsAppQueue, Exchange: WhatsAppExchange, RoutingKey: WhatsAppRoutingKey},
		Binding{Queue: WhatsAppRetryQueue, Exchange: WhatsAppExchange, RoutingKey: WhatsAppRetryRoutingKey},
		Binding{Queue: WhatsAppDLQ, Exchange: WhatsAppDLX, RoutingKey: WhatsAppDLQRoutingKey},
	)
	return t
}

// QueueNames lists every declared queue.
func (t Topology) QueueNames() []string {
	names := make([]string, 0, len(t.Queues))
	for _, q := range t.Queues {
		names = append(names, q.Name)
	}
	return names
}
