package repository

import (
	"context"
	"fmt"

	"MT5Hub/internal/domain/models"
	xhttp "MT5Hub/pkg/http"
	"MT5Hub/pkg/kafka"
	applogger "MT5Hub/pkg/logger"
	"MT5Hub/pkg/queue"
)

// LogNotifier writes reports to the structured log.
type LogNotifier struct {
	l *applogger.Logger
}

func NewLogNotifier(l *applogger.Logger) *LogNotifier {
	return &LogNotifier{l: l.With(applogger.String("component", "report_log"))}
}

func (n *LogNotifier) Send(_ context.Context, r models.Report) error {
	n.l.Info("report",
		applogger.String("id", r.ID),
		applogger.String("kind", string(r.Kind)),
		applogger.Any("channels", r.Channels),
		applogger.Any("payload", r.Payload),
	)
	return nil
}

func (n *LogNotifier) Close() error { return nil }

// KafkaNotifier publishes each report as one JSON message keyed by kind.
type KafkaNotifier struct {
	producer *kafka.Producer
	topic    string
}

func NewKafkaNotifier(p *kafka.Producer, topic string) *KafkaNotifier {
	return &KafkaNotifier{producer: p, topic: topic}
}

func (n *KafkaNotifier) Send(ctx context.Context, r models.Report) error {
	return n.producer.Publish(ctx, n.topic, []byte(r.Kind), r)
}

func (n *KafkaNotifier) Close() error { return n.producer.Close() }

// QueueNotifier pushes reports onto a Redis list for external workers.
type QueueNotifier struct {
	q      queue.QueueService
	closer func() error
}

func NewQueueNotifier(q queue.QueueService, closer func() error) *QueueNotifier {
	return &QueueNotifier{q: q, closer: closer}
}

func (n *QueueNotifier) Send(ctx context.Context, r models.Report) error {
	return n.q.PublishMessage(ctx, string(r.Kind), r)
}

func (n *QueueNotifier) Close() error {
	if n.closer == nil {
		return nil
	}
	return n.closer()
}

// WebhookNotifier POSTs each report envelope to a URL.
type WebhookNotifier struct {
	client *xhttp.Client
	url    string
}

func NewWebhookNotifier(c *xhttp.Client, url string) *WebhookNotifier {
	return &WebhookNotifier{client: c, url: url}
}

func (n *WebhookNotifier) Send(ctx context.Context, r models.Report) error {
	if err := n.client.PostJSON(ctx, n.url, r, nil); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}

func (n *WebhookNotifier) Close() error { return nil }
