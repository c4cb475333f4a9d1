// Package notifications publishes operational alerts to SNS. Alerts are best
// effort: a failed publish is logged and never propagates into the request
// path that raised it.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

type AlertType string

const (
	// AlertKeyPoolDegraded fires when every credential is in cooldown and
	// one had to be force-reused.
	AlertKeyPoolDegraded AlertType = "key_pool_degraded"
	AlertProviderDown    AlertType = "provider_down"
	AlertWeatherAPIDown  AlertType = "weather_api_down"
)

type Alert struct {
	Type    AlertType         `json:"type"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	At      time.Time         `json:"at"`
}

// SNSNotifier publishes to one topic. A nil notifier is valid and drops
// everything, so callers never branch on configuration.
type SNSNotifier struct {
	client   *sns.Client
	topicARN string
}

// New builds a notifier, or nil when no topic is configured.
func New(ctx context.Context, region, topicARN string) (*SNSNotifier, error) {
	if topicARN == "" {
		return nil, nil
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &SNSNotifier{client: sns.NewFromConfig(cfg), topicARN: topicARN}, nil
}

func NewWithConfig(cfg aws.Config, topicARN string) *SNSNotifier {
	return &SNSNotifier{client: sns.NewFromConfig(cfg), topicARN: topicARN}
}

func (n *SNSNotifier) Alert(ctx context.Context, alert Alert) {
	if n == nil {
		return
	}
	if alert.At.IsZero() {
		alert.At = time.Now().UTC()
	}

	body, err := json.Marshal(alert)
	if err != nil {
		slog.Error("alert marshal failed", "type", alert.Type, "error", err)
		return
	}

	_, err = n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(fmt.Sprintf("farmgateway: %s", alert.Type)),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"Type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(alert.Type)),
			},
		},
	})
	if err != nil {
		slog.Error("alert publish failed", "type", alert.Type, "error", err)
		return
	}

	slog.Info("alert published", "type", alert.Type)
}
