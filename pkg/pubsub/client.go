// Package pubsub adapts Google Cloud Pub/Sub v2 to the eventbus interfaces.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/eventbus"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoSubscriptions   = errors.New("pubsub subscription name is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

const (
	kindTopic        = "topics"
	kindSubscription = "subscriptions"
)

// Client publishes to topics and hands out subscribers. One ordered
// publisher is kept per topic for the life of the client.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig

	mu     sync.Mutex
	topics map[string]*pubsub.Publisher
}

// NewClient dials Pub/Sub and fails when a configured subscription is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}

	raw, err := pubsub.NewClient(ctx, project, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	c := &Client{client: raw, projectID: project, cfg: cfg, topics: map[string]*pubsub.Publisher{}}
	if err := c.checkSubscriptions(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}

	logg.Info(logg.WithField(ctx, "project", project), "pubsub client initialized")
	return c, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	if js := strings.TrimSpace(gcp.CredentialsJSON); js != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(js))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

func subscriptionNames(cfg config.PubSubConfig) []string {
	var names []string
	for _, name := range []string{cfg.OrdersSubscription, cfg.NotificationSubscription} {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func (c *Client) checkSubscriptions(ctx context.Context) error {
	names := subscriptionNames(c.cfg)
	if len(names) == 0 {
		return errNoSubscriptions
	}
	for _, name := range names {
		req := &pubsubpb.GetSubscriptionRequest{Subscription: c.subscriptionResourceName(name)}
		_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, req)
		switch {
		case status.Code(err) == codes.NotFound:
			return fmt.Errorf("subscription %q does not exist", name)
		case err != nil:
			return fmt.Errorf("lookup subscription %q: %w", name, err)
		}
	}
	return nil
}

// resource expands a short id into projects/<p>/<kind>/<id>. Names already in
// that form pass through.
func (c *Client) resource(kind, name string) string {
	name = strings.TrimSpace(name)
	if c == nil || name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+kind+"/") {
		return name
	}
	if c.projectID == "" {
		return ""
	}
	return "projects/" + c.projectID + "/" + kind + "/" + name
}

func (c *Client) subscriptionResourceName(name string) string {
	return c.resource(kindSubscription, name)
}

func (c *Client) topicResourceName(name string) string {
	return c.resource(kindTopic, name)
}

// Subscription accepts an id or a full resource name.
func (c *Client) Subscription(name string) eventbus.Subscriber {
	full := c.subscriptionResourceName(name)
	if full == "" || c.client == nil {
		return nil
	}
	return &subscription{sub: c.client.Subscriber(full)}
}

func (c *Client) OrdersSubscription() eventbus.Subscriber {
	return c.Subscription(c.cfg.OrdersSubscription)
}

// NotificationSubscription is nil when no subscription is configured.
func (c *Client) NotificationSubscription() eventbus.Subscriber {
	return c.Subscription(c.cfg.NotificationSubscription)
}

// Publish blocks until the server acks. A failed ordered publish pauses its
// key, so the key is resumed before returning the error.
func (c *Client) Publish(ctx context.Context, topic string, msg eventbus.Message) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	full := c.topicResourceName(topic)
	if full == "" {
		return fmt.Errorf("%w: %q", eventbus.ErrTopicNotConfigured, topic)
	}

	pub := c.publisherFor(full)
	_, err := pub.Publish(ctx, &pubsub.Message{
		Data:        msg.Data,
		Attributes:  msg.Attributes,
		OrderingKey: msg.Key,
	}).Get(ctx)
	if err != nil && msg.Key != "" {
		pub.ResumePublish(msg.Key)
	}
	return err
}

func (c *Client) publisherFor(topic string) *pubsub.Publisher {
	c.mu.Lock()
	defer c.mu.Unlock()
	pub, ok := c.topics[topic]
	if !ok {
		pub = c.client.Publisher(topic)
		pub.EnableMessageOrdering = true
		c.topics[topic] = pub
	}
	return pub
}

// Ping re-checks that the configured subscriptions exist.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	return c.checkSubscriptions(ctx)
}

// Close flushes every topic publisher before closing the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for _, pub := range c.topics {
		pub.Stop()
	}
	c.topics = map[string]*pubsub.Publisher{}
	c.mu.Unlock()
	return c.client.Close()
}

type subscription struct {
	sub *pubsub.Subscriber
}

// Receive acks a message when handler succeeds and nacks it otherwise.
func (s *subscription) Receive(ctx context.Context, handler eventbus.Handler) error {
	return s.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		err := handler(ctx, eventbus.Delivery{ID: msg.ID, Data: msg.Data, Attributes: msg.Attributes})
		if err != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}
