package stream

import (
	"context"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// Delivery is one message received from the subscription
type Delivery interface {
	Data() []byte
	Ack()
	Nack()
}

// Subscriber runs one streaming session, calling handle for each delivery.
// Receive blocks until ctx is done or the stream fails.
type Subscriber interface {
	Receive(ctx context.Context, handle func(context.Context, Delivery)) error
}

// PubSubSubscriber reads Gmail push notifications from a Pub/Sub subscription
type PubSubSubscriber struct {
	client *pubsub.Client
	sub    *pubsub.Subscription
}

// NewPubSubSubscriber connects to the subscription. maxOutstanding bounds
// the number of syncs in flight at once.
func NewPubSubSubscriber(ctx context.Context, projectID, subscription string, maxOutstanding int, opts ...option.ClientOption) (*PubSubSubscriber, error) {
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, err
	}

	sub := client.Subscription(subscription)
	sub.ReceiveSettings.MaxOutstandingMessages = maxOutstanding
	sub.ReceiveSettings.NumGoroutines = 1

	return &PubSubSubscriber{client: client, sub: sub}, nil
}

// Receive implements Subscriber
func (s *PubSubSubscriber) Receive(ctx context.Context, handle func(context.Context, Delivery)) error {
	return s.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		handle(ctx, pubsubDelivery{msg})
	})
}

// Close releases the client connection
func (s *PubSubSubscriber) Close() error {
	return s.client.Close()
}

type pubsubDelivery struct {
	msg *pubsub.Message
}

func (d pubsubDelivery) Data() []byte { return d.msg.Data }
func (d pubsubDelivery) Ack()         { d.msg.Ack() }
func (d pubsubDelivery) Nack()        { d.msg.Nack() }
