// Package natsutil provides typed NATS subjects carrying JSON payloads with
// OpenTelemetry trace propagation through message headers.
package natsutil

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// RetryHeader counts redeliveries of a message that failed processing.
const RetryHeader = "X-Retry-Count"

// natsHeaderCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// Conn is the slice of *nats.Conn the helpers need.
type Conn interface {
	PublishMsg(msg *nats.Msg) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	QueueSubscribe(subject, queue string, cb nats.MsgHandler) (*nats.Subscription, error)
}

var _ Conn = (*nats.Conn)(nil)

// Subject binds a subject name to its payload type.
type Subject[T any] struct {
	Name string
}

// NewSubject declares a typed subject.
func NewSubject[T any](name string) Subject[T] {
	return Subject[T]{Name: name}
}

// Encode builds the outgoing message for v with trace context from ctx.
func (s Subject[T]) Encode(ctx context.Context, v T) (*nats.Msg, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("natsutil: encode %s: %w", s.Name, err)
	}
	msg := nats.NewMsg(s.Name)
	msg.Data = data
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	return msg, nil
}

// Decode parses a received message and returns the propagated context.
func (s Subject[T]) Decode(msg *nats.Msg) (context.Context, T, error) {
	var v T
	if err := json.Unmarshal(msg.Data, &v); err != nil {
		return nil, v, fmt.Errorf("natsutil: decode %s: %w", s.Name, err)
	}
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*natsHeaderCarrier)(msg))
	return ctx, v, nil
}

// Publish serializes v as JSON and publishes it.
func (s Subject[T]) Publish(ctx context.Context, nc Conn, v T) error {
	msg, err := s.Encode(ctx, v)
	if err != nil {
		return err
	}
	return nc.PublishMsg(msg)
}

// Handler receives decoded payloads alongside the raw message.
type Handler[T any] func(ctx context.Context, v T, msg *nats.Msg)

// Subscribe registers h for every message on the subject. Malformed payloads
// go to onErr when set and are otherwise dropped.
func (s Subject[T]) Subscribe(nc Conn, h Handler[T], onErr func(error)) (*nats.Subscription, error) {
	return nc.Subscribe(s.Name, s.dispatch(h, onErr))
}

// QueueSubscribe is Subscribe within a queue group, so only one member
// of the group sees each message.
func (s Subject[T]) QueueSubscribe(nc Conn, queue string, h Handler[T], onErr func(error)) (*nats.Subscription, error) {
	return nc.QueueSubscribe(s.Name, queue, s.dispatch(h, onErr))
}

func (s Subject[T]) dispatch(h Handler[T], onErr func(error)) nats.MsgHandler {
	return func(msg *nats.Msg) {
		ctx, v, err := s.Decode(msg)
		if err != nil {
			if onErr != nil {
				onErr(err)
			}
			return
		}
		h(ctx, v, msg)
	}
}

// RetryCount reads the redelivery counter from msg, zero when absent.
func RetryCount(msg *nats.Msg) int {
	if msg == nil || msg.Header == nil {
		return 0
	}
	n, err := strconv.Atoi(msg.Header.Get(RetryHeader))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Redeliver republishes msg's payload and headers with the retry counter set.
func Redeliver(nc Conn, msg *nats.Msg, retries int) error {
	out := nats.NewMsg(msg.Subject)
	out.Data = msg.Data
	for k, vals := range msg.Header {
		for _, v := range vals {
			out.Header.Add(k, v)
		}
	}
	out.Header.Set(RetryHeader, strconv.Itoa(retries))
	return nc.PublishMsg(out)
}
