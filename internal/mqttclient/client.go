package mqttclient

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/snarg/whisper-relay/internal/events"
)

const publishTimeout = 5 * time.Second

// MessageHandler receives messages on the control topic.
type MessageHandler func(topic string, payload []byte)

// EventSource is the outbound event stream mirrored to the broker.
type EventSource interface {
	Subscribe(filter events.Filter) (<-chan events.Event, func())
}

// publisher is the subset of mqtt.Client used for mirroring.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
}

type Client struct {
	conn      mqtt.Client
	pub       publisher
	prefix    string
	connected atomic.Bool
	log       zerolog.Logger
	handler   MessageHandler
}

type Options struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string
	Username    string
	Password    string
	// Handler, if set, receives messages published to <prefix>/control.
	Handler MessageHandler
	Log     zerolog.Logger
}

// Connect dials the broker and blocks until the first connection attempt
// completes. opts.Log is used as given; callers tag it with a component.
func Connect(opts Options) (*Client, error) {
	c := newClient(opts)

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost).
		SetDefaultPublishHandler(c.onMessage)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	c.conn = mqtt.NewClient(clientOpts)
	c.pub = c.conn
	token := c.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}

	return c, nil
}

func newClient(opts Options) *Client {
	return &Client{
		prefix:  normalizePrefix(opts.TopicPrefix),
		log:     opts.Log,
		handler: opts.Handler,
	}
}

// ControlTopic is where inbound control requests are read from.
func (c *Client) ControlTopic() string { return c.prefix + "/control" }

// EventTopic returns the topic an outbound event type is mirrored to.
func (c *Client) EventTopic(eventType string) string { return c.prefix + "/" + eventType }

func (c *Client) onConnect(client mqtt.Client) {
	c.connected.Store(true)
	if c.handler == nil {
		c.log.Info().Str("prefix", c.prefix).Msg("mqtt connected")
		return
	}

	c.log.Info().Str("topic", c.ControlTopic()).Msg("mqtt connected, subscribing")
	token := client.Subscribe(c.ControlTopic(), 0, nil)
	token.Wait()
	if err := token.Error(); err != nil {
		c.log.Error().Err(err).Msg("mqtt subscribe failed")
	}
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.connected.Store(false)
	c.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
}

func (c *Client) onMessage(_ mqtt.Client, msg mqtt.Message) {
	if c.handler != nil {
		c.handler(msg.Topic(), msg.Payload())
		return
	}
	c.log.Debug().
		Str("topic", msg.Topic()).
		Int("payload_size", len(msg.Payload())).
		Msg("mqtt message received")
}

// Mirror publishes every outbound event to <prefix>/<event type> until ctx is
// done. Publishing is QoS 0; events published while disconnected are dropped.
func (c *Client) Mirror(ctx context.Context, source EventSource) {
	ch, cancel := source.Subscribe(events.Filter{})
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			c.publishEvent(e)
		}
	}
}

func (c *Client) publishEvent(e events.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		c.log.Warn().Err(err).Str("event", e.Type).Msg("mqtt marshal failed")
		return
	}
	token := c.pub.Publish(c.EventTopic(e.Type), 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		c.log.Warn().Str("event", e.Type).Msg("mqtt publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		c.log.Debug().Err(err).Str("event", e.Type).Msg("mqtt publish failed")
	}
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

func (c *Client) Close() {
	c.log.Info().Msg("disconnecting mqtt client")
	c.conn.Disconnect(1000)
}

func normalizePrefix(raw string) string {
	p := strings.Trim(strings.TrimSpace(raw), "/")
	if p == "" {
		return "whisper-relay"
	}
	return p
}
