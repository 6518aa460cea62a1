// Package mqttclient publishes transcription events to an MQTT broker and
// receives remote commands.
package mqttclient

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// CommandHandler receives a command name from "<prefix>/cmd/<name>".
type CommandHandler func(name string, payload []byte)

type Client struct {
	conn      mqtt.Client
	prefix    string
	connected atomic.Bool
	log       zerolog.Logger
	handler   atomic.Value // CommandHandler
}

type Options struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string
	Username    string
	Password    string
	Log         zerolog.Logger
}

// Connect dials the broker. The status topic carries a retained "online"
// while connected and "offline" as the last will.
func Connect(opts Options) (*Client, error) {
	c := &Client{
		prefix: strings.Trim(opts.TopicPrefix, "/"),
		log:    opts.Log,
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetWill(c.StatusTopic(), "offline", 1, true).
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
	token := c.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}

	return c, nil
}

// SetCommandHandler installs the handler for remote commands.
func (c *Client) SetCommandHandler(h CommandHandler) {
	c.handler.Store(h)
}

// EventTopic is where events of type typ are published.
func (c *Client) EventTopic(typ string) string { return c.prefix + "/events/" + typ }

// StatusTopic carries the retained online/offline state.
func (c *Client) StatusTopic() string { return c.prefix + "/status" }

func (c *Client) commandFilter() string { return c.prefix + "/cmd/+" }

// Publish sends payload at QoS 1 and waits for the broker to accept it.
func (c *Client) Publish(topic string, retained bool, payload []byte) error {
	token := c.conn.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	return token.Error()
}

func (c *Client) onConnect(client mqtt.Client) {
	c.connected.Store(true)
	c.log.Info().Str("commands", c.commandFilter()).Msg("mqtt connected, subscribing")

	client.Publish(c.StatusTopic(), 1, true, "online")
	token := client.Subscribe(c.commandFilter(), 0, nil)
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
	name, ok := commandName(c.prefix, msg.Topic())
	if !ok {
		c.log.Debug().Str("topic", msg.Topic()).Msg("mqtt message ignored")
		return
	}
	h, _ := c.handler.Load().(CommandHandler)
	if h == nil {
		c.log.Debug().Str("command", name).Msg("mqtt command received with no handler")
		return
	}
	c.log.Info().Str("command", name).Msg("mqtt command received")
	h(name, msg.Payload())
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

func (c *Client) Close() {
	c.log.Info().Msg("disconnecting mqtt client")
	if c.connected.Load() {
		c.conn.Publish(c.StatusTopic(), 1, true, "offline").WaitTimeout(time.Second)
	}
	c.conn.Disconnect(1000)
}

// commandName extracts <name> from "<prefix>/cmd/<name>".
func commandName(prefix, topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, prefix+"/cmd/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
