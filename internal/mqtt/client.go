// Package mqtt publishes presence state and alerts to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/ayusman/moyu/internal/alert"
	"github.com/ayusman/moyu/internal/config"
)

// Payloads published on the state topic.
const (
	StatePresent = "present"
	StateClear   = "clear"
)

const (
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 250 // ms
)

// ErrDisabled is returned by New when MQTT is turned off in the configuration.
var ErrDisabled = errors.New("mqtt disabled")

// NewClientFunc creates the underlying paho client. Tests replace it.
var NewClientFunc = paho.NewClient

// broker is the subset of paho.Client the publisher uses.
type broker interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	IsConnected() bool
}

// Client publishes presence events. All methods are safe for concurrent use.
type Client struct {
	cfg    config.MQTT
	prefix string
	client broker

	mu        sync.Mutex
	connected bool

	// Queued state publishes; one pending value, latest wins.
	states    chan bool
	stop      chan struct{}
	loopDone  chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// New configures a client for cfg. It does not connect.
func New(cfg config.MQTT) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt.broker is not set")
	}

	c := &Client{
		cfg:      cfg,
		prefix:   strings.TrimSuffix(cfg.TopicPrefix, "/"),
		states:   make(chan bool, 1),
		stop:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	if c.prefix == "" {
		c.prefix = "moyu"
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(BrokerURL(cfg))
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetConnectionLostHandler(c.connectionLostHandler)
	opts.SetOnConnectHandler(c.onConnectHandler)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)
	// Retained "clear" so subscribers see a dead publisher as absent.
	opts.SetWill(c.StateTopic(), StateClear, 1, true)

	c.client = NewClientFunc(opts)
	return c, nil
}

// BrokerURL returns the tcp:// URL for cfg.
func BrokerURL(cfg config.MQTT) string {
	port := cfg.Port
	if port == 0 {
		port = 1883
	}
	return fmt.Sprintf("tcp://%s:%d", cfg.Broker, port)
}

// StateTopic is the retained presence topic.
func (c *Client) StateTopic() string { return c.prefix + "/state" }

// AlertTopic receives one JSON message per fired alert.
func (c *Client) AlertTopic() string { return c.prefix + "/alert" }

// Connect dials the broker and waits for the first connection.
func (c *Client) Connect() error {
	log.Infof("Connecting to MQTT broker %s", BrokerURL(c.cfg))
	token := c.client.Connect()
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("connect to %s: timed out", BrokerURL(c.cfg))
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to %s: %w", BrokerURL(c.cfg), err)
	}
	return nil
}

// Connected reports whether the last connection attempt succeeded.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// PublishState publishes the debounced presence state as a retained message.
func (c *Client) PublishState(present bool) error {
	payload := StateClear
	if present {
		payload = StatePresent
	}
	return c.publish(c.StateTopic(), true, payload)
}

// QueueState publishes the presence state in the background and returns at
// once. If an earlier state is still waiting it is replaced.
func (c *Client) QueueState(present bool) {
	c.startOnce.Do(func() { go c.stateLoop() })

	select {
	case c.states <- present:
		return
	default:
	}
	select {
	case <-c.states:
	default:
	}
	select {
	case c.states <- present:
	default:
	}
}

func (c *Client) stateLoop() {
	defer close(c.loopDone)
	for {
		select {
		case <-c.stop:
			return
		case present := <-c.states:
			if err := c.PublishState(present); err != nil {
				log.WithError(err).Debug("Failed to publish presence state")
			}
		}
	}
}

// PublishAlert publishes ev as JSON on the alert topic.
func (c *Client) PublishAlert(ev *alert.Event) error {
	payload, err := json.Marshal(NewAlertMessage(ev))
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	return c.publish(c.AlertTopic(), false, payload)
}

// Close stops queued publishing, publishes a final clear state and
// disconnects.
func (c *Client) Close() {
	c.stopOnce.Do(func() {
		close(c.stop)
		// The loop only runs once QueueState was called.
		started := true
		c.startOnce.Do(func() { started = false })
		if started {
			<-c.loopDone
		}
	})

	if c.client == nil || !c.client.IsConnected() {
		return
	}
	if err := c.PublishState(false); err != nil {
		log.WithError(err).Debug("Final MQTT state publish failed")
	}
	c.client.Disconnect(disconnectQuiesce)
	log.Info("MQTT client disconnected")
}

func (c *Client) publish(topic string, retained bool, payload interface{}) error {
	token := c.client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (c *Client) connectionLostHandler(_ paho.Client, err error) {
	log.WithError(err).Warn("MQTT connection lost, reconnecting")
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

func (c *Client) onConnectHandler(_ paho.Client) {
	log.Infof("Connected to MQTT broker %s", BrokerURL(c.cfg))
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
}

// AlertMessage is the JSON body published on the alert topic.
type AlertMessage struct {
	ID         string    `json:"id"`
	Time       time.Time `json:"time"`
	Faces      int       `json:"faces"`
	Brightness float64   `json:"brightness"`
	Message    string    `json:"message,omitempty"`
	Snapshot   string    `json:"snapshot,omitempty"`
}

// NewAlertMessage converts ev into its published form.
func NewAlertMessage(ev *alert.Event) AlertMessage {
	return AlertMessage{
		ID:         ev.ID,
		Time:       ev.Time.UTC(),
		Faces:      ev.Faces,
		Brightness: ev.Brightness,
		Message:    ev.Message,
		Snapshot:   ev.SnapshotPath,
	}
}
