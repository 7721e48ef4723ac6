package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/moyu/internal/alert"
	"github.com/ayusman/moyu/internal/config"
)

type fakeToken struct{ err error }

func (t *fakeToken) Wait() bool                       { return true }
func (t *fakeToken) WaitTimeout(_ time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type message struct {
	topic    string
	retained bool
	payload  string
}

type fakeBroker struct {
	mu           sync.Mutex
	connected    bool
	publishErr   error
	messages     []message
	disconnected bool
	// block, when set, holds every Publish until it is closed.
	block chan struct{}
}

func (b *fakeBroker) Connect() paho.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = true
	return &fakeToken{}
}

func (b *fakeBroker) Disconnect(uint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
	b.disconnected = true
}

func (b *fakeBroker) Publish(topic string, _ byte, retained bool, payload interface{}) paho.Token {
	b.mu.Lock()
	block := b.block
	b.mu.Unlock()
	if block != nil {
		<-block
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return &fakeToken{err: b.publishErr}
	}
	var body string
	switch p := payload.(type) {
	case string:
		body = p
	case []byte:
		body = string(p)
	}
	b.messages = append(b.messages, message{topic: topic, retained: retained, payload: body})
	return &fakeToken{}
}

func (b *fakeBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func newTestClient(t *testing.T, prefix string) (*Client, *fakeBroker) {
	t.Helper()
	c, err := New(config.MQTT{Enabled: true, Broker: "localhost", ClientID: "test", TopicPrefix: prefix})
	require.NoError(t, err)
	fb := &fakeBroker{}
	c.client = fb
	return c, fb
}

func TestNew_Disabled(t *testing.T) {
	_, err := New(config.MQTT{Enabled: false})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestNew_MissingBroker(t *testing.T) {
	_, err := New(config.MQTT{Enabled: true})
	assert.Error(t, err)
}

func TestBrokerURL(t *testing.T) {
	assert.Equal(t, "tcp://broker.lan:1884", BrokerURL(config.MQTT{Broker: "broker.lan", Port: 1884}))
	assert.Equal(t, "tcp://broker.lan:1883", BrokerURL(config.MQTT{Broker: "broker.lan"}))
}

func TestTopics(t *testing.T) {
	c, _ := newTestClient(t, "office/desk/")
	assert.Equal(t, "office/desk/state", c.StateTopic())
	assert.Equal(t, "office/desk/alert", c.AlertTopic())

	c, _ = newTestClient(t, "")
	assert.Equal(t, "moyu/state", c.StateTopic())
}

func TestPublishState(t *testing.T) {
	c, fb := newTestClient(t, "moyu")
	require.NoError(t, c.Connect())

	require.NoError(t, c.PublishState(true))
	require.NoError(t, c.PublishState(false))

	require.Len(t, fb.messages, 2)
	assert.Equal(t, message{topic: "moyu/state", retained: true, payload: StatePresent}, fb.messages[0])
	assert.Equal(t, message{topic: "moyu/state", retained: true, payload: StateClear}, fb.messages[1])
}

func (b *fakeBroker) sent() []message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]message(nil), b.messages...)
}

func TestQueueState_DoesNotWaitForBroker(t *testing.T) {
	c, fb := newTestClient(t, "moyu")
	require.NoError(t, c.Connect())

	block := make(chan struct{})
	fb.mu.Lock()
	fb.block = block
	fb.mu.Unlock()

	start := time.Now()
	c.QueueState(true)
	c.QueueState(false)
	c.QueueState(true)
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	fb.mu.Lock()
	fb.block = nil
	fb.mu.Unlock()
	close(block)

	require.Eventually(t, func() bool {
		msgs := fb.sent()
		return len(msgs) > 0 && msgs[len(msgs)-1].payload == StatePresent
	}, 2*time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, len(fb.sent()), 2, "pending states are coalesced")

	c.Close()
	msgs := fb.sent()
	assert.Equal(t, StateClear, msgs[len(msgs)-1].payload)
	assert.True(t, fb.disconnected)
}

func TestPublishAlert(t *testing.T) {
	c, fb := newTestClient(t, "moyu")

	at := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)
	ev := &alert.Event{
		ID:           "abc",
		Time:         at,
		Faces:        2,
		Brightness:   97.5,
		Message:      "hi",
		SnapshotPath: "/tmp/people.jpg",
	}
	require.NoError(t, c.PublishAlert(ev))

	require.Len(t, fb.messages, 1)
	msg := fb.messages[0]
	assert.Equal(t, "moyu/alert", msg.topic)
	assert.False(t, msg.retained)

	var got AlertMessage
	require.NoError(t, json.Unmarshal([]byte(msg.payload), &got))
	assert.Equal(t, "abc", got.ID)
	assert.True(t, at.Equal(got.Time))
	assert.Equal(t, 2, got.Faces)
	assert.Equal(t, 97.5, got.Brightness)
	assert.Equal(t, "/tmp/people.jpg", got.Snapshot)
}

func TestPublish_Error(t *testing.T) {
	c, fb := newTestClient(t, "moyu")
	fb.publishErr = errors.New("not connected")

	err := c.PublishState(true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "moyu/state")
}

func TestClose_PublishesClear(t *testing.T) {
	c, fb := newTestClient(t, "moyu")
	require.NoError(t, c.Connect())

	c.Close()

	require.Len(t, fb.messages, 1)
	assert.Equal(t, StateClear, fb.messages[0].payload)
	assert.True(t, fb.disconnected)

	// Closing a disconnected client is a no-op.
	c.Close()
	assert.Len(t, fb.messages, 1)
}

func TestConnectionHandlers(t *testing.T) {
	c, _ := newTestClient(t, "moyu")
	assert.False(t, c.Connected())
	c.onConnectHandler(nil)
	assert.True(t, c.Connected())
	c.connectionLostHandler(nil, errors.New("eof"))
	assert.False(t, c.Connected())
}
