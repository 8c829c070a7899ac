package command

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/mqtt-cli/internal/infrastructure/config"
	"github.com/nerrad567/mqtt-cli/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt-cli/internal/infrastructure/mqtt"
)

// =============================================================================
// Fake protocol client
// =============================================================================

type published struct {
	topic    string
	payload  string
	qos      byte
	retained bool
}

type fakeSub struct {
	qos     byte
	handler mqtt.MessageHandler
}

type notice struct {
	source mqtt.DisconnectSource
	cause  error
}

// fakeClient follows the adapter's notification contract: at most one
// disconnect notification, held back until a callback is installed.
type fakeClient struct {
	opts mqtt.ConnectOptions

	mu           sync.Mutex
	onDisconnect mqtt.DisconnectFunc
	ended        bool
	pending      *notice
	published    []published
	subs         map[string]fakeSub
	disconnects  int
	publishErr   error
	healthErr    error
}

func newFakeClient(opts mqtt.ConnectOptions) *fakeClient {
	return &fakeClient{opts: opts, subs: make(map[string]fakeSub)}
}

func (c *fakeClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, published{topic, string(payload), qos, retained})
	return nil
}

func (c *fakeClient) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[topic] = fakeSub{qos: qos, handler: handler}
	return nil
}

func (c *fakeClient) Unsubscribe(topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[topic]; !ok {
		return fmt.Errorf("%w: %s", mqtt.ErrUnsubscribeFailed, topic)
	}
	delete(c.subs, topic)
	return nil
}

func (c *fakeClient) Subscriptions() []mqtt.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]mqtt.Subscription, 0, len(c.subs))
	for topic, s := range c.subs {
		out = append(out, mqtt.Subscription{Topic: topic, QoS: s.qos})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}

func (c *fakeClient) SubscriptionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

func (c *fakeClient) HealthCheck(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return mqtt.ErrNotConnected
	}
	return c.healthErr
}

func (c *fakeClient) Disconnect() error {
	c.mu.Lock()
	c.disconnects++
	c.mu.Unlock()
	c.notify(mqtt.SourceUser, nil)
	return nil
}

// lose simulates the broker dropping the connection.
func (c *fakeClient) lose(cause error) {
	c.notify(mqtt.SourceOther, cause)
}

func (c *fakeClient) notify(source mqtt.DisconnectSource, cause error) {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}
	c.ended = true
	callback := c.onDisconnect
	if callback == nil {
		c.pending = &notice{source, cause}
	}
	c.mu.Unlock()

	if callback != nil {
		callback(source, cause)
	}
}

func (c *fakeClient) SetOnDisconnect(callback mqtt.DisconnectFunc) {
	c.mu.Lock()
	c.onDisconnect = callback
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	if pending != nil && callback != nil {
		callback(pending.source, pending.cause)
	}
}

// deliver hands a message to the handler subscribed on topic.
func (c *fakeClient) deliver(t *testing.T, topic, payload string) {
	t.Helper()
	c.mu.Lock()
	sub, ok := c.subs[topic]
	c.mu.Unlock()
	if !ok {
		t.Fatalf("no subscription on %q", topic)
	}
	if err := sub.handler(mqtt.Message{Topic: topic, Payload: []byte(payload), QoS: sub.qos}); err != nil {
		t.Fatalf("handler error = %v", err)
	}
}

func (c *fakeClient) publishedMessages() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.published...)
}

func (c *fakeClient) disconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

// fakeDialer records every dial. With err set dialling fails; with
// lostOnDial set the connection is lost before the caller sees it.
type fakeDialer struct {
	mu         sync.Mutex
	clients    []*fakeClient
	err        error
	lostOnDial error
	onDial     func(*fakeClient)
}

func (d *fakeDialer) Dial(opts mqtt.ConnectOptions) (Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	c := newFakeClient(opts)
	if d.lostOnDial != nil {
		c.lose(d.lostOnDial)
	}
	if d.onDial != nil {
		d.onDial(c)
	}
	d.clients = append(d.clients, c)
	return c, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.clients)
}

func (d *fakeDialer) last(t *testing.T) *fakeClient {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.clients) == 0 {
		t.Fatal("nothing dialled")
	}
	return d.clients[len(d.clients)-1]
}

// =============================================================================
// Logging and acknowledgement
// =============================================================================

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// records decodes every JSON log line written so far.
func (b *syncBuffer) records(t *testing.T) []map[string]any {
	t.Helper()
	var out []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(b.String()))
	for scanner.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("decode log line %q: %v", scanner.Text(), err)
		}
		out = append(out, rec)
	}
	return out
}

// find returns the first record with the given level and message.
func (b *syncBuffer) find(t *testing.T, level, msg string) map[string]any {
	t.Helper()
	for _, rec := range b.records(t) {
		if rec["level"] == level && rec["msg"] == msg {
			return rec
		}
	}
	return nil
}

func newTestLogger(level string) (*logging.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return logging.NewWithWriter(buf, config.LoggingConfig{Level: level, Format: "json"}, "test"), buf
}

// blockingAck counts requests; each wait blocks until release is closed.
type blockingAck struct {
	mu       sync.Mutex
	requests int
	release  chan struct{}
}

func newBlockingAck() *blockingAck {
	return &blockingAck{release: make(chan struct{})}
}

func (a *blockingAck) Request(ctx context.Context) func() {
	a.mu.Lock()
	a.requests++
	a.mu.Unlock()
	return func() {
		select {
		case <-a.release:
		case <-ctx.Done():
		}
	}
}

func (a *blockingAck) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.requests
}

// =============================================================================
// Executor fixture
// =============================================================================

type fixture struct {
	cfg    *config.Config
	dialer *fakeDialer
	logs   *syncBuffer
	exec   *Executor
}

func newFixture(t *testing.T, ack *blockingAck) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Archive.Path = ""
	logger, logs := newTestLogger("info")

	f := &fixture{cfg: cfg, dialer: &fakeDialer{}, logs: logs}
	opts := Options{Config: cfg, Logger: logger, Dialer: f.dialer}
	if ack != nil {
		opts.Ack = ack
	}
	f.exec = NewExecutor(opts)
	t.Cleanup(func() {
		if ack != nil {
			select {
			case <-ack.release:
			default:
				close(ack.release)
			}
		}
		_ = f.exec.Close(context.Background())
	})
	return f
}
