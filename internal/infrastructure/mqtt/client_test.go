package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// fakeToken completes immediately with err, or never when pending is set.
type fakeToken struct {
	err     error
	pending bool
}

func (t *fakeToken) Wait() bool                     { return !t.pending }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.pending }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// fakePaho is an in-memory pahomqtt.Client.
type fakePaho struct {
	mu           sync.Mutex
	connected    bool
	disconnects  int
	published    []string
	handlers     map[string]pahomqtt.MessageHandler
	subscribeErr error
	connectToken *fakeToken
}

func newFakePaho() *fakePaho {
	return &fakePaho{connected: true, handlers: make(map[string]pahomqtt.MessageHandler)}
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePaho) IsConnectionOpen() bool { return f.IsConnected() }

func (f *fakePaho) Connect() pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectToken != nil {
		return f.connectToken
	}
	f.connected = true
	return &fakeToken{}
}

func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnects++
}

func (f *fakePaho) Publish(topic string, _ byte, _ bool, _ interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, topic)
	return &fakeToken{}
}

func (f *fakePaho) Subscribe(topic string, _ byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return &fakeToken{err: f.subscribeErr}
	}
	f.handlers[topic] = cb
	return &fakeToken{}
}

func (f *fakePaho) SubscribeMultiple(map[string]byte, pahomqtt.MessageHandler) pahomqtt.Token {
	return &fakeToken{}
}

func (f *fakePaho) Unsubscribe(topics ...string) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range topics {
		delete(f.handlers, t)
	}
	return &fakeToken{}
}

func (f *fakePaho) AddRoute(string, pahomqtt.MessageHandler) {}

func (f *fakePaho) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

// fakeMessage is a minimal pahomqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 7 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func newTestClient(f *fakePaho) *Client {
	return &Client{
		client:        f,
		subscriptions: make(map[string]subscription),
		connected:     true,
	}
}

type recordedNotice struct {
	source DisconnectSource
	cause  error
}

func recordNotices(c *Client) *[]recordedNotice {
	var got []recordedNotice
	var mu sync.Mutex
	c.SetOnDisconnect(func(source DisconnectSource, cause error) {
		mu.Lock()
		got = append(got, recordedNotice{source, cause})
		mu.Unlock()
	})
	return &got
}

// =============================================================================
// Connect Tests
// =============================================================================

func TestOpen(t *testing.T) {
	f := newFakePaho()
	f.connected = false
	c := &Client{client: f, subscriptions: make(map[string]subscription)}

	if err := c.open(time.Second); err != nil {
		t.Fatalf("open() error = %v", err)
	}
	if !c.IsConnected() {
		t.Error("IsConnected() should be true after open()")
	}
}

func TestOpen_Refused(t *testing.T) {
	f := newFakePaho()
	f.connected = false
	f.connectToken = &fakeToken{err: errors.New("not authorized")}
	c := &Client{client: f, subscriptions: make(map[string]subscription)}

	if err := c.open(time.Second); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("open() error = %v, want ErrConnectionFailed", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() should be false after a refused connect")
	}
}

func TestOpen_TimeoutStopsClient(t *testing.T) {
	f := newFakePaho()
	f.connected = false
	f.connectToken = &fakeToken{pending: true}
	c := &Client{client: f, subscriptions: make(map[string]subscription)}

	err := c.open(10 * time.Millisecond)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("open() error = %v, want ErrConnectionFailed", err)
	}

	f.mu.Lock()
	disconnects := f.disconnects
	f.mu.Unlock()
	if disconnects != 1 {
		t.Errorf("paho Disconnect calls = %d, want 1 after timeout", disconnects)
	}
}

// =============================================================================
// Disconnect Notification Tests
// =============================================================================

func TestDisconnect_NotifiesUserSource(t *testing.T) {
	f := newFakePaho()
	c := newTestClient(f)
	got := recordNotices(c)

	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	if len(*got) != 1 {
		t.Fatalf("notifications = %d, want 1", len(*got))
	}
	if (*got)[0].source != SourceUser || (*got)[0].cause != nil {
		t.Errorf("notification = %+v, want user source with nil cause", (*got)[0])
	}
	if f.disconnects != 1 {
		t.Errorf("paho Disconnect calls = %d, want 1", f.disconnects)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Disconnect()")
	}
}

func TestConnectionLost_NotifiesOtherSource(t *testing.T) {
	c := newTestClient(newFakePaho())
	got := recordNotices(c)
	cause := errors.New("connection reset")

	c.handleConnectionLost(cause)

	if len(*got) != 1 {
		t.Fatalf("notifications = %d, want 1", len(*got))
	}
	if (*got)[0].source != SourceOther || !errors.Is((*got)[0].cause, cause) {
		t.Errorf("notification = %+v, want other source with cause", (*got)[0])
	}
}

func TestConnectionLost_NilCause(t *testing.T) {
	c := newTestClient(newFakePaho())
	got := recordNotices(c)

	c.handleConnectionLost(nil)

	if len(*got) != 1 || (*got)[0].cause == nil {
		t.Fatalf("notifications = %+v, want one with non-nil cause", *got)
	}
}

func TestDisconnect_NotifiesOnce(t *testing.T) {
	c := newTestClient(newFakePaho())
	got := recordNotices(c)

	c.handleConnectionLost(errors.New("broker gone"))
	_ = c.Disconnect()
	c.handleConnectionLost(errors.New("again"))

	if len(*got) != 1 {
		t.Fatalf("notifications = %d, want 1", len(*got))
	}
	if (*got)[0].source != SourceOther {
		t.Errorf("source = %v, want other (first notification wins)", (*got)[0].source)
	}
}

func TestSetOnDisconnect_DeliversPending(t *testing.T) {
	c := newTestClient(newFakePaho())

	c.handleConnectionLost(errors.New("lost before registration"))

	got := recordNotices(c)
	if len(*got) != 1 || (*got)[0].source != SourceOther {
		t.Fatalf("notifications = %+v, want pending other notification", *got)
	}

	// Replacing the callback does not replay it
	again := recordNotices(c)
	if len(*again) != 0 {
		t.Errorf("pending notification replayed: %+v", *again)
	}
}

func TestDisconnectNil(t *testing.T) {
	client := &Client{}
	if err := client.Disconnect(); err != nil {
		t.Errorf("Disconnect() on nil client error = %v, want nil", err)
	}
}

func TestDisconnectSource_String(t *testing.T) {
	if SourceUser.String() != "user" || SourceOther.String() != "other" {
		t.Errorf("String() = %q/%q", SourceUser.String(), SourceOther.String())
	}
}

// =============================================================================
// HealthCheck Tests
// =============================================================================

func TestHealthCheck(t *testing.T) {
	c := newTestClient(newFakePaho())

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v, want nil", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() expected error for cancelled context")
	}

	_ = c.Disconnect()
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Publish / Subscribe Tests
// =============================================================================

func TestPublish(t *testing.T) {
	f := newFakePaho()
	c := newTestClient(f)

	if err := c.Publish("sensors/kitchen", []byte("21.5"), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(f.published) != 1 || f.published[0] != "sensors/kitchen" {
		t.Errorf("published = %v", f.published)
	}
}

func TestPublishValidation(t *testing.T) {
	c := newTestClient(newFakePaho())

	if err := c.Publish("", []byte("x"), 1, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Publish(empty) error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("a/+", []byte("x"), 1, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Publish(wildcard) error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("a", []byte("x"), 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Publish(qos 3) error = %v, want ErrInvalidQoS", err)
	}

	_ = c.Disconnect()
	if err := c.Publish("a", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish(disconnected) error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribe_DeliversMessages(t *testing.T) {
	f := newFakePaho()
	c := newTestClient(f)

	received := make(chan Message, 1)
	err := c.Subscribe("sensors/#", 1, func(msg Message) error {
		received <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if subs := c.Subscriptions(); len(subs) != 1 || subs[0].Topic != "sensors/#" || c.SubscriptionCount() != 1 {
		t.Errorf("subscription not tracked")
	}

	f.handlers["sensors/#"](f, fakeMessage{topic: "sensors/kitchen", payload: []byte("21.5")})

	msg := <-received
	if msg.Topic != "sensors/kitchen" || string(msg.Payload) != "21.5" || msg.QoS != 1 || msg.MessageID != 7 {
		t.Errorf("message = %+v", msg)
	}
}

func TestSubscribe_HandlerPanicRecovered(t *testing.T) {
	f := newFakePaho()
	c := newTestClient(f)

	err := c.Subscribe("boom", 0, func(Message) error { panic("handler bug") })
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	// Must not panic
	f.handlers["boom"](f, fakeMessage{topic: "boom"})
}

func TestSubscribe_FailureNotTracked(t *testing.T) {
	f := newFakePaho()
	f.subscribeErr = errors.New("not authorized")
	c := newTestClient(f)

	err := c.Subscribe("secret/#", 1, func(Message) error { return nil })
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Fatalf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Error("failed subscription still tracked")
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := newTestClient(newFakePaho())

	if err := c.Subscribe("a/#/b", 1, func(Message) error { return nil }); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(bad filter) error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("a", 3, func(Message) error { return nil }); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe(qos 3) error = %v, want ErrInvalidQoS", err)
	}
	if err := c.Subscribe("a", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil handler) error = %v, want ErrSubscribeFailed", err)
	}
}

func TestUnsubscribeAndList(t *testing.T) {
	c := newTestClient(newFakePaho())
	noop := func(Message) error { return nil }

	for _, topic := range []string{"b/#", "a/+", "c"} {
		if err := c.Subscribe(topic, 1, noop); err != nil {
			t.Fatalf("Subscribe(%q) error = %v", topic, err)
		}
	}

	subs := c.Subscriptions()
	if len(subs) != 3 || subs[0].Topic != "a/+" || subs[2].Topic != "c" {
		t.Errorf("Subscriptions() = %+v, want sorted a/+, b/#, c", subs)
	}

	if err := c.Unsubscribe("b/#"); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if subs := c.Subscriptions(); c.SubscriptionCount() != 2 || subs[0].Topic != "a/+" || subs[1].Topic != "c" {
		t.Error("subscription still tracked after Unsubscribe()")
	}

	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(empty) error = %v, want ErrInvalidTopic", err)
	}
}
