package command

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/mqtt-cli/internal/archive"
	"github.com/nerrad567/mqtt-cli/internal/infrastructure/config"
	"github.com/nerrad567/mqtt-cli/internal/infrastructure/database"
	"github.com/nerrad567/mqtt-cli/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt-cli/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqtt-cli/internal/session"
	"github.com/nerrad567/mqtt-cli/internal/shell"
)

// removalPoll is how often closeSession checks that a replaced session has
// left the Registry.
const removalPoll = 5 * time.Millisecond

// Options configures an Executor.
type Options struct {
	Config *config.Config
	Logger *logging.Logger

	// Dialer defaults to MQTTDialer(Logger).
	Dialer Dialer

	// Ack answers unexpected disconnects of the active session. Nil
	// disables the prompt.
	Ack shell.Acknowledger

	// Context is passed to disconnect handlers. Defaults to
	// context.Background.
	Context context.Context
}

// Executor runs commands against the set of managed sessions.
//
// Commands are executed on a single goroutine. Disconnect notifications
// arrive on protocol goroutines and are processed by the DisconnectHandler.
type Executor struct {
	cfg      *config.Config
	logger   *logging.Logger
	registry *session.Registry
	context  *shell.Context
	handler  *shell.DisconnectHandler
	dialer   Dialer
	baseCtx  context.Context

	handlers sync.WaitGroup

	mu   sync.Mutex
	done map[*session.Session]chan struct{}

	archiveMu sync.Mutex
	archive   *archive.Archive
}

// NewExecutor creates an Executor with an empty Registry and Shell Context.
func NewExecutor(opts Options) *Executor {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = MQTTDialer(logger)
	}
	baseCtx := opts.Context
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	registry := session.NewRegistry()
	registry.SetLogger(logger)
	sc := shell.NewContext()

	return &Executor{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		context:  sc,
		handler:  shell.NewDisconnectHandler(registry, sc, opts.Ack, logger),
		dialer:   dialer,
		baseCtx:  baseCtx,
		done:     make(map[*session.Session]chan struct{}),
	}
}

// Registry returns the session registry.
func (e *Executor) Registry() *session.Registry {
	return e.registry
}

// ShellContext returns the shell's active-session context.
func (e *Executor) ShellContext() *shell.Context {
	return e.context
}

// Connect opens a session for req and registers it. With activate set the
// new session also becomes the active one.
//
// An existing session with the same identity is disconnected first, so a
// late disconnect of the old connection can never remove the new entry.
func (e *Executor) Connect(ctx context.Context, req ConnectRequest, activate bool) (*session.Session, error) {
	logger := e.commandLogger(ctx, req.Debug, req.Verbose)

	tlsCfg, err := buildTLS(req.TLS)
	if err != nil {
		return nil, err
	}

	e.applyDefaults(&req)
	id := session.Identity{ClientID: req.ClientID, Host: req.Host}

	if old, ok := e.registry.Lookup(id); ok {
		logger.DebugContext(ctx, "replacing existing session", "client", id.String())
		if err := e.closeSession(ctx, old); err != nil {
			return nil, err
		}
	}

	opts := mqtt.NewConnectOptions(req.Host, req.Port, req.ClientID)
	opts.Version = req.Version
	opts.Username = req.Username
	opts.Password = req.Password
	opts.KeepAlive = req.KeepAlive
	opts.CleanSession = req.CleanSession
	opts.Will = req.Will
	opts.TLS = tlsCfg
	opts.ConnectTimeout = time.Duration(e.cfg.Defaults.ConnectTimeout) * time.Second

	logger.DebugContext(ctx, "connecting",
		"client", id.String(),
		"port", req.Port,
		"version", req.Version,
		"tls", tlsCfg != nil,
	)

	client, err := e.dialer.Dial(opts)
	if err != nil {
		return nil, err
	}

	sess := &session.Session{
		Identity:    id,
		Port:        req.Port,
		Version:     req.Version,
		Conn:        client,
		Debug:       req.Debug,
		Verbose:     req.Verbose,
		ConnectedAt: time.Now(),
	}

	done := make(chan struct{})
	e.mu.Lock()
	e.done[sess] = done
	e.mu.Unlock()

	e.registry.Register(id, sess)
	if activate {
		e.context.SetActive(sess)
	}

	// A connection lost before the callback is installed is delivered
	// synchronously by SetOnDisconnect. That delivery is moved off the
	// command goroutine because it may wait for the shell.
	var wiring atomic.Bool
	wiring.Store(true)
	client.SetOnDisconnect(func(source mqtt.DisconnectSource, cause error) {
		ev := sess.DisconnectEvent(source, cause)
		if wiring.Load() && source != mqtt.SourceUser {
			e.handlers.Add(1)
			go func() {
				defer e.handlers.Done()
				e.handle(sess, ev, done)
			}()
			return
		}
		e.handle(sess, ev, done)
	})
	wiring.Store(false)

	logger.DebugContext(ctx, "connected", "client", id.String())
	return sess, nil
}

func (e *Executor) handle(sess *session.Session, ev session.Event, done chan struct{}) {
	e.handler.Handle(e.baseCtx, ev)

	e.mu.Lock()
	delete(e.done, sess)
	e.mu.Unlock()
	close(done)
}

// Done returns a channel that is closed once sess has ended and its
// disconnect has been handled.
func (e *Executor) Done(sess *session.Session) <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ch, ok := e.done[sess]; ok {
		return ch
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// Disconnect closes the session registered under id.
func (e *Executor) Disconnect(ctx context.Context, id session.Identity) error {
	sess, ok := e.registry.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrClientNotFound, id)
	}
	return e.closeSession(ctx, sess)
}

// DisconnectAll closes every registered session.
func (e *Executor) DisconnectAll(ctx context.Context) {
	for _, sess := range e.registry.Sessions() {
		if err := e.closeSession(ctx, sess); err != nil {
			e.logger.WarnContext(ctx, "disconnect failed", "client", sess.Identity.String(), "error", err)
		}
	}
}

// closeSession disconnects sess and returns once its entry has left the
// Registry. A session whose connection was already lost may still have
// its handler in flight; the handler removes the entry before it waits for
// any acknowledgement, so polling for the removal cannot deadlock.
func (e *Executor) closeSession(ctx context.Context, sess *session.Session) error {
	if err := sess.Conn.Disconnect(); err != nil {
		return fmt.Errorf("disconnect %s: %w", sess.Identity, err)
	}

	ticker := time.NewTicker(removalPoll)
	defer ticker.Stop()
	for {
		current, ok := e.registry.Lookup(sess.Identity)
		if !ok || current != sess {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close disconnects all sessions, waits for outstanding disconnect
// handlers and closes the archive.
func (e *Executor) Close(ctx context.Context) error {
	e.DisconnectAll(ctx)
	e.handlers.Wait()

	e.archiveMu.Lock()
	defer e.archiveMu.Unlock()
	if e.archive == nil {
		return nil
	}
	err := e.archive.Close()
	e.archive = nil
	return err
}

// Resolve finds a session by client identifier and optional host. An
// empty clientID selects the active session. Without a host the client
// identifier must be unique across hosts.
func (e *Executor) Resolve(clientID, host string) (*session.Session, error) {
	if clientID == "" {
		active := e.context.Active()
		if active == nil {
			return nil, ErrNoActiveSession
		}
		clientID, host = active.Identity.ClientID, active.Identity.Host
	}

	if host != "" {
		id := session.Identity{ClientID: clientID, Host: host}
		sess, ok := e.registry.Lookup(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrClientNotFound, id)
		}
		return sess, nil
	}

	found := e.registry.FindByClientID(clientID)
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrClientNotFound, clientID)
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousClient, clientID)
	}
}

// Publish sends payload to every topic through the session under id.
func (e *Executor) Publish(ctx context.Context, id session.Identity, topics []string, payload []byte, qos byte, retained bool) error {
	sess, ok := e.registry.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrClientNotFound, id)
	}
	if len(topics) == 0 {
		return ErrMissingTopic
	}

	logger := e.commandLogger(ctx, sess.Debug, sess.Verbose)
	for _, topic := range topics {
		if err := sess.Conn.Publish(topic, payload, qos, retained); err != nil {
			return err
		}
		logger.DebugContext(ctx, "published",
			"client", id.String(),
			"topic", topic,
			"qos", qos,
			"retained", retained,
			"bytes", len(payload),
		)
	}
	return nil
}

// Subscribe subscribes the session under id to every topic, delivering
// messages to sink.
func (e *Executor) Subscribe(ctx context.Context, id session.Identity, topics []string, qos byte, sink *Sink) error {
	sess, ok := e.registry.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrClientNotFound, id)
	}
	if len(topics) == 0 {
		return ErrMissingTopic
	}

	logger := e.commandLogger(ctx, sess.Debug, sess.Verbose)
	handler := sink.handler(sess, e.commandLogger(e.baseCtx, sess.Debug, sess.Verbose))
	for _, topic := range topics {
		if err := sess.Conn.Subscribe(topic, qos, handler); err != nil {
			return err
		}
		logger.DebugContext(ctx, "subscribed", "client", id.String(), "topic", topic, "qos", qos)
	}
	return nil
}

// Unsubscribe removes the session's subscriptions to topics.
func (e *Executor) Unsubscribe(ctx context.Context, id session.Identity, topics []string) error {
	sess, ok := e.registry.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrClientNotFound, id)
	}
	if len(topics) == 0 {
		return ErrMissingTopic
	}

	for _, topic := range topics {
		if err := sess.Conn.Unsubscribe(topic); err != nil {
			return err
		}
		e.logger.DebugContext(ctx, "unsubscribed", "client", id.String(), "topic", topic)
	}
	return nil
}

// Archive opens the message archive on first use.
func (e *Executor) Archive(ctx context.Context) (*archive.Archive, error) {
	e.archiveMu.Lock()
	defer e.archiveMu.Unlock()

	if e.archive != nil {
		return e.archive, nil
	}
	if !e.cfg.Archive.Enabled() {
		return nil, ErrArchiveDisabled
	}

	a, err := archive.Open(ctx, database.Config{
		Path:        e.cfg.Archive.Path,
		WALMode:     e.cfg.Archive.WALMode,
		BusyTimeout: e.cfg.Archive.BusyTimeout,
	})
	if err != nil {
		return nil, err
	}
	e.logger.DebugContext(ctx, "archive opened", "path", a.Path())
	e.archive = a
	return a, nil
}

// applyDefaults fills unset request fields from the configuration.
func (e *Executor) applyDefaults(req *ConnectRequest) {
	d := e.cfg.Defaults
	if req.Host == "" {
		req.Host = d.Host
	}
	if req.Port == 0 {
		req.Port = d.Port
	}
	if req.Version == "" {
		req.Version = d.MQTTVersion
	}
	if req.KeepAlive == 0 {
		req.KeepAlive = time.Duration(d.KeepAlive) * time.Second
	}
	if req.ClientID == "" {
		req.ClientID = GenerateClientID(d.ClientIDPrefix, req.Version)
	}
}

// GenerateClientID returns prefix, version and eight hex characters of a
// random UUID, e.g. "mqttClient3-1f0c9a2b". The result stays within the
// 23 character limit of MQTT 3.1 for the default prefix.
func GenerateClientID(prefix, version string) string {
	return prefix + version + "-" + uuid.NewString()[:8]
}

func (e *Executor) commandLogger(ctx context.Context, debug, verbose bool) *logging.Logger {
	return scopedLogger(ctx, e.logger, debug, verbose)
}
