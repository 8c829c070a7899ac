package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nerrad567/mqtt-cli/internal/archive"
	"github.com/nerrad567/mqtt-cli/internal/output"
	"github.com/nerrad567/mqtt-cli/internal/session"
)

// ErrMissingIdentifier is returned by switch without an argument.
var ErrMissingIdentifier = errors.New("identifier is required")

const clearScreen = "\033[H\033[2J"

const shellHelp = `Commands:
  con      Connect a new session and make it active
  dis      Disconnect a session (default: active session)
  switch   Make id[@host] the active session
  ls       List sessions (-s with subscriptions)
  pub      Publish with a session (default: active session)
  sub      Subscribe with a session (default: active session)
  unsub    Unsubscribe a session (default: active session)
  history  List archived messages
  archive  Show the archive status (--reset empties it)
  exit     Leave the active session, or the shell when none is active
  quit     Leave the shell
  cls      Clear the screen
  help     Show this help

Run "<command> --help" for the flags of a command.
`

// shellCommands runs the commands typed into the shell.
type shellCommands struct {
	app  *App
	exec *Executor
	out  io.Writer

	// detailed is set by the running command when it was given --debug or
	// --verbose, or acts on a session opened with one of them.
	detailed bool
}

func newShellCommands(app *App, exec *Executor, out io.Writer) *shellCommands {
	return &shellCommands{app: app, exec: exec, out: out}
}

// run executes one command line and reports whether the shell should exit.
func (s *shellCommands) run(ctx context.Context, args []string) bool {
	s.detailed = false

	var err error
	switch name, rest := args[0], args[1:]; name {
	case "con", "connect":
		err = s.connect(ctx, rest)
	case "dis", "disconnect":
		err = s.disconnect(ctx, rest)
	case "switch":
		err = s.switchTo(rest)
	case "ls", "list":
		err = s.list(ctx, rest)
	case "pub", "publish":
		err = s.publish(ctx, rest)
	case "sub", "subscribe":
		err = s.subscribe(ctx, rest)
	case "unsub", "unsubscribe":
		err = s.unsubscribe(ctx, rest)
	case "history":
		err = s.history(ctx, rest)
	case "archive":
		err = s.archiveStatus(ctx, rest)
	case "exit":
		if active := s.exec.ShellContext().Active(); active != nil {
			s.exec.ShellContext().ClearIfMatches(active.Identity)
			return false
		}
		return true
	case "quit":
		return true
	case "cls", "clear":
		fmt.Fprint(s.out, clearScreen)
	case "help":
		fmt.Fprint(s.out, shellHelp)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}

	if err != nil {
		report(ctx, s.app.Logger, err, s.detailed)
	}
	return false
}

func (s *shellCommands) connect(ctx context.Context, args []string) error {
	fs := newFlagSet("con", s.out)
	var cf connectFlags
	cf.register(fs, s.app.Config.Defaults)
	if handled, err := parse(fs, args); handled {
		return err
	}
	s.detailed = cf.detailed()

	req, err := cf.request(s.app.ReadPassword)
	if err != nil {
		return err
	}
	_, err = s.exec.Connect(ctx, req, true)
	return err
}

func (s *shellCommands) disconnect(ctx context.Context, args []string) error {
	fs := newFlagSet("dis", s.out)
	var clientID, host string
	fs.StringVarP(&clientID, "identifier", "i", "", "Client identifier (default: active session)")
	fs.StringVarP(&host, "host", "h", "", "Broker host, needed when the identifier is used on several hosts")
	if handled, err := parse(fs, args); handled {
		return err
	}
	if clientID == "" && fs.NArg() > 0 {
		id, _ := session.ParseIdentity(fs.Arg(0))
		clientID, host = id.ClientID, id.Host
	}

	sess, err := s.exec.Resolve(clientID, host)
	if err != nil {
		return err
	}
	s.detailed = sess.Debug || sess.Verbose
	return s.exec.Disconnect(ctx, sess.Identity)
}

func (s *shellCommands) switchTo(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("switch: %w", ErrMissingIdentifier)
	}
	id, _ := session.ParseIdentity(args[0])
	sess, err := s.exec.Resolve(id.ClientID, id.Host)
	if err != nil {
		return err
	}
	s.exec.ShellContext().SetActive(sess)
	return nil
}

func (s *shellCommands) list(ctx context.Context, args []string) error {
	fs := newFlagSet("ls", s.out)
	var subscriptions bool
	fs.BoolVarP(&subscriptions, "subscriptions", "s", false, "Show the subscriptions of each session")
	if handled, err := parse(fs, args); handled {
		return err
	}

	sessions := s.exec.Registry().Sessions()
	if len(sessions) == 0 {
		fmt.Fprintln(s.out, "no sessions")
		return nil
	}

	active := s.exec.ShellContext().Active()
	for _, sess := range sessions {
		marker := " "
		if active != nil && active.Identity == sess.Identity {
			marker = "*"
		}
		state := "connected"
		if err := sess.Conn.HealthCheck(ctx); err != nil {
			state = "lost"
		}
		fmt.Fprintf(s.out, "%s %s:%d  MQTT %s  since %s  %s  subs %d\n",
			marker, sess.Identity, sess.Port, sess.Version,
			sess.ConnectedAt.Format(time.RFC3339), state, sess.Conn.SubscriptionCount())

		if subscriptions {
			for _, sub := range sess.Conn.Subscriptions() {
				fmt.Fprintf(s.out, "    %s (qos %d)\n", sub.Topic, sub.QoS)
			}
		}
	}
	return nil
}

func (s *shellCommands) publish(ctx context.Context, args []string) error {
	fs := newFlagSet("pub", s.out)
	var tf targetFlag
	var pf publishFlags
	tf.register(fs)
	pf.register(fs)
	if handled, err := parse(fs, args); handled {
		return err
	}

	sess, err := s.target(tf)
	if err != nil {
		return err
	}
	qos, err := pf.validate(fs)
	if err != nil {
		return err
	}
	return s.exec.Publish(ctx, sess.Identity, pf.topics, []byte(pf.message), qos, pf.retain)
}

func (s *shellCommands) subscribe(ctx context.Context, args []string) error {
	fs := newFlagSet("sub", s.out)
	var tf targetFlag
	var sf subscribeFlags
	tf.register(fs)
	sf.register(fs)
	if handled, err := parse(fs, args); handled {
		return err
	}

	sess, err := s.target(tf)
	if err != nil {
		return err
	}
	qos, err := sf.validate()
	if err != nil {
		return err
	}

	opts := sf.sinkOptions(s.out)
	if sf.archive {
		arch, err := s.exec.Archive(ctx)
		if err != nil {
			return err
		}
		opts.Archive = arch
	}
	sink, err := NewSink(opts)
	if err != nil {
		return err
	}
	return s.exec.Subscribe(ctx, sess.Identity, sf.topics, qos, sink)
}

func (s *shellCommands) unsubscribe(ctx context.Context, args []string) error {
	fs := newFlagSet("unsub", s.out)
	var tf targetFlag
	var topics []string
	tf.register(fs)
	fs.StringArrayVarP(&topics, "topic", "t", nil, "Topic filter to unsubscribe from (repeatable)")
	if handled, err := parse(fs, args); handled {
		return err
	}

	sess, err := s.target(tf)
	if err != nil {
		return err
	}
	return s.exec.Unsubscribe(ctx, sess.Identity, topics)
}

func (s *shellCommands) history(ctx context.Context, args []string) error {
	fs := newFlagSet("history", s.out)
	var filter archive.Filter
	var b64 bool
	var target string
	fs.StringVarP(&target, "identifier", "i", "", "Only messages received by id or id@host")
	fs.StringVarP(&filter.Topic, "topic", "t", "", "Only messages on this topic")
	fs.IntVarP(&filter.Limit, "limit", "n", 20, "Maximum number of messages")
	fs.BoolVarP(&b64, "base64", "b", false, "Print payloads base64 encoded")
	if handled, err := parse(fs, args); handled {
		return err
	}
	if target != "" {
		id, _ := session.ParseIdentity(target)
		filter.ClientID, filter.Host = id.ClientID, id.Host
	}

	arch, err := s.exec.Archive(ctx)
	if err != nil {
		return err
	}
	msgs, err := arch.Recent(ctx, filter)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		fmt.Fprintf(s.out, "%s  %s@%s  %s\n",
			m.ReceivedAt.Local().Format(time.RFC3339),
			m.ClientID, m.Host,
			output.Line(m.Topic, output.Encode(m.Payload, b64)))
	}
	return nil
}

func (s *shellCommands) archiveStatus(ctx context.Context, args []string) error {
	fs := newFlagSet("archive", s.out)
	var reset bool
	fs.BoolVar(&reset, "reset", false, "Delete every archived message")
	if handled, err := parse(fs, args); handled {
		return err
	}

	arch, err := s.exec.Archive(ctx)
	if err != nil {
		return err
	}
	if reset {
		if err := arch.Reset(ctx); err != nil {
			return err
		}
	}

	st, err := arch.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "archive %s\n", st.Path)
	fmt.Fprintf(s.out, "  messages  %d\n", st.Messages)
	fmt.Fprintf(s.out, "  schema    %s (%d pending)\n", strings.Join(st.Applied, ","), len(st.Pending))
	return nil
}

// target resolves the session named by tf, or the active one.
func (s *shellCommands) target(tf targetFlag) (*session.Session, error) {
	id := tf.identity()
	sess, err := s.exec.Resolve(id.ClientID, id.Host)
	if err != nil {
		return nil, err
	}
	s.detailed = sess.Debug || sess.Verbose
	return sess, nil
}
