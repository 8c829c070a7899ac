package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/nerrad567/mqtt-cli/internal/infrastructure/config"
	"github.com/nerrad567/mqtt-cli/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt-cli/internal/shell"
)

// version is overridable at link time:
//
//	go build -ldflags "-X github.com/nerrad567/mqtt-cli/internal/command.version=1.2.0"
var version = "dev" //nolint:gochecknoglobals

// ErrSessionEnded is returned by sub when the broker side ends the session.
var ErrSessionEnded = errors.New("session ended")

// Version returns the build version.
func Version() string {
	return version
}

// App holds the dependencies of one mqtt-cli invocation.
type App struct {
	Config *config.Config
	Logger *logging.Logger

	// Dialer defaults to the paho adapter.
	Dialer Dialer

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// ReadPassword answers a bare --password. Defaults to a terminal
	// prompt when Stdin is a terminal.
	ReadPassword PasswordReader
}

// Execute loads the configuration and runs args as one mqtt-cli command.
// Failures are logged before they are returned.
func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return err
	}

	logOut := stderr
	if strings.EqualFold(cfg.Logging.Output, "stdout") {
		logOut = stdout
	}

	app := &App{
		Config: cfg,
		Logger: logging.NewWithWriter(logOut, cfg.Logging, version),
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
	}
	if f, ok := stdin.(*os.File); ok {
		app.ReadPassword = TerminalPassword(f, stderr)
	}
	return app.Run(ctx, args)
}

// Run dispatches args[0] to its command.
func (a *App) Run(ctx context.Context, args []string) error {
	a.setDefaults()

	if len(args) == 0 {
		a.usage(a.Stdout)
		return nil
	}

	switch name, rest := args[0], args[1:]; name {
	case "pub", "publish":
		return a.runPublish(ctx, rest)
	case "sub", "subscribe":
		return a.runSubscribe(ctx, rest)
	case "shell", "sh":
		return a.runShell(ctx, rest)
	case "version", "--version":
		fmt.Fprintf(a.Stdout, "mqtt-cli %s\n", version)
		return nil
	case "help", "--help":
		a.usage(a.Stdout)
		return nil
	default:
		err := fmt.Errorf("%w: %s", ErrUnknownCommand, name)
		fmt.Fprintln(a.Stderr, err)
		a.usage(a.Stderr)
		return err
	}
}

func (a *App) setDefaults() {
	if a.Config == nil {
		a.Config = config.Default()
	}
	if a.Logger == nil {
		a.Logger = logging.Default()
	}
	if a.Stdin == nil {
		a.Stdin = strings.NewReader("")
	}
	if a.Stdout == nil {
		a.Stdout = io.Discard
	}
	if a.Stderr == nil {
		a.Stderr = io.Discard
	}
	if a.ReadPassword == nil {
		a.ReadPassword = noPasswordReader
	}
}

func (a *App) newExecutor(ctx context.Context, ack shell.Acknowledger) *Executor {
	return NewExecutor(Options{
		Config:  a.Config,
		Logger:  a.Logger,
		Dialer:  a.Dialer,
		Ack:     ack,
		Context: ctx,
	})
}

// parse parses args into fs. A --help request is answered by pflag and
// reported as handled.
func parse(fs *flag.FlagSet, args []string) (handled bool, err error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return true, nil
		}
		return true, err
	}
	return false, nil
}

// runPublish connects, publishes to every topic and disconnects.
func (a *App) runPublish(ctx context.Context, args []string) error {
	fs := newFlagSet("mqtt pub", a.Stderr)
	var cf connectFlags
	var pf publishFlags
	cf.register(fs, a.Config.Defaults)
	pf.register(fs)
	if handled, err := parse(fs, args); handled {
		return err
	}

	qos, err := pf.validate(fs)
	if err != nil {
		return report(ctx, a.Logger, err, cf.detailed())
	}
	req, err := cf.request(a.ReadPassword)
	if err != nil {
		return report(ctx, a.Logger, err, cf.detailed())
	}

	exec := a.newExecutor(ctx, nil)
	defer exec.Close(context.WithoutCancel(ctx))

	sess, err := exec.Connect(ctx, req, false)
	if err != nil {
		return report(ctx, a.Logger, err, cf.detailed())
	}
	if err := exec.Publish(ctx, sess.Identity, pf.topics, []byte(pf.message), qos, pf.retain); err != nil {
		return report(ctx, a.Logger, err, cf.detailed())
	}
	return nil
}

// runSubscribe connects, subscribes and delivers messages until ctx is
// cancelled or the broker ends the session.
func (a *App) runSubscribe(ctx context.Context, args []string) error {
	fs := newFlagSet("mqtt sub", a.Stderr)
	var cf connectFlags
	var sf subscribeFlags
	cf.register(fs, a.Config.Defaults)
	sf.register(fs)
	if handled, err := parse(fs, args); handled {
		return err
	}

	qos, err := sf.validate()
	if err != nil {
		return report(ctx, a.Logger, err, cf.detailed())
	}
	req, err := cf.request(a.ReadPassword)
	if err != nil {
		return report(ctx, a.Logger, err, cf.detailed())
	}

	exec := a.newExecutor(ctx, nil)
	defer exec.Close(context.WithoutCancel(ctx))

	sinkOpts := sf.sinkOptions(a.Stdout)
	if sf.archive {
		arch, err := exec.Archive(ctx)
		if err != nil {
			return report(ctx, a.Logger, err, cf.detailed())
		}
		sinkOpts.Archive = arch
	}
	sink, err := NewSink(sinkOpts)
	if err != nil {
		return report(ctx, a.Logger, err, cf.detailed())
	}

	sess, err := exec.Connect(ctx, req, false)
	if err != nil {
		return report(ctx, a.Logger, err, cf.detailed())
	}
	if err := exec.Subscribe(ctx, sess.Identity, sf.topics, qos, sink); err != nil {
		return report(ctx, a.Logger, err, cf.detailed())
	}

	select {
	case <-ctx.Done():
		return nil
	case <-exec.Done(sess):
		err := fmt.Errorf("%w: %s", ErrSessionEnded, sess.Identity)
		return report(ctx, a.Logger, err, cf.detailed())
	}
}

// runShell starts the interactive shell.
func (a *App) runShell(ctx context.Context, args []string) error {
	fs := newFlagSet("mqtt shell", a.Stderr)
	if handled, err := parse(fs, args); handled {
		return err
	}

	ack := shell.NewLineAck(a.Stdout)
	exec := a.newExecutor(ctx, ack)
	sh := newShellCommands(a, exec, a.Stdout)

	fmt.Fprintf(a.Stdout, "mqtt-cli %s shell. Type help for the list of commands.\n", version)
	err := shell.NewREPL(a.Stdin, a.Stdout, exec.ShellContext(), ack, sh.run).Run(ctx)

	if cerr := exec.Close(context.WithoutCancel(ctx)); cerr != nil {
		a.Logger.WarnContext(ctx, "closing archive", "error", cerr)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *App) usage(w io.Writer) {
	fmt.Fprint(w, `Usage: mqtt <command> [flags]

Commands:
  pub      Publish a message to one or more topics
  sub      Subscribe to topics and print received messages
  shell    Start the interactive shell
  version  Print the version
  help     Show this help

Run "mqtt <command> --help" for the flags of a command.
`)
}
