package command

import (
	"fmt"
	"io"
	"os"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/nerrad567/mqtt-cli/internal/infrastructure/config"
	"github.com/nerrad567/mqtt-cli/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqtt-cli/internal/session"
	"github.com/nerrad567/mqtt-cli/internal/tlsconf"
)

// passwordPrompt is the value --password takes when given without one.
const passwordPrompt = "<prompt>"

// PasswordReader reads a secret after showing prompt.
type PasswordReader func(prompt string) ([]byte, error)

// TerminalPassword reads a password from stdin with echo disabled. The
// prompt goes to w.
func TerminalPassword(stdin *os.File, w io.Writer) PasswordReader {
	return func(prompt string) ([]byte, error) {
		fd := int(stdin.Fd())
		if !term.IsTerminal(fd) {
			return nil, ErrPasswordPrompt
		}
		fmt.Fprint(w, prompt)
		pass, err := term.ReadPassword(fd)
		fmt.Fprintln(w)
		if err != nil {
			return nil, fmt.Errorf("reading password: %w", err)
		}
		return pass, nil
	}
}

func noPasswordReader(string) ([]byte, error) {
	return nil, ErrPasswordPrompt
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	fs.SortFlags = false
	fs.Usage = func() {
		fmt.Fprintf(out, "Usage: %s [flags]\n\nFlags:\n%s", name, fs.FlagUsages())
	}
	return fs
}

// connectFlags are shared by every command that opens a session.
type connectFlags struct {
	host      string
	port      int
	version   string
	clientID  string
	user      string
	password  string
	keepAlive int
	noClean   bool

	secure      bool
	caFiles     []string
	caPaths     []string
	cert        string
	key         string
	ciphers     string
	tlsVersions []string

	willTopic   string
	willMessage string
	willQoS     int
	willRetain  bool

	debug   bool
	verbose bool
}

func (f *connectFlags) register(fs *flag.FlagSet, d config.DefaultsConfig) {
	// ── connection ───────────────────────────────────────────────
	fs.StringVarP(&f.host, "host", "h", d.Host, "Broker host")
	fs.IntVarP(&f.port, "port", "p", d.Port, "Broker port")
	fs.StringVarP(&f.version, "mqttVersion", "V", d.MQTTVersion, "MQTT version (3, 3.1, 3.1.1)")
	fs.StringVarP(&f.clientID, "identifier", "i", "", "Client identifier (generated if empty)")
	fs.StringVarP(&f.user, "user", "u", "", "Username")
	fs.StringVarP(&f.password, "password", "P", "", "Password, prompted for when given without a value")
	fs.Lookup("password").NoOptDefVal = passwordPrompt
	fs.IntVarP(&f.keepAlive, "keepAlive", "k", d.KeepAlive, "Keep alive interval in seconds")
	fs.BoolVar(&f.noClean, "no-cleanStart", false, "Keep the broker session between connections")

	// ── TLS ──────────────────────────────────────────────────────
	fs.BoolVarP(&f.secure, "secure", "s", false, "Use TLS with the system trust store")
	fs.StringArrayVar(&f.caFiles, "cafile", nil, "Trusted CA certificate file (repeatable)")
	fs.StringArrayVar(&f.caPaths, "capath", nil, "Directory of trusted CA certificates (repeatable)")
	fs.StringVar(&f.cert, "cert", "", "Client certificate file")
	fs.StringVar(&f.key, "key", "", "Client private key file")
	fs.StringVar(&f.ciphers, "ciphers", "", "Cipher suites, separated by ':'")
	fs.StringArrayVar(&f.tlsVersions, "tls-version", nil, "TLS protocol versions (repeatable or comma separated)")

	// ── will ─────────────────────────────────────────────────────
	fs.StringVar(&f.willTopic, "willTopic", "", "Topic of the last will")
	fs.StringVar(&f.willMessage, "willMessage", "", "Payload of the last will")
	fs.IntVar(&f.willQoS, "willQualityOfService", 0, "QoS of the last will")
	fs.BoolVar(&f.willRetain, "willRetain", false, "Retain the last will")

	// ── output ───────────────────────────────────────────────────
	fs.BoolVarP(&f.debug, "debug", "d", false, "Log at debug level")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "Log at trace level")
}

func (f *connectFlags) detailed() bool {
	return f.debug || f.verbose
}

// request converts the parsed flags into a ConnectRequest, prompting for
// the password when asked to.
func (f *connectFlags) request(readPassword PasswordReader) (ConnectRequest, error) {
	req := ConnectRequest{
		Host:         f.host,
		Port:         f.port,
		Version:      f.version,
		ClientID:     f.clientID,
		Username:     f.user,
		KeepAlive:    time.Duration(f.keepAlive) * time.Second,
		CleanSession: !f.noClean,
		TLS: TLSRequest{
			UseDefault:   f.secure,
			CAFiles:      f.caFiles,
			CAPaths:      f.caPaths,
			CertFile:     f.cert,
			KeyFile:      f.key,
			CipherSuites: tlsconf.ParseList(f.ciphers),
		},
		Debug:   f.debug,
		Verbose: f.verbose,
	}
	for _, v := range f.tlsVersions {
		req.TLS.Protocols = append(req.TLS.Protocols, tlsconf.ParseList(v)...)
	}

	switch f.password {
	case "":
	case passwordPrompt:
		pass, err := readPassword("Enter password: ")
		if err != nil {
			return req, err
		}
		req.Password = pass
	default:
		req.Password = []byte(f.password)
	}

	if f.willTopic != "" {
		qos, err := qosByte(f.willQoS)
		if err != nil {
			return req, err
		}
		req.Will = &mqtt.Will{
			Topic:    f.willTopic,
			Payload:  []byte(f.willMessage),
			QoS:      qos,
			Retained: f.willRetain,
		}
	}

	return req, nil
}

// publishFlags select what a publish sends.
type publishFlags struct {
	topics  []string
	message string
	qos     int
	retain  bool
}

func (f *publishFlags) register(fs *flag.FlagSet) {
	fs.StringArrayVarP(&f.topics, "topic", "t", nil, "Topic to publish to (repeatable)")
	fs.StringVarP(&f.message, "message", "m", "", "Message payload")
	fs.IntVarP(&f.qos, "qos", "q", 0, "Quality of service (0, 1, 2)")
	fs.BoolVarP(&f.retain, "retain", "r", false, "Retain the message")
}

func (f *publishFlags) validate(fs *flag.FlagSet) (byte, error) {
	if len(f.topics) == 0 {
		return 0, ErrMissingTopic
	}
	if !fs.Changed("message") {
		return 0, ErrMissingMessage
	}
	return qosByte(f.qos)
}

// subscribeFlags select the subscriptions and where messages go.
type subscribeFlags struct {
	topics     []string
	qos        int
	file       string
	console    bool
	base64     bool
	showTopics bool
	archive    bool
}

func (f *subscribeFlags) register(fs *flag.FlagSet) {
	fs.StringArrayVarP(&f.topics, "topic", "t", nil, "Topic filter to subscribe to (repeatable)")
	fs.IntVarP(&f.qos, "qos", "q", 0, "Quality of service (0, 1, 2)")
	fs.StringVarP(&f.file, "outputToFile", "o", "", "Append received messages to this file")
	fs.BoolVarP(&f.console, "outputToConsole", "c", false, "Print messages even when writing to a file")
	fs.BoolVarP(&f.base64, "base64", "b", false, "Print payloads base64 encoded")
	fs.BoolVarP(&f.showTopics, "showTopics", "T", false, "Prefix printed messages with their topic")
	fs.BoolVar(&f.archive, "archive", false, "Record received messages in the archive")
}

func (f *subscribeFlags) validate() (byte, error) {
	if len(f.topics) == 0 {
		return 0, ErrMissingTopic
	}
	return qosByte(f.qos)
}

// sinkOptions builds the destinations; console is used when printing is on.
func (f *subscribeFlags) sinkOptions(console io.Writer) SinkOptions {
	opts := SinkOptions{
		ShowTopics: f.showTopics,
		File:       f.file,
		Base64:     f.base64,
	}
	if f.console || f.file == "" {
		opts.Console = console
	}
	return opts
}

// targetFlag names the session a shell command acts on.
type targetFlag struct {
	target string
}

func (f *targetFlag) register(fs *flag.FlagSet) {
	fs.StringVarP(&f.target, "identifier", "i", "", "Session as id or id@host (default: active session)")
}

func (f *targetFlag) identity() session.Identity {
	if f.target == "" {
		return session.Identity{}
	}
	id, _ := session.ParseIdentity(f.target)
	return id
}

func qosByte(q int) (byte, error) {
	if q < 0 || q > 2 {
		return 0, fmt.Errorf("%w: %d", mqtt.ErrInvalidQoS, q)
	}
	return byte(q), nil
}
