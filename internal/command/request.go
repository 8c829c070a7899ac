package command

import (
	"time"

	"github.com/nerrad567/mqtt-cli/internal/infrastructure/mqtt"
)

// ConnectRequest carries everything needed to open one session.
type ConnectRequest struct {
	Host     string
	Port     int
	Version  string
	ClientID string

	Username string
	Password []byte

	KeepAlive    time.Duration
	CleanSession bool
	Will         *mqtt.Will

	TLS TLSRequest

	Debug   bool
	Verbose bool
}

// TLSRequest names the TLS material of a connect request by file path.
// The files are read when the request is executed.
type TLSRequest struct {
	// UseDefault turns TLS on even when no other option is set.
	UseDefault bool

	CAFiles      []string
	CAPaths      []string
	CertFile     string
	KeyFile      string
	CipherSuites []string
	Protocols    []string
}
