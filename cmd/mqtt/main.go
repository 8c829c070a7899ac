// mqtt-cli - interactive multi-connection MQTT client.
//
// Commands:
//
//	mqtt pub   -h broker -t topic -m message
//	mqtt sub   -h broker -t 'sensors/#'
//	mqtt shell
//
// Configuration is read from $MQTT_CLI_CONFIG or ~/.mqtt-cli/config.yaml.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/mqtt-cli/internal/command"
)

func main() {
	// Cancel on Ctrl+C or SIGTERM so open sessions are disconnected cleanly.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// run executes one invocation and returns the process exit code. Failures
// are reported by the command layer, so only the code is decided here.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if err := command.Execute(ctx, args, stdin, stdout, stderr); err != nil {
		return 1
	}
	return 0
}
