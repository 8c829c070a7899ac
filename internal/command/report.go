package command

import (
	"context"
	"log/slog"

	"github.com/nerrad567/mqtt-cli/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt-cli/internal/shell"
)

// scopedLogger lowers the threshold of logger for a command run with
// --debug or --verbose. It never raises it.
func scopedLogger(ctx context.Context, logger *logging.Logger, debug, verbose bool) *logging.Logger {
	var level slog.Level
	switch {
	case verbose:
		level = logging.LevelTrace
	case debug:
		level = slog.LevelDebug
	default:
		return logger
	}
	if logger.Enabled(ctx, level) {
		return logger
	}
	return logger.WithLevel(level)
}

// report logs a failed command and returns err. With detailed set the
// whole error chain is logged at debug level, otherwise only the message
// at error level.
func report(ctx context.Context, logger *logging.Logger, err error, detailed bool) error {
	if detailed {
		scopedLogger(ctx, logger, true, false).DebugContext(ctx, err.Error(), "chain", shell.ErrorChain(err))
		return err
	}
	logger.ErrorContext(ctx, err.Error())
	return err
}
