// Package logger builds the zerolog loggers used by the command line and the
// HTTP server.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	cl "github.com/gofhir/codelists"
)

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// New creates a logger writing to w at the given level. Format is either
// "console" for human-readable output or "json". An empty level means info.
func New(level, format string, w io.Writer) (zerolog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}

	lvl := zerolog.InfoLevel
	if level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
		}
		lvl = parsed
	}

	switch strings.ToLower(format) {
	case "", FormatJSON:
	case FormatConsole:
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q", format)
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// Issues mirrors the diagnostic channel of a run onto log. Fatal and error
// issues log at error level, warnings at warn and the rest at info.
func Issues(log zerolog.Logger, issues []cl.Issue) {
	for _, issue := range issues {
		var evt *zerolog.Event
		switch {
		case issue.IsError():
			evt = log.Error()
		case issue.IsWarning():
			evt = log.Warn()
		default:
			evt = log.Info()
		}

		evt.
			Str("codelist", issue.Codelist).
			Str("run_id", issue.RunID).
			Str("kind", string(issue.Kind)).
			Str("stage", issue.Stage).
			Strs("payload", issue.Payload).
			Msg(issue.Diagnostics)
	}
}

// Result logs the summary line of a finished run followed by its issues.
func Result(log zerolog.Logger, result *cl.Result) {
	if result == nil {
		return
	}
	log.Info().
		Str("codelist", result.Codelist).
		Str("run_id", result.RunID).
		Int("concepts", result.Stats.Concepts).
		Int("records", result.Stats.Records).
		Int("warnings", result.WarningCount()).
		Dur("duration", result.Stats.Duration).
		Msg("codelist normalized")
	Issues(log, result.Issues)
}
