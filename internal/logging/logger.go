// Package logging provides the bridge's concrete structured logger. It
// implements the same narrow four-method interface that
// internal/matrixtransport, internal/overlaytransport, and
// internal/dispatcher each declare locally, so none of them need to
// import this package directly.
package logging

import (
	"fmt"
	"os"

	"github.com/mattermost/logr/v2"
	"github.com/mattermost/logr/v2/formatters"
	"github.com/mattermost/logr/v2/targets"
)

// Logger is satisfied by *Logr.
type Logger interface {
	LogDebug(message string, keyValuePairs ...any)
	LogInfo(message string, keyValuePairs ...any)
	LogWarn(message string, keyValuePairs ...any)
	LogError(message string, keyValuePairs ...any)
}

// Logr adapts a github.com/mattermost/logr/v2 logger to Logger.
type Logr struct {
	logger logr.Logger
}

// New builds a Logr writing JSON-formatted records to stdout. Unlike the
// teacher's CreateTransactionLogger, which targets a rotated file
// because it runs inside a Mattermost plugin host, this process has no
// host to hand a log file to, so stdout is the only sensible target.
func New() (*Logr, error) {
	logrLogr, err := logr.New(logr.MaxQueueSize(1000))
	if err != nil {
		return nil, err
	}

	jsonFormatter := &formatters.JSON{EnableCaller: true}
	writerTarget := targets.NewWriterTarget(os.Stdout)
	filter := logr.NewCustomFilter(logr.Debug, logr.Info, logr.Warn, logr.Error, logr.Fatal, logr.Panic)

	if err := logrLogr.AddTarget(writerTarget, "stdout", filter, jsonFormatter, 1000); err != nil {
		return nil, err
	}

	return &Logr{logger: logrLogr.NewLogger()}, nil
}

func (l *Logr) LogDebug(message string, keyValuePairs ...any) {
	l.logger.Debug(message, fields(keyValuePairs)...)
}

func (l *Logr) LogInfo(message string, keyValuePairs ...any) {
	l.logger.Info(message, fields(keyValuePairs)...)
}

func (l *Logr) LogWarn(message string, keyValuePairs ...any) {
	l.logger.Warn(message, fields(keyValuePairs)...)
}

func (l *Logr) LogError(message string, keyValuePairs ...any) {
	l.logger.Error(message, fields(keyValuePairs)...)
}

// fields converts a flat, alternating key/value slice — the convention
// every component in this repo logs with — into logr fields. A trailing
// unpaired key is logged under a synthesized "EXTRA" key rather than
// dropped silently.
func fields(keyValuePairs []any) []logr.Field {
	out := make([]logr.Field, 0, len(keyValuePairs)/2+1)
	i := 0
	for ; i+1 < len(keyValuePairs); i += 2 {
		key, ok := keyValuePairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", keyValuePairs[i])
		}
		out = append(out, logr.Any(key, keyValuePairs[i+1]))
	}
	if i < len(keyValuePairs) {
		out = append(out, logr.Any("EXTRA", keyValuePairs[i]))
	}
	return out
}
