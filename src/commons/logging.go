package commons

import (
	"github.com/getsentry/raven-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// SetupLogging sets the log level and, when sentryDSN is not empty,
// forwards errors to sentry.
func SetupLogging(level string, sentryDSN string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", level)
	}
	log.SetLevel(lvl)

	if sentryDSN == "" {
		return nil
	}
	client, err := raven.New(sentryDSN)
	if err != nil {
		return errors.Wrap(err, "couldn't create sentry client")
	}
	log.AddHook(NewSentryHook(client))
	return nil
}

// SentryClient is the part of *raven.Client the hook uses.
type SentryClient interface {
	CaptureError(err error, tags map[string]string, interfaces ...raven.Interface) string
	CaptureMessage(message string, tags map[string]string, interfaces ...raven.Interface) string
}

// SentryHook is a logrus hook that reports error level entries.
type SentryHook struct {
	client SentryClient
}

func NewSentryHook(client SentryClient) *SentryHook {
	return &SentryHook{client: client}
}

func (h *SentryHook) Levels() []log.Level {
	return []log.Level{log.PanicLevel, log.FatalLevel, log.ErrorLevel}
}

func (h *SentryHook) Fire(entry *log.Entry) error {
	tags := map[string]string{"level": entry.Level.String()}
	var cause error
	for k, v := range entry.Data {
		if err, ok := v.(error); ok && k == log.ErrorKey {
			cause = err
			continue
		}
		if s, ok := v.(string); ok {
			tags[k] = s
		}
	}

	if cause != nil {
		h.client.CaptureError(errors.Wrap(cause, entry.Message), tags)
	} else {
		h.client.CaptureMessage(entry.Message, tags)
	}
	return nil
}
