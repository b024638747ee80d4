// Package incident reports unrecoverable proxy errors to sentry and to the
// log, tagging both with an incident id.
package incident

import (
	"encoding/hex"
	"fmt"

	raven "github.com/getsentry/raven-go"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	nullLog "github.com/sirupsen/logrus/hooks/test"
)

// Reporter sends errors to sentry when a DSN is configured; without one it
// only logs them.
type Reporter struct {
	client *raven.Client
	logger *logrus.Logger
	tags   map[string]string
}

// New creates a Reporter.  An empty dsn disables sentry.
func New(dsn string, tags map[string]string, logger *logrus.Logger) (*Reporter, error) {
	r := &Reporter{
		logger: logger,
		tags:   tags,
	}
	if r.logger == nil {
		logger, _ := nullLog.NewNullLogger()
		r.logger = logger
	}
	if dsn != "" {
		client, err := raven.New(dsn)
		if err != nil {
			return nil, errors.Wrap(err, "error instanciating sentry client")
		}
		r.client = client
	}
	return r, nil
}

// ReportError logs err and submits it to sentry, waiting for the submission
// to finish.  It returns the incident id.
func (r *Reporter) ReportError(err error, message string) string {
	incidentID := uuid.NewRandom()
	r.logger.WithField("incidentId", incidentID.String()).WithError(err).Error(message)

	if r.client == nil {
		return incidentID.String()
	}

	// Capture stack trace
	exception := raven.NewException(err, raven.NewStacktrace(1, 5, []string{
		"github.com/taskcluster/",
	}))

	// Create error packet
	text := fmt.Sprintf("Error: %s\nMessage: %s", err.Error(), message)
	packet := raven.NewPacket(text, exception)
	packet.Level = raven.ERROR
	packet.EventID = hex.EncodeToString(incidentID)

	tags := make(map[string]string, len(r.tags)+1)
	for tag, value := range r.tags {
		tags[tag] = value
	}
	tags["incidentId"] = incidentID.String()

	_, done := r.client.Capture(packet, tags)
	if serr := <-done; serr != nil {
		r.logger.Errorf("Failed to send error to sentry: %v", serr)
	}
	return incidentID.String()
}
