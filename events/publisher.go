// Package events publishes processing results to NATS so downstream
// consumers (review tools, analytics) can follow the pipeline without
// polling. Publishing is best-effort: a broken event feed never fails a
// request.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/prensadata/rotativa/domain"
)

// DefaultSubject is the subject fragment results are published on.
const DefaultSubject = "rotativa.fragmentos.procesados"

// Publisher emits fragment results on a NATS subject.
type Publisher struct {
	nc      *nats.Conn
	subject string
	logger  *slog.Logger
}

// Connect dials NATS and returns a publisher. An empty URL disables the
// feed and returns (nil, nil); callers treat a nil publisher as a no-op.
func Connect(url, subject string, logger *slog.Logger) (*Publisher, error) {
	if url == "" {
		return nil, nil
	}
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}

	nc, err := nats.Connect(url,
		nats.Name("rotativa-pipeline"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	logger.Info("event feed connected", "url", url, "subject", subject)
	return &Publisher{nc: nc, subject: subject, logger: logger}, nil
}

// PublishFragment emits one fragment result. Errors are logged, never
// returned: the event feed is advisory.
func (p *Publisher) PublishFragment(result *domain.FragmentResult) {
	if p == nil {
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		p.logger.Error("marshal fragment event", "error", err)
		return
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		p.logger.Warn("publish fragment event",
			"subject", p.subject,
			"fragment_id", result.FragmentID,
			"error", err)
	}
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.logger.Warn("drain NATS connection", "error", err)
	}
}
