package tracedata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// DefaultSubject is the subject prefix trace requests are sent on. The
// session id is appended as the last token.
const DefaultSubject = "tracenav.traces"

// NATSProvider fetches trace data from a Serve responder.
type NATSProvider struct {
	nc      *nats.Conn
	subject string
	timeout time.Duration
}

// NewNATSProvider creates a provider that requests runs on subject.
func NewNATSProvider(nc *nats.Conn, subject string, timeout time.Duration) *NATSProvider {
	if subject == "" {
		subject = DefaultSubject
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NATSProvider{nc: nc, subject: subject, timeout: timeout}
}

func (p *NATSProvider) TraceData(ctx context.Context, sessionID string) (*Data, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg, err := p.nc.RequestWithContext(ctx, p.subject+"."+sessionID, nil)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return nil, fmt.Errorf("no trace server on %s: %w", p.subject, err)
		}
		return nil, fmt.Errorf("trace request failed: %w", err)
	}

	reply, err := decodeReply(msg.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode trace reply: %w", err)
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("trace server: %s", reply.Error)
	}
	return reply.data(), nil
}

// Serve answers trace requests on subject.* from provider until the returned
// subscription is drained or unsubscribed.
func Serve(nc *nats.Conn, subject string, provider Provider, logger logrus.FieldLogger) (*nats.Subscription, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	log := logger.WithField("component", "trace-server")

	return nc.Subscribe(subject+".*", func(m *nats.Msg) {
		sessionID := m.Subject[len(subject)+1:]
		data, err := provider.TraceData(context.Background(), sessionID)
		if err != nil {
			log.WithFields(logrus.Fields{
				"session": sessionID,
				"error":   err.Error(),
			}).Warn("trace request failed")
		}
		payload, encErr := encodeReply(data, err)
		if encErr != nil {
			log.WithField("error", encErr.Error()).Error("failed to encode reply")
			return
		}
		if err := m.Respond(payload); err != nil {
			log.WithField("error", err.Error()).Warn("failed to send reply")
			return
		}
		log.WithFields(logrus.Fields{
			"session": sessionID,
			"found":   data != nil,
		}).Debug("served trace request")
	})
}
