// Package audit keeps an append-only record of retrieval decisions.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/config"
	"github.com/alibaba/higress/plugins/golang-filter/mcp-server/servers/grounding/schema"
)

const (
	PROVIDER_TYPE_NONE = "none"
	PROVIDER_TYPE_FILE = "file"
	PROVIDER_TYPE_GORM = "gorm"
)

const (
	EventEvidencePack     = "evidence_pack"
	EventRetrievalFailure = "retrieval_failure"
)

var ErrInvalidEventType = errors.New("invalid audit event type")

// Event is one audit record. Its JSON form is the line format of FileSink.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"event_type"`
	Payload   any       `json:"payload"`
}

// NewEvent stamps payload with the current UTC time.
func NewEvent(eventType string, payload any) Event {
	return Event{Timestamp: time.Now().UTC(), Type: eventType, Payload: payload}
}

// EvidenceEvent records a finished evidence pack.
func EvidenceEvent(pack *schema.EvidencePack) Event {
	return NewEvent(EventEvidencePack, pack)
}

// FailureEvent records a clause retrieval that was aborted.
type FailureEvent struct {
	RequestID    string `json:"request_id"`
	ClauseID     string `json:"clause_id"`
	Jurisdiction string `json:"jurisdiction"`
	Stage        string `json:"stage"`
	Error        string `json:"error"`
}

// Sink stores audit events. Implementations are safe for concurrent use.
type Sink interface {
	Record(ctx context.Context, e Event) error
	Close() error
}

func validType(t string) error {
	if t == "" || strings.ContainsAny(t, `/\.`) || strings.TrimSpace(t) != t {
		return fmt.Errorf("%w: %q", ErrInvalidEventType, t)
	}
	return nil
}

func payloadJSON(e Event) ([]byte, error) {
	b, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", e.Type, err)
	}
	return b, nil
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }
func (Nop) Close() error                        { return nil }

// Multi fans an event out to every sink and reports all failures.
type Multi []Sink

func (m Multi) Record(ctx context.Context, e Event) error {
	var result *multierror.Error
	for _, s := range m {
		if err := s.Record(ctx, e); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (m Multi) Close() error {
	var result *multierror.Error
	for _, s := range m {
		if err := s.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// New creates the sink selected by cfg. Provider may list several sinks
// separated by commas, e.g. "file,gorm".
func New(cfg config.AuditConfig) (Sink, error) {
	var sinks Multi
	for _, p := range strings.Split(cfg.Provider, ",") {
		switch strings.TrimSpace(p) {
		case "", PROVIDER_TYPE_NONE:
		case PROVIDER_TYPE_FILE:
			s, err := NewFileSink(cfg.Dir)
			if err != nil {
				_ = sinks.Close()
				return nil, err
			}
			sinks = append(sinks, s)
		case PROVIDER_TYPE_GORM:
			s, err := OpenGormSink(cfg.Driver, cfg.DSN)
			if err != nil {
				_ = sinks.Close()
				return nil, err
			}
			sinks = append(sinks, s)
		default:
			_ = sinks.Close()
			return nil, fmt.Errorf("unknown audit provider: %s", p)
		}
	}
	switch len(sinks) {
	case 0:
		return Nop{}, nil
	case 1:
		return sinks[0], nil
	}
	return sinks, nil
}
