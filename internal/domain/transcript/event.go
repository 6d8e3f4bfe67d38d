package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Kind discriminates stream events.
type Kind string

const (
	KindAgentStart Kind = "agent_start"
	KindContent    Kind = "content"
	KindAgentEnd   Kind = "agent_end"
	KindError      Kind = "error"
)

var (
	// ErrMalformedEvent marks frames that are not JSON or lack required fields.
	ErrMalformedEvent = errors.New("malformed stream event")
	// ErrUnknownEvent marks well-formed frames of a type this client does not handle.
	ErrUnknownEvent = errors.New("unknown stream event type")
	// ErrEmptyContent is returned for user submissions with no text.
	ErrEmptyContent = errors.New("message content is empty")
)

// single instance, it caches struct info
var validate = validator.New(validator.WithRequiredStructEnabled())

// Event is a validated inbound stream event.
type Event struct {
	Type      Kind   `json:"type"`
	AgentName string `json:"agent_name,omitempty"`
	Content   string `json:"content,omitempty"`
	Error     string `json:"error,omitempty"`
}

type baseFrame struct {
	Type Kind `json:"type" validate:"required"`
}

type agentFrame struct {
	AgentName string `json:"agent_name" validate:"required"`
}

type contentFrame struct {
	AgentName string  `json:"agent_name" validate:"required"`
	Content   *string `json:"content" validate:"required"`
}

type errorFrame struct {
	Error *string `json:"error" validate:"required"`
}

// ParseEvent decodes one raw frame from the stream channel. It returns an
// error wrapping ErrMalformedEvent or ErrUnknownEvent for frames the ingest
// step must drop.
func ParseEvent(raw []byte) (Event, error) {
	var base baseFrame
	if err := json.Unmarshal(raw, &base); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := validate.Struct(base); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch base.Type {
	case KindAgentStart, KindAgentEnd:
		var f agentFrame
		if err := decodeFrame(raw, &f); err != nil {
			return Event{}, err
		}
		return Event{Type: base.Type, AgentName: f.AgentName}, nil

	case KindContent:
		var f contentFrame
		if err := decodeFrame(raw, &f); err != nil {
			return Event{}, err
		}
		return Event{Type: base.Type, AgentName: f.AgentName, Content: *f.Content}, nil

	case KindError:
		var f errorFrame
		if err := decodeFrame(raw, &f); err != nil {
			return Event{}, err
		}
		return Event{Type: base.Type, Error: *f.Error}, nil

	default:
		return Event{Type: base.Type}, fmt.Errorf("%w: %q", ErrUnknownEvent, base.Type)
	}
}

func decodeFrame(raw []byte, dst interface{}) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return nil
}

// OutboundMessage is the payload sent when the user submits a message.
type OutboundMessage struct {
	Content   string `json:"content" validate:"required"`
	Timestamp string `json:"timestamp" validate:"required"`
}

// NewOutboundMessage trims content and stamps it with now.
func NewOutboundMessage(content string, now time.Time) (OutboundMessage, error) {
	msg := OutboundMessage{
		Content:   strings.TrimSpace(content),
		Timestamp: now.UTC().Format(OutboundTimestampLayout),
	}
	if msg.Content == "" {
		return OutboundMessage{}, ErrEmptyContent
	}
	if err := validate.Struct(msg); err != nil {
		return OutboundMessage{}, fmt.Errorf("invalid outbound message: %w", err)
	}
	return msg, nil
}

// ValidateAgents checks agent definitions before they are sent to the backend.
func ValidateAgents(agents []AgentCreate) error {
	for i := range agents {
		if err := validate.Struct(agents[i]); err != nil {
			return fmt.Errorf("agent %d: %w", i, err)
		}
	}
	return nil
}
