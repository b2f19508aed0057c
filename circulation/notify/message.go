package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// ErrMappingToMessageFailed is returned when a JSON line cannot be decoded into a Message.
var ErrMappingToMessageFailed = errors.New("mapping to notification message failed")

// ErrBuildingMessageIDFailed is returned when no message id could be generated.
var ErrBuildingMessageIDFailed = errors.New("building message id failed")

type MessageID = string
type CorrelationID = string

// Metadata identifies a notification message.
type Metadata struct {
	MessageID     MessageID     `json:"messageId"`
	CorrelationID CorrelationID `json:"correlationId,omitempty"`
}

// Payload is the event data of a Message. Zero-valued fields are omitted.
type Payload struct {
	BookID          circulation.BookID   `json:"bookId"`
	MemberID        circulation.MemberID `json:"memberId,omitempty"`
	LoanID          string               `json:"loanId,omitempty"`
	ReservationID   string               `json:"reservationId,omitempty"`
	DueAt           *time.Time           `json:"dueAt,omitempty"`
	AvailableCopies int                  `json:"availableCopies"`
	TotalCopies     int                  `json:"totalCopies"`
}

// Message is the wire form of a circulation.Event.
type Message struct {
	Metadata   Metadata              `json:"metadata"`
	Type       circulation.EventType `json:"type"`
	OccurredAt time.Time             `json:"occurredAt"`
	Payload    Payload               `json:"payload"`
}

type correlationKey struct{}

// WithCorrelationID returns a context whose events are tagged with the correlation id.
func WithCorrelationID(ctx context.Context, correlationID CorrelationID) context.Context {
	return context.WithValue(ctx, correlationKey{}, correlationID)
}

// CorrelationIDFrom returns the correlation id set with WithCorrelationID, or "".
func CorrelationIDFrom(ctx context.Context) CorrelationID {
	id, _ := ctx.Value(correlationKey{}).(CorrelationID)
	return id
}

// BuildMessage maps an event to a Message with the given message id.
func BuildMessage(messageID uuid.UUID, correlationID CorrelationID, event circulation.Event) Message {
	msg := Message{
		Metadata: Metadata{
			MessageID:     messageID.String(),
			CorrelationID: correlationID,
		},
		Type:       event.Type,
		OccurredAt: event.OccurredAt,
		Payload: Payload{
			BookID:          event.BookID,
			MemberID:        event.MemberID,
			AvailableCopies: event.AvailableCopies,
			TotalCopies:     event.TotalCopies,
		},
	}

	if event.LoanID != uuid.Nil {
		msg.Payload.LoanID = event.LoanID.String()
	}

	if event.ReservationID != uuid.Nil {
		msg.Payload.ReservationID = event.ReservationID.String()
	}

	if !event.DueAt.IsZero() {
		dueAt := event.DueAt
		msg.Payload.DueAt = &dueAt
	}

	return msg
}

// MessageFromJSON decodes one JSON line written by JSONLinesWriter.
func MessageFromJSON(line []byte) (Message, error) {
	msg := new(Message)
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(line, msg); err != nil {
		return Message{}, errors.Join(ErrMappingToMessageFailed, err)
	}

	return *msg, nil
}
