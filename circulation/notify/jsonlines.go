package notify

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// ErrWritingMessageFailed is returned when a message could not be encoded or written.
var ErrWritingMessageFailed = errors.New("writing notification message failed")

// JSONLinesWriter writes each event as a JSON line to an io.Writer. It is safe for concurrent use.
type JSONLinesWriter struct {
	mu    sync.Mutex
	out   io.Writer
	newID func() (uuid.UUID, error)
}

// JSONLinesOption configures a JSONLinesWriter.
type JSONLinesOption func(*JSONLinesWriter)

// WithMessageIDGenerator replaces uuid.NewV7 for message ids.
func WithMessageIDGenerator(generator func() (uuid.UUID, error)) JSONLinesOption {
	return func(w *JSONLinesWriter) {
		if generator != nil {
			w.newID = generator
		}
	}
}

// NewJSONLinesWriter creates a writer on out.
func NewJSONLinesWriter(out io.Writer, options ...JSONLinesOption) *JSONLinesWriter {
	w := &JSONLinesWriter{out: out, newID: uuid.NewV7}

	for _, option := range options {
		option(w)
	}

	return w
}

// Notify writes the event. Lines of concurrent calls never interleave.
func (w *JSONLinesWriter) Notify(ctx context.Context, event circulation.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	messageID, err := w.newID()
	if err != nil {
		return errors.Join(ErrBuildingMessageIDFailed, err)
	}

	line, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(
		BuildMessage(messageID, CorrelationIDFrom(ctx), event),
	)
	if err != nil {
		return errors.Join(ErrWritingMessageFailed, err)
	}

	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err = w.out.Write(line); err != nil {
		return errors.Join(ErrWritingMessageFailed, err)
	}

	return nil
}

var _ circulation.Notifier = (*JSONLinesWriter)(nil)
