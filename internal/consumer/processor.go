// Package consumer reads tracking session change notifications from Kafka and
// hands them to the insights service.
package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"
)

// ErrMalformedEvent marks messages that can never be processed. They are
// committed so they do not block the partition.
var ErrMalformedEvent = errors.New("malformed change event")

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages from Kafka.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is the decoded representation of a Kafka record.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Key       string
	Headers   map[string]string
	// SchemaID is set when the value carried a schema registry wire header.
	SchemaID int
	Payload  json.RawMessage
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// Processor pulls messages from Kafka, decodes them, and dispatches to a Handler.
type Processor struct {
	reader  Reader
	handler Handler
	logger  *slog.Logger
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:  reader,
		handler: handler,
		logger:  slog.Default().With("component", "consumer"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run starts a blocking loop that processes Kafka messages until the context is cancelled.
// A handler failure is logged and counted but does not stop the loop, so a
// later commit on the same partition also covers the failed offset. Handlers
// that need redelivery must return a context error, which ends Run without
// committing.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.logger.ErrorContext(ctx, "fetch error", "error", err)
			continue
		}

		event, procErr := decodeMessage(msg)
		if procErr == nil {
			procErr = p.handler.Handle(ctx, event)
		}

		switch {
		case procErr == nil:
			if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
				p.logger.ErrorContext(ctx, "commit error", "error", commitErr)
				continue
			}
			recordProcessed(event)
		case errors.Is(procErr, ErrMalformedEvent):
			p.logger.WarnContext(ctx, "dropping malformed message",
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", procErr)
			recordDecodeError(msg.Topic)
			// Commit malformed messages to avoid poison-pill loops.
			if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
				p.logger.ErrorContext(ctx, "commit error after decode failure", "error", commitErr)
			}
		default:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			p.logger.ErrorContext(ctx, "handler error",
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", procErr)
			recordHandlerError(msg.Topic)
		}
	}
}

// decodeMessage unwraps the record value. Values framed with the 5-byte
// schema registry header (magic byte 0 plus a big-endian schema id) are
// stripped; plain JSON passes through untouched.
func decodeMessage(msg kafka.Message) (Message, error) {
	if len(msg.Value) == 0 {
		return Message{}, errors.Mark(errors.New("empty payload"), ErrMalformedEvent)
	}

	var (
		schemaID int
		payload  = msg.Value
	)
	if msg.Value[0] == 0 {
		if len(msg.Value) < 5 {
			return Message{}, errors.Mark(errors.Newf("invalid framed payload length: %d", len(msg.Value)), ErrMalformedEvent)
		}
		schemaID = int(binary.BigEndian.Uint32(msg.Value[1:5]))
		payload = msg.Value[5:]
	}

	headers := make(map[string]string, len(msg.Headers))
	for _, header := range msg.Headers {
		headers[header.Key] = string(header.Value)
	}

	return Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		Key:       string(msg.Key),
		Headers:   headers,
		SchemaID:  schemaID,
		Payload:   json.RawMessage(append([]byte(nil), payload...)),
	}, nil
}
