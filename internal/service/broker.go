package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/traychat/internal/llm"
	"github.com/capitalize-ai/traychat/internal/model"
	"github.com/capitalize-ai/traychat/pkg/logger"
	"github.com/capitalize-ai/traychat/pkg/metrics"
)

const sinkTimeout = 5 * time.Second

// TurnSink receives a copy of every recorded turn and session event.
// Sink failures are logged and never reach the caller.
type TurnSink interface {
	RecordTurn(ctx context.Context, rec *model.TurnRecord) error
	RecordEvent(ctx context.Context, event *model.SessionEvent) error
}

// Broker is the entry point for chat turns. It may be entered concurrently;
// it holds the conversation lock only around in-memory steps, never across
// the completion call.
type Broker struct {
	conversation *ConversationService
	transport    llm.Transport
	apiKey       llm.KeyFunc
	policy       llm.ContentPolicy
	sink         TurnSink
	logger       *logger.Logger
	tracer       trace.Tracer

	// callMu serializes whole request/response cycles when serialize is set.
	serialize bool
	callMu    sync.Mutex
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithContentPolicy selects how a reply without assistant text is treated.
func WithContentPolicy(p llm.ContentPolicy) BrokerOption {
	return func(b *Broker) {
		b.policy = p
	}
}

// WithTurnSink mirrors recorded turns and events to sink.
func WithTurnSink(sink TurnSink) BrokerOption {
	return func(b *Broker) {
		b.sink = sink
	}
}

// WithSerializedCalls makes each Handle wait for the previous one to finish,
// so turns from concurrent callers never interleave.
func WithSerializedCalls(on bool) BrokerOption {
	return func(b *Broker) {
		b.serialize = on
	}
}

// WithLogger sets the broker's logger.
func WithLogger(log *logger.Logger) BrokerOption {
	return func(b *Broker) {
		b.logger = log
	}
}

// NewBroker creates a broker over the given conversation and transport.
func NewBroker(conversation *ConversationService, transport llm.Transport, apiKey llm.KeyFunc, opts ...BrokerOption) *Broker {
	b := &Broker{
		conversation: conversation,
		transport:    transport,
		apiKey:       apiKey,
		policy:       llm.ContentLenient,
		logger:       logger.Global(),
		tracer:       otel.Tracer("github.com/capitalize-ai/traychat/internal/service"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Conversation returns the conversation the broker owns.
func (b *Broker) Conversation() *ConversationService {
	return b.conversation
}

// Handle records input as a user turn, asks the completion endpoint for a
// reply and records that as an assistant turn. When clearHistory is set the
// log is emptied first. A failed call leaves the user turn in place.
// Without an API key nothing is appended, but a requested clear still happens.
func (b *Broker) Handle(ctx context.Context, modelName, input string, clearHistory bool) (string, error) {
	if b.serialize {
		b.callMu.Lock()
		defer b.callMu.Unlock()
	}

	ctx, span := b.tracer.Start(ctx, "broker.handle", trace.WithAttributes(
		attribute.String("llm.model", modelName),
		attribute.Bool("conversation.clear", clearHistory),
	))
	defer span.End()

	apiKey, err := b.apiKey()
	if err != nil {
		b.logger.Error("completion API key unavailable", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if clearHistory {
			b.conversation.Clear()
			b.recordEvent(ctx, b.conversation.SessionID(), model.EventTypeCleared, "")
		}
		return "", err
	}

	pending := b.conversation.Begin(clearHistory, input)
	log := b.logger.ForSession(pending.SessionID).With(zap.String("model", modelName))
	span.SetAttributes(
		attribute.String("conversation.session_id", pending.SessionID),
		attribute.Int("conversation.turns", len(pending.Snapshot)),
	)

	if clearHistory {
		log.Info("conversation cleared")
		b.recordEvent(ctx, pending.SessionID, model.EventTypeCleared, "")
	}
	if pending.Preamble != nil {
		b.recordTurn(ctx, pending.SessionID, modelName, *pending.Preamble)
	}
	b.recordTurn(ctx, pending.SessionID, modelName, pending.User)

	req := llm.BuildRequest(modelName, pending.Snapshot)
	log.Debug("sending completion request", zap.Int("turns", len(req.Messages)))

	start := time.Now()
	env, err := b.transport.Send(ctx, req, apiKey)
	elapsed := time.Since(start)
	if err != nil {
		return "", b.fail(ctx, span, log, pending.SessionID, modelName, elapsed, err)
	}

	reply, err := b.policy.Extract(env)
	if err != nil {
		return "", b.fail(ctx, span, log, pending.SessionID, modelName, elapsed, err)
	}

	outcome := "ok"
	if !env.OK() {
		outcome = "error_status_tolerated"
	}
	tokensIn, tokensOut := env.Usage()
	metrics.RecordCompletion(modelName, outcome, elapsed.Seconds(), tokensIn, tokensOut)

	if _, ok := env.Content(); !ok {
		reason := "choices[0].message.content missing"
		if statusErr := env.Err(); statusErr != nil {
			reason = statusErr.Error()
		}
		log.Warn("completion response had no assistant content, recording empty reply",
			zap.Int("status", env.StatusCode),
			zap.String("reason", reason),
		)
		b.recordEvent(ctx, pending.SessionID, model.EventTypeEmpty, reason)
	}

	turn, recorded := b.conversation.Complete(pending.SessionID, reply)
	if recorded {
		b.recordTurn(ctx, pending.SessionID, modelName, turn)
	} else {
		log.Warn("conversation cleared while awaiting reply, reply not recorded")
	}

	log.Info("completion handled",
		zap.Duration("latency", elapsed),
		zap.Int("reply_bytes", len(reply)),
		zap.Int("tokens_in", tokensIn),
		zap.Int("tokens_out", tokensOut),
	)
	return reply, nil
}

func (b *Broker) fail(ctx context.Context, span trace.Span, log *logger.Logger, sessionID, modelName string, elapsed time.Duration, err error) error {
	outcome := Outcome(err)
	metrics.RecordCompletion(modelName, outcome, elapsed.Seconds(), 0, 0)
	log.Error("completion failed",
		zap.String("outcome", outcome),
		zap.Duration("latency", elapsed),
		zap.Error(err),
	)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	b.recordEvent(ctx, sessionID, model.EventTypeError, err.Error())
	return err
}

// Outcome classifies a broker error for metrics and status mapping.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, llm.ErrMissingAPIKey):
		return "missing_api_key"
	case errors.Is(err, llm.ErrSend):
		return "send_error"
	case errors.Is(err, llm.ErrDecode):
		return "decode_error"
	case errors.Is(err, llm.ErrStatus):
		return "status_error"
	case errors.Is(err, llm.ErrMissingContent):
		return "missing_content"
	default:
		return "error"
	}
}

func (b *Broker) recordTurn(ctx context.Context, sessionID, modelName string, turn model.Turn) {
	if b.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()

	err := b.sink.RecordTurn(ctx, &model.TurnRecord{
		SessionID: sessionID,
		Model:     modelName,
		Turn:      turn,
	})
	if err != nil {
		metrics.TranscriptMirrorFailures.WithLabelValues("turn").Inc()
		b.logger.Warn("failed to mirror turn",
			zap.String("session_id", sessionID),
			zap.String("role", string(turn.Role)),
			zap.Error(err),
		)
	}
}

func (b *Broker) recordEvent(ctx context.Context, sessionID string, eventType model.EventType, reason string) {
	if b.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()

	err := b.sink.RecordEvent(ctx, &model.SessionEvent{
		ID:        uuid.Must(uuid.NewV7()).String(),
		SessionID: sessionID,
		Type:      eventType,
		Reason:    reason,
		CreatedAt: time.Now(),
	})
	if err != nil {
		metrics.TranscriptMirrorFailures.WithLabelValues("event").Inc()
		b.logger.Warn("failed to mirror session event",
			zap.String("session_id", sessionID),
			zap.String("type", string(eventType)),
			zap.Error(err),
		)
	}
}
