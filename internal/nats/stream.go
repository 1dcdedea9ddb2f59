package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/traychat/internal/model"
)

const (
	// StreamName is the name of the transcript stream.
	StreamName = "TRANSCRIPTS"

	// SubjectPrefix is the prefix for all transcript subjects.
	SubjectPrefix = "chat"
)

// StreamManager mirrors conversation turns and session events to JetStream.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream ensures the transcript stream exists.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		MaxBytes:    1024 * 1024 * 1024, // 1GB
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Conversation transcripts and session events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// TurnSubject returns the subject for a turn.
func TurnSubject(sessionID string, role model.Role) string {
	return fmt.Sprintf("%s.%s.turn.%s", SubjectPrefix, sessionID, role)
}

// EventSubject returns the subject for a session event.
func EventSubject(sessionID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.event.%s", SubjectPrefix, sessionID, eventType)
}

// SessionFilter returns the filter subject for all turns of a session.
func SessionFilter(sessionID string) string {
	return fmt.Sprintf("%s.%s.turn.>", SubjectPrefix, sessionID)
}

// RecordTurn publishes a turn to JetStream.
func (m *StreamManager) RecordTurn(ctx context.Context, rec *model.TurnRecord) error {
	if !rec.Turn.Role.Valid() {
		return fmt.Errorf("refusing to publish turn with unknown role %q", rec.Turn.Role)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}

	if _, err := m.client.JetStream().Publish(ctx, TurnSubject(rec.SessionID, rec.Turn.Role), data); err != nil {
		return fmt.Errorf("failed to publish turn: %w", err)
	}
	return nil
}

// RecordEvent publishes a session event to JetStream.
func (m *StreamManager) RecordEvent(ctx context.Context, event *model.SessionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := m.client.JetStream().Publish(ctx, EventSubject(event.SessionID, event.Type), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Transcript replays up to limit turns of a session in recorded order.
func (m *StreamManager) Transcript(ctx context.Context, sessionID string, limit int) ([]model.TurnRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	consumer, err := m.client.JetStream().OrderedConsumer(ctx, StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{SessionFilter(sessionID)},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch turns: %w", err)
	}

	var records []model.TurnRecord
	for msg := range batch.Messages() {
		rec, ok := decodeTurnRecord(msg.Data())
		if !ok {
			continue
		}
		if meta, err := msg.Metadata(); err == nil {
			rec.Sequence = meta.Sequence.Stream
		}
		records = append(records, rec)
	}

	if err := batch.Error(); err != nil && !isFetchExhausted(err) {
		return nil, fmt.Errorf("batch error: %w", err)
	}

	return records, nil
}

// decodeTurnRecord rejects payloads that are not turns with a known role.
func decodeTurnRecord(data []byte) (model.TurnRecord, bool) {
	var rec model.TurnRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.TurnRecord{}, false
	}
	return rec, rec.Turn.Role.Valid()
}

func isFetchExhausted(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, jetstream.ErrNoMessages)
}
