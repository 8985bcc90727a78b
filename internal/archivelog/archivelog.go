// Package archivelog provides optional fan-out for completed archive runs:
// a Kafka event for downstream consumers and a ClickHouse row for
// long-term archive-run telemetry. Both sinks are nil-receiver-safe and
// independently optional, following the pattern used for the Qdrant
// insight mirror and the Redis commit dedupe store.
package archivelog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"memoryd/internal/config"
)

// Event describes one completed archive run, emitted after Process
// commits its topic/thread/insight and marks messages archived.
type Event struct {
	User       string    `json:"user"`
	Session    string    `json:"session"`
	TopicID    string    `json:"topic_id"`
	ThreadID   string    `json:"thread_id"`
	InsightID  string    `json:"insight_id"`
	Version    int       `json:"version"`
	MessageIDs []string  `json:"message_ids"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher emits archive-run events to Kafka. A nil *Publisher is valid
// and a no-op, matching the KafkaCommitPublisher pattern.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher returns a Publisher for cfg.Brokers/cfg.ArchiveTopic, or
// (nil, nil) if either is unset.
func NewPublisher(cfg config.KafkaConfig) (*Publisher, error) {
	if strings.TrimSpace(cfg.Brokers) == "" || strings.TrimSpace(cfg.ArchiveTopic) == "" {
		return nil, nil
	}
	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.ArchiveTopic,
		Balancer: &kafka.LeastBytes{},
	}
	return &Publisher{writer: writer}, nil
}

// Publish writes ev to the archive topic, tolerating a nil receiver.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	if p == nil || p.writer == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal archive event: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Value: payload, Time: ev.Timestamp})
}

// Close shuts down the underlying writer, tolerating a nil receiver.
func (p *Publisher) Close() {
	if p == nil || p.writer == nil {
		return
	}
	if err := p.writer.Close(); err != nil {
		log.Warn().Err(err).Msg("archivelog_kafka_close_failed")
	}
}

// Sink records one row per archive run into ClickHouse for operational
// querying ("how many archive runs per session today"). A nil *Sink is
// valid and a no-op.
type Sink struct {
	conn  clickhouse.Conn
	table string
}

// NewSink returns a Sink backed by cfg.DSN, or (nil, nil) if cfg.DSN is
// empty. The table is created if it does not already exist.
func NewSink(ctx context.Context, cfg config.ClickHouseConfig) (*Sink, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, nil
	}
	table := cfg.Table
	if table == "" {
		table = "archive_runs"
	}

	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}

	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	UserID String,
	SessionID String,
	TopicID String,
	ThreadID String,
	InsightID String,
	Version UInt32,
	MessageCount UInt32,
	Timestamp DateTime64(3)
) ENGINE = MergeTree()
ORDER BY (UserID, SessionID, Timestamp)
TTL Timestamp + INTERVAL 90 DAY
SETTINGS index_granularity = 8192
`, table)
	if err := conn.Exec(ctx, ddl); err != nil && !strings.Contains(err.Error(), "already exists") {
		return nil, fmt.Errorf("create archive_runs table: %w", err)
	}

	return &Sink{conn: conn, table: table}, nil
}

// Record inserts one row for ev, tolerating a nil receiver.
func (s *Sink) Record(ctx context.Context, ev Event) error {
	if s == nil || s.conn == nil {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s", s.table))
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	if err := batch.Append(ev.User, ev.Session, ev.TopicID, ev.ThreadID, ev.InsightID, uint32(ev.Version), uint32(len(ev.MessageIDs)), ev.Timestamp); err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	return batch.Send()
}

// Close closes the underlying connection, tolerating a nil receiver.
func (s *Sink) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
