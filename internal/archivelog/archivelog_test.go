package archivelog

import (
	"context"
	"testing"

	"memoryd/internal/config"
)

func TestNewPublisherDisabledWhenUnconfigured(t *testing.T) {
	p, err := NewPublisher(config.KafkaConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil publisher when brokers/topic unset")
	}
	if err := p.Publish(context.Background(), Event{}); err != nil {
		t.Fatalf("expected nil-receiver Publish to be a no-op: %v", err)
	}
	p.Close()
}

func TestNewPublisherDisabledWhenOnlyBrokersSet(t *testing.T) {
	p, err := NewPublisher(config.KafkaConfig{Brokers: "localhost:9092"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil publisher when topic unset")
	}
}

func TestNewSinkDisabledWhenUnconfigured(t *testing.T) {
	s, err := NewSink(context.Background(), config.ClickHouseConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != nil {
		t.Fatalf("expected nil sink when DSN unset")
	}
	if err := s.Record(context.Background(), Event{}); err != nil {
		t.Fatalf("expected nil-receiver Record to be a no-op: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("expected nil-receiver Close to be a no-op: %v", err)
	}
}
