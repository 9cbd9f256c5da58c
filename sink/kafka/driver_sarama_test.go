package kafka

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"taskflow/internal/record"
	"taskflow/sink"
)

func withMock(t *testing.T) *mocks.SyncProducer {
	t.Helper()
	mp := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	prev := newProducer
	newProducer = func([]string, *sarama.Config) (sarama.SyncProducer, error) { return mp, nil }
	t.Cleanup(func() { newProducer = prev })
	return mp
}

func configured(t *testing.T) sink.Adapter {
	t.Helper()
	a, err := sink.NewAdapter("kafka")
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	if err := a.Configure(sink.Env{}, map[string]any{"brokers": []any{"localhost:9092"}, "topic": "assets"}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	return a
}

func TestPush_KeyValueHeaders(t *testing.T) {
	mp := withMock(t)
	mp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(m *sarama.ProducerMessage) error {
		key, _ := m.Key.Encode()
		val, _ := m.Value.Encode()
		if m.Topic != "assets" || string(key) != "js/app.js" || string(val) != "x" {
			return fmt.Errorf("unexpected message %s %q %q", m.Topic, key, val)
		}
		if len(m.Headers) != 2 || string(m.Headers[0].Value) != "src/js/app.js" {
			return fmt.Errorf("unexpected headers %v", m.Headers)
		}
		return nil
	})

	a := configured(t)
	f, _ := record.New("src", "src/js/app.js", []byte("x"))
	if err := a.Push(context.Background(), f); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPush_BrokerError(t *testing.T) {
	mp := withMock(t)
	boom := errors.New("leader not available")
	mp.ExpectSendMessageAndFail(boom)

	a := configured(t)
	defer a.Close()
	f, _ := record.New("src", "src/a.js", []byte("a"))
	if err := a.Push(context.Background(), f); !errors.Is(err, boom) {
		t.Fatalf("expected broker error, got %v", err)
	}
}

func TestConfigure_RequiresTopic(t *testing.T) {
	a, _ := sink.NewAdapter("kafka")
	if err := a.Configure(sink.Env{}, map[string]any{"brokers": []any{"b:9092"}}); err == nil {
		t.Fatal("expected error without topic")
	}
}
