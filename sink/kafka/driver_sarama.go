package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"

	"taskflow/internal/record"
	"taskflow/sink"
)

type Config struct {
	Brokers  []string `yaml:"brokers"`
	Topic    string   `yaml:"topic"`
	Acks     int16    `yaml:"required_acks"` // 0,1,-1
	ClientID string   `yaml:"client_id"`
}

// newProducer is swapped out in tests.
var newProducer = func(brokers []string, sc *sarama.Config) (sarama.SyncProducer, error) {
	return sarama.NewSyncProducer(brokers, sc)
}

type driver struct {
	cfg Config
	sc  *sarama.Config
	p   sarama.SyncProducer // dialed on first Push
}

func (d *driver) Configure(_ sink.Env, opts map[string]any) error {
	if err := sink.Decode(opts, &d.cfg); err != nil {
		return fmt.Errorf("kafka-sink: %w", err)
	}
	if len(d.cfg.Brokers) == 0 || d.cfg.Topic == "" {
		return errors.New("kafka-sink: brokers and topic are required")
	}

	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.RequiredAcks(d.cfg.Acks)
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	if d.cfg.ClientID != "" {
		sc.ClientID = d.cfg.ClientID
	}
	d.sc = sc
	return nil
}

// Push publishes f keyed by its relative path and blocks until the broker
// acknowledges it.
func (d *driver) Push(ctx context.Context, f *record.File) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.p == nil {
		p, err := newProducer(d.cfg.Brokers, d.sc)
		if err != nil {
			return err
		}
		d.p = p
	}
	msg := &sarama.ProducerMessage{
		Topic: d.cfg.Topic,
		Key:   sarama.StringEncoder(f.Relative()),
		Value: sarama.ByteEncoder(f.Contents),
		Headers: []sarama.RecordHeader{
			{Key: []byte("path"), Value: []byte(f.Path)},
			{Key: []byte("base"), Value: []byte(f.Base)},
		},
	}
	_, _, err := d.p.SendMessage(msg)
	return err
}

func (d *driver) Close() error {
	if d.p == nil {
		return nil
	}
	p := d.p
	d.p = nil
	return p.Close()
}

func init() { sink.Register("kafka", func() sink.Adapter { return &driver{} }) }
