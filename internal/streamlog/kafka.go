package streamlog

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
)

// Config configures the sarama-backed Partition. The topic is pinned
// to a single partition so global order equals produce order, exactly
// the ordering guarantee spec.md §5 assumes of its stream.
type Config struct {
	Brokers           []string
	Topic             string
	Version           string
	ReplicationFactor int16
}

func (c *Config) mergeDefaults() {
	if len(c.Brokers) == 0 {
		c.Brokers = []string{"localhost:9092"}
	}
	if c.Version == "" {
		c.Version = "2.8.0"
	}
	if c.ReplicationFactor == 0 {
		c.ReplicationFactor = 1
	}
}

type kafkaPartition struct {
	client   sarama.Client
	producer sarama.SyncProducer
	consumer sarama.Consumer
	topic    string
}

// NewKafkaPartition connects to the brokers, ensures the topic exists
// with exactly one partition, and returns a ready Partition.
func NewKafkaPartition(cfg Config) (Partition, error) {
	cfg.mergeDefaults()

	version, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("streamlog: parse kafka version: %w", err)
	}

	saramaCfg := sarama.NewConfig()
	saramaCfg.Version = version
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Producer.Retry.Max = 5
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.Return.Errors = true
	saramaCfg.Metadata.Full = true

	client, err := sarama.NewClient(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("streamlog: connect to brokers: %w", err)
	}

	if err := ensureSinglePartitionTopic(cfg, saramaCfg); err != nil {
		client.Close()
		return nil, err
	}

	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("streamlog: create producer: %w", err)
	}

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		producer.Close()
		client.Close()
		return nil, fmt.Errorf("streamlog: create consumer: %w", err)
	}

	return &kafkaPartition{client: client, producer: producer, consumer: consumer, topic: cfg.Topic}, nil
}

func ensureSinglePartitionTopic(cfg Config, saramaCfg *sarama.Config) error {
	admin, err := sarama.NewClusterAdmin(cfg.Brokers, saramaCfg)
	if err != nil {
		return fmt.Errorf("streamlog: create cluster admin: %w", err)
	}
	defer admin.Close()

	topics, err := admin.ListTopics()
	if err != nil {
		return fmt.Errorf("streamlog: list topics: %w", err)
	}
	if _, exists := topics[cfg.Topic]; exists {
		return nil
	}

	one := int32(1)
	err = admin.CreateTopic(cfg.Topic, &sarama.TopicDetail{
		NumPartitions:     one,
		ReplicationFactor: cfg.ReplicationFactor,
	}, false)
	if err != nil && err != sarama.ErrTopicAlreadyExists {
		return fmt.Errorf("streamlog: create topic %s: %w", cfg.Topic, err)
	}
	return nil
}

func (p *kafkaPartition) Produce(ctx context.Context, value []byte) (int64, error) {
	_, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic:     p.topic,
		Partition: 0,
		Value:     sarama.ByteEncoder(value),
	})
	if err != nil {
		return 0, fmt.Errorf("streamlog: produce: %w", err)
	}
	return offset, nil
}

func (p *kafkaPartition) ReadFrom(ctx context.Context, offset int64) (<-chan Record, error) {
	pc, err := p.consumer.ConsumePartition(p.topic, 0, offset)
	if err != nil {
		return nil, fmt.Errorf("streamlog: consume partition from offset %d: %w", offset, err)
	}

	out := make(chan Record)
	go func() {
		defer close(out)
		defer pc.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-pc.Messages():
				if !ok {
					return
				}
				select {
				case out <- Record{Offset: msg.Offset, Value: msg.Value}:
				case <-ctx.Done():
					return
				}
			case err, ok := <-pc.Errors():
				if !ok {
					return
				}
				if err != nil {
					return
				}
			}
		}
	}()
	return out, nil
}

func (p *kafkaPartition) LastOffset(ctx context.Context) (int64, bool, error) {
	newest, err := p.client.GetOffset(p.topic, 0, sarama.OffsetNewest)
	if err != nil {
		return 0, false, fmt.Errorf("streamlog: get newest offset: %w", err)
	}
	if newest == 0 {
		return 0, false, nil
	}
	return newest - 1, true, nil
}

func (p *kafkaPartition) Close() error {
	p.consumer.Close()
	p.producer.Close()
	return p.client.Close()
}
