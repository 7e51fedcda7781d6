package kafka

import (
	"errors"
	"strings"
	"time"

	"github.com/IBM/sarama"
)

const (
	DefaultConsumerGroup = "flowstate-triggers"

	kafkaSessionTimeout    = 10 * time.Second
	kafkaHeartbeatInterval = 3 * time.Second
	kafkaRetryInterval     = 5 * time.Second
)

var (
	ErrTopicRequired   = errors.New("kafka trigger topic is required")
	ErrBrokersRequired = errors.New("kafka trigger brokers are required")
)

// Config describes the topic trigger requests are consumed from.
type Config struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
	// Oldest starts a new consumer group at the beginning of the topic
	// instead of at its end.
	Oldest bool
}

func (c Config) withDefaults() Config {
	if c.ConsumerGroup == "" {
		c.ConsumerGroup = DefaultConsumerGroup
	}

	brokers := make([]string, 0, len(c.Brokers))

	for _, broker := range c.Brokers {
		broker = strings.TrimSpace(broker)
		if broker != "" {
			brokers = append(brokers, broker)
		}
	}

	c.Brokers = brokers

	return c
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Topic == "" {
		return ErrTopicRequired
	}

	if len(c.Brokers) == 0 {
		return ErrBrokersRequired
	}

	return nil
}

func (c Config) sarama() *sarama.Config {
	config := sarama.NewConfig()
	config.Version = sarama.V2_6_0_0
	config.Consumer.Group.Session.Timeout = kafkaSessionTimeout
	config.Consumer.Group.Heartbeat.Interval = kafkaHeartbeatInterval
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	if c.Oldest {
		config.Consumer.Offsets.Initial = sarama.OffsetOldest
	}

	return config
}
