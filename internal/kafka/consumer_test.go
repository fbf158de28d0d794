package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmehdipour/sms-bridge/internal/config"
)

func TestNewConsumer(t *testing.T) {
	_, err := NewConsumer(config.KafkaConfig{Topic: "sms.callbacks"})
	assert.Error(t, err)
	_, err = NewConsumer(config.KafkaConfig{Brokers: []string{"127.0.0.1:9092"}})
	assert.Error(t, err)

	c, err := NewConsumer(config.KafkaConfig{Brokers: []string{"127.0.0.1:9092"}, Topic: "sms.callbacks"})
	require.NoError(t, err)
	assert.Equal(t, "sms.callbacks", c.Topic())
	require.NoError(t, c.Close())
}
