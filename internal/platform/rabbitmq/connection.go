// Package rabbitmq implements the event log on a durable RabbitMQ quorum
// queue. Competing consumers on the queue play the role of a consumer
// group, and the broker tracks acknowledgement per delivery.
package rabbitmq

import (
	"fmt"
	"time"

	"github.com/phrazzld/taskflow-api/internal/config"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DeadLetterSuffix is appended to the queue name to form the dead-letter
// queue.
const DeadLetterSuffix = ".dead"

// Dial opens a connection using the URL and dial timeout from cfg.
func Dial(cfg config.RabbitMQConfig) (*amqp.Connection, error) {
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Dial:      amqp.DefaultDial(timeout),
		Heartbeat: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}
	return conn, nil
}

// declareQueues declares the event queue and its dead-letter queue. Both
// sides declare with identical arguments so either may start first.
func declareQueues(ch *amqp.Channel, queue string) error {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
		"x-queue-type": "quorum",
	}); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}
	if _, err := ch.QueueDeclare(queue+DeadLetterSuffix, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queue+DeadLetterSuffix, err)
	}
	return nil
}
