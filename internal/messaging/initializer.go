package messaging

import (
	"go.uber.org/zap"
)

const (
	// Fanout exchange
	ExperimentBroadcastExchange = "experiment_broadcast_exchange" // fanout exchange for broadcasting experiment lifecycle events

	// Direct exchange
	DirectExchange = "direct_exchange" // direct exchange for routing trials and build jobs

	// Queues
	TrialQueue         = "trial_queue"
	CoverageBuildQueue = "coverage_build_queue"
	MeasureQueue       = "measure_queue"
	ReportQueue        = "report_queue"
)

var (
	allQueues = []string{
		TrialQueue,
		CoverageBuildQueue,
		MeasureQueue,
		ReportQueue,
	}
	experimentBroadcastGroup = []string{
		MeasureQueue,
		ReportQueue,
	}
	priorityEnabled = map[string]bool{
		CoverageBuildQueue: true,
	}
)

type MQInitializer struct {
	rabbitMQ RabbitMQ
	logger   *zap.Logger
}

// InitializeMQ declares the exchanges, queues, and bindings needed.
func InitializeMQ(rabbitMQ RabbitMQ, logger *zap.Logger) error {
	m := &MQInitializer{
		rabbitMQ: rabbitMQ,
		logger:   logger,
	}

	// declare direct exchange
	if err := m.declareExchange(DirectExchange, "direct"); err != nil {
		m.logger.Error("failed to declare direct exchange", zap.Error(err))
		return err
	}

	// Declare fanout exchange.
	if err := m.declareExchange(ExperimentBroadcastExchange, "fanout"); err != nil {
		m.logger.Error("failed to declare experiment broadcast exchange", zap.Error(err))
		return err
	}

	// Declare all queues.
	for _, queueName := range allQueues {
		if err := m.declareQueue(queueName); err != nil {
			m.logger.Error("failed to declare queue", zap.String("queue", queueName), zap.Error(err))
			return err
		}
	}

	// bind each listener queue.
	for _, queueName := range experimentBroadcastGroup {
		// Bind to the experiment_broadcast exchange (fanout binding, routing key is ignored).
		if err := m.bindQueue(queueName, "", ExperimentBroadcastExchange); err != nil {
			m.logger.Error("failed to bind queue to experiment broadcast exchange", zap.String("queue", queueName), zap.Error(err))
			return err
		}
	}

	m.logger.Info("successfully initialized RabbitMQ exchanges, queues, and bindings")
	return nil
}

// declareExchange declares an exchange of the given kind.
func (s *MQInitializer) declareExchange(name, kind string) error {
	channel := s.rabbitMQ.GetChannel()
	defer channel.Close()

	return channel.ExchangeDeclare(
		name,
		kind,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
}

// declareQueue declares a durable queue and then bind it to the direct exchange.
func (s *MQInitializer) declareQueue(name string) error {
	channel := s.rabbitMQ.GetChannel()
	defer channel.Close()

	args := make(map[string]any)
	if priorityEnabled[name] {
		args["x-max-priority"] = 10
	}

	_, err := channel.QueueDeclare(
		name,
		true,  // durable
		false, // auto-deleted
		false, // exclusive
		false, // no-wait
		args,  // arguments
	)
	if err != nil {
		return err
	}

	return s.bindQueue(name, name, DirectExchange)
}

// bindQueue creates a binding between a queue and an exchange with the specified routing key.
func (s *MQInitializer) bindQueue(queueName, routingKey, exchange string) error {
	channel := s.rabbitMQ.GetChannel()
	defer channel.Close()

	return channel.QueueBind(
		queueName,
		routingKey,
		exchange,
		false, // no-wait
		nil,   // arguments
	)
}
