package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/quest-league/internal/config"
	"github.com/quest-league/internal/domain"
	"github.com/quest-league/internal/service"
)

// SubmissionHandler runs the submission acceptance path for ingested
// messages.
type SubmissionHandler interface {
	Authenticate(ctx context.Context, apiKey string) (*domain.Agent, error)
	Submit(ctx context.Context, agent *domain.Agent, req domain.SubmitRequest) (*domain.Submission, error)
}

// SubmissionMessage is the wire format for ingested submissions: the
// agent's credential plus the regular submission payload.
type SubmissionMessage struct {
	APIKey string `json:"api_key"`
	domain.SubmitRequest
}

// Consumer ingests submission messages from Kafka through the same
// acceptance logic as the HTTP endpoint. Each message stands alone; a
// rejected submission is logged and skipped, never retried.
type Consumer struct {
	config        *config.KafkaConfig
	handler       SubmissionHandler
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, handler SubmissionHandler, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		config:        cfg,
		handler:       handler,
		logger:        logger,
		consumerGroup: consumerGroup,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}, nil
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &consumerGroupHandler{
				consumer: c,
				ready:    c.ready,
			}

			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if err == sarama.ErrClosedConsumerGroup {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}

			if c.ctx.Err() != nil {
				return
			}

			c.ready = make(chan bool)
		}
	}()

	// Wait until consumer is ready
	<-c.ready
	c.logger.Info("Kafka consumer ready")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan bool
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes messages from a topic partition
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil

		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			h.process(message)
			session.MarkMessage(message, "")
		}
	}
}

// process runs one ingested submission through authentication and the
// acceptance logic. Every outcome marks the message consumed; duplicates
// are expected under redelivery and logged at debug.
func (h *consumerGroupHandler) process(message *sarama.ConsumerMessage) {
	logger := h.consumer.logger

	var msg SubmissionMessage
	if err := json.Unmarshal(message.Value, &msg); err != nil {
		logger.Warn("failed to unmarshal submission message",
			"error", err,
			"offset", message.Offset,
			"partition", message.Partition,
		)
		return
	}

	if msg.APIKey == "" {
		logger.Warn("submission message missing api_key",
			"offset", message.Offset,
			"partition", message.Partition,
		)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	agent, err := h.consumer.handler.Authenticate(ctx, msg.APIKey)
	if err != nil {
		logger.Warn("submission message failed authentication",
			"error", err,
			"offset", message.Offset,
		)
		return
	}

	if _, err := h.consumer.handler.Submit(ctx, agent, msg.SubmitRequest); err != nil {
		if _, ok := service.IsDuplicateSubmission(err); ok {
			logger.Debug("duplicate submission ingested",
				"agent_name", agent.Name,
				"season_id", msg.SeasonID,
				"day", msg.Day,
			)
			return
		}
		logger.Warn("ingested submission rejected",
			"agent_name", agent.Name,
			"season_id", msg.SeasonID,
			"day", msg.Day,
			"error", err,
		)
		return
	}

	logger.Debug("ingested submission accepted",
		"agent_name", agent.Name,
		"season_id", msg.SeasonID,
		"day", msg.Day,
	)
}
