package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/apsdehal/go-logger"
	"github.com/hashicorp/go-uuid"
	"github.com/openzipkin/zipkin-go"
	"github.com/openzipkin/zipkin-go/propagation/b3"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/trakkie-id/paynow/model"
)

var (
	BEGIN_TRANSACTION   = "PAYNOW_TRANSACTION_BEGIN"
	CONFIRM_TRANSACTION = "PAYNOW_TRANSACTION_CONFIRM"
	ABORT_TRANSACTION   = "PAYNOW_TRANSACTION_ABORT"
)

// Event is published on every lifecycle transition.
type Event struct {
	EventID       string                  `json:"event_id"`
	TransactionID uint                    `json:"transaction_id"`
	CourseID      uint                    `json:"course_id"`
	UserID        uint                    `json:"user_id"`
	InstanceID    uint                    `json:"instance_id"`
	Status        model.TransactionStatus `json:"status"`
	Success       bool                    `json:"success"`
	Response      string                  `json:"response,omitempty"`
	Amount        decimal.Decimal         `json:"amount"`
	Currency      string                  `json:"currency"`
	OccurredAt    time.Time               `json:"occurred_at"`
}

// publishTimeout bounds a single publish so a slow broker does not hold up the
// payer's callback.
const publishTimeout = 2 * time.Second

var generateEventID = uuid.GenerateUUID

func newEvent(trx *model.Transaction, at time.Time) Event {
	id, err := generateEventID()
	if err != nil {
		id = fmt.Sprintf("%d-%s-%d", trx.ID, trx.TransactionStatus, at.UnixNano())
	}
	return Event{
		EventID:       id,
		TransactionID: trx.ID,
		CourseID:      trx.CourseID,
		UserID:        trx.UserID,
		InstanceID:    trx.InstanceID,
		Status:        trx.TransactionStatus,
		Success:       trx.Success,
		Response:      trx.Response,
		Amount:        trx.Cost,
		Currency:      trx.Currency,
		OccurredAt:    at,
	}
}

type Publisher interface {
	Publish(ctx context.Context, topic string, event Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, Event) error { return nil }

type KafkaPublisher struct {
	writer *kafka.Writer
	logger *logger.Logger
}

func NewKafkaPublisher(broker string, log *logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(broker),
			Balancer:               &kafka.LeastBytes{},
			BatchTimeout:           10 * time.Millisecond,
			WriteTimeout:           publishTimeout,
			AllowAutoTopicCreation: true,
		},
		logger: log,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, topic string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte(event.EventID),
		Value:   payload,
		Headers: traceHeaders(ctx),
	})
	if err != nil {
		p.logger.Errorf("[KAFKA] failed to write message: %s", err)
		return err
	}

	p.logger.Infof("[KAFKA] Message Sent! Topic : %s Payload: %s", topic, string(payload))
	return nil
}

// traceHeaders carries the b3 context of the span in ctx, if any.
func traceHeaders(ctx context.Context) []kafka.Header {
	span := zipkin.SpanFromContext(ctx)
	if span == nil {
		return nil
	}

	sc := span.Context()
	headers := []kafka.Header{
		{Key: b3.TraceID, Value: []byte(sc.TraceID.String())},
		{Key: b3.SpanID, Value: []byte(sc.ID.String())},
	}
	if sc.ParentID != nil {
		headers = append(headers, kafka.Header{Key: b3.ParentSpanID, Value: []byte(sc.ParentID.String())})
	}
	if sc.Debug {
		headers = append(headers, kafka.Header{Key: b3.Flags, Value: []byte("1")})
	} else if sc.Sampled != nil {
		sampled := "0"
		if *sc.Sampled {
			sampled = "1"
		}
		headers = append(headers, kafka.Header{Key: b3.Sampled, Value: []byte(sampled)})
	}
	return headers
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
