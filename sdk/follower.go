package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/apsdehal/go-logger"
	"github.com/openzipkin/zipkin-go"
	zipkinmodel "github.com/openzipkin/zipkin-go/model"
	"github.com/openzipkin/zipkin-go/propagation/b3"
	"github.com/openzipkin/zipkin-go/reporter"
	"github.com/segmentio/kafka-go"
	"github.com/trakkie-id/paynow/service"
	"golang.org/x/sync/errgroup"
)

// Handler reacts to one lifecycle event.
type Handler func(ctx context.Context, event service.Event) error

type FollowerConfig struct {
	Brokers []string
	GroupID string

	OnBegin   Handler
	OnConfirm Handler
	OnAbort   Handler

	Tracer   *zipkin.Tracer
	Logger   *logger.Logger
	LogLevel string
}

// Follower consumes the transaction lifecycle topics on behalf of a
// downstream system.
type Follower struct {
	cfg      FollowerConfig
	handlers map[string]Handler
}

func NewFollower(cfg FollowerConfig) (*Follower, error) {
	if cfg.Logger == nil {
		cfg.Logger = setUpLogger(cfg.LogLevel)
	}
	if cfg.Tracer == nil {
		tracer, err := zipkin.NewTracer(reporter.NewNoopReporter())
		if err != nil {
			return nil, err
		}
		cfg.Tracer = tracer
	}

	handlers := map[string]Handler{}
	if cfg.OnBegin != nil {
		handlers[service.BEGIN_TRANSACTION] = cfg.OnBegin
	}
	if cfg.OnConfirm != nil {
		handlers[service.CONFIRM_TRANSACTION] = cfg.OnConfirm
	}
	if cfg.OnAbort != nil {
		handlers[service.ABORT_TRANSACTION] = cfg.OnAbort
	}
	if len(handlers) == 0 {
		return nil, fmt.Errorf("follower needs at least one handler")
	}

	return &Follower{cfg: cfg, handlers: handlers}, nil
}

// Run reads every handled topic until ctx is cancelled.
func (f *Follower) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for topic := range f.handlers {
		topic := topic
		g.Go(func() error {
			return f.listen(ctx, topic)
		})
	}
	return g.Wait()
}

func (f *Follower) listen(ctx context.Context, topic string) error {
	f.cfg.Logger.Debugf("[KAFKA] Waiting for paynow events [Topic : %s]", topic)

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  f.cfg.Brokers,
		GroupID:  f.cfg.GroupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			f.cfg.Logger.Errorf("[KAFKA] Unable to close reader, err : %+v", err)
		}
	}()

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			f.cfg.Logger.Errorf("[KAFKA] Unable to read from %s, err : %+v", topic, err)
			return err
		}

		if err := f.Handle(ctx, m); err != nil {
			f.cfg.Logger.Errorf("[KAFKA] Handler failed for %s at offset %d, err : %+v", m.Topic, m.Offset, err)
		}

		if err := r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			f.cfg.Logger.Errorf("[KAFKA] Unable to commit offset %d, err : %+v", m.Offset, err)
		}
	}
}

// Handle decodes one message and dispatches it to the handler of its topic.
// Messages of topics without a handler are ignored.
func (f *Follower) Handle(ctx context.Context, m kafka.Message) error {
	handler, ok := f.handlers[m.Topic]
	if !ok {
		return nil
	}

	event := service.Event{}
	if err := json.Unmarshal(m.Value, &event); err != nil {
		return fmt.Errorf("parse payload: %w", err)
	}

	opts := []zipkin.SpanOption{zipkin.Kind(zipkinmodel.Consumer)}
	if parent, err := b3.ParseHeaders(header(m, b3.TraceID), header(m, b3.SpanID), header(m, b3.ParentSpanID), header(m, b3.Sampled), header(m, b3.Flags)); err == nil {
		opts = append(opts, zipkin.Parent(*parent))
	}

	span := f.cfg.Tracer.StartSpan("paynow_event_"+strings.ToLower(string(event.Status)), opts...)
	defer span.Finish()
	span.Tag("kafka.topic", m.Topic)
	ctx = zipkin.NewContext(ctx, span)

	f.cfg.Logger.Infof("[KAFKA] %s Received paynow event [Topic : %s, Transaction : %d, Event : %s]", service.TraceTag(ctx), m.Topic, event.TransactionID, event.EventID)

	if err := handler(ctx, event); err != nil {
		span.Tag(string(zipkin.TagError), fmt.Sprint(err))
		return err
	}
	return nil
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if strings.EqualFold(h.Key, key) {
			return string(h.Value)
		}
	}
	return ""
}

func setUpLogger(logLevel string) *logger.Logger {
	log, _ := logger.New("PAYNOW-CLIENT", 100, os.Stdout)
	log.SetFormat("%{time} [%{module}] [%{level}] %{message}")

	if strings.EqualFold(logLevel, "DEBUG") {
		log.SetLogLevel(logger.DebugLevel)
	} else {
		log.SetLogLevel(logger.InfoLevel)
	}
	return log
}
