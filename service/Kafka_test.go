package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/openzipkin/zipkin-go"
	"github.com/openzipkin/zipkin-go/propagation/b3"
	"github.com/openzipkin/zipkin-go/reporter"
	"github.com/segmentio/kafka-go"
	"github.com/trakkie-id/paynow/model"
	"gorm.io/gorm"
)

func headerMap(headers []kafka.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		out[h.Key] = string(h.Value)
	}
	return out
}

func TestTraceHeaders(t *testing.T) {
	tests := []struct {
		name        string
		sampler     zipkin.Sampler
		wantSampled string
	}{
		{name: "Given a sampled span When publishing Then the sampled flag is 1", sampler: zipkin.AlwaysSample, wantSampled: "1"},
		{name: "Given an unsampled span When publishing Then the sampled flag is 0", sampler: zipkin.NeverSample, wantSampled: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer, err := zipkin.NewTracer(reporter.NewNoopReporter(), zipkin.WithSampler(tt.sampler))
			if err != nil {
				t.Fatalf("NewTracer() error = %v", err)
			}
			span := tracer.StartSpan("publish")
			defer span.Finish()

			headers := headerMap(traceHeaders(zipkin.NewContext(context.Background(), span)))

			sc := span.Context()
			if headers[b3.TraceID] != sc.TraceID.String() || headers[b3.SpanID] != sc.ID.String() {
				t.Errorf("trace headers = %v", headers)
			}
			if headers[b3.Sampled] != tt.wantSampled {
				t.Errorf("%s = %q, want %q", b3.Sampled, headers[b3.Sampled], tt.wantSampled)
			}
		})
	}

	t.Run("Given no span When publishing Then no headers are written", func(t *testing.T) {
		if headers := traceHeaders(context.Background()); len(headers) != 0 {
			t.Errorf("headers = %v", headers)
		}
	})
}

func TestNewEventFallsBackWithoutUUID(t *testing.T) {
	orig := generateEventID
	t.Cleanup(func() { generateEventID = orig })
	generateEventID = func() (string, error) { return "", errors.New("entropy exhausted") }

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	event := newEvent(&model.Transaction{Model: gorm.Model{ID: 12}, TransactionStatus: model.TrxAborted}, at)

	if event.EventID == "" || !strings.HasPrefix(event.EventID, "12-") {
		t.Errorf("EventID = %q, want a fallback id for transaction 12", event.EventID)
	}
	if event.TransactionID != 12 || !event.OccurredAt.Equal(at) {
		t.Errorf("event = %+v", event)
	}
}
