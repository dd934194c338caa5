package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openzipkin/zipkin-go"
	zipkinhttp "github.com/openzipkin/zipkin-go/middleware/http"
	"github.com/openzipkin/zipkin-go/reporter"
	"github.com/trakkie-id/paynow/model"
)

const payPath = "/enrol/paynow/pay"

// PayResult tells the caller where to send the payer's browser.
type PayResult struct {
	TransactionID uint   `json:"transaction_id"`
	RedirectURL   string `json:"redirect_url"`
	PollURL       string `json:"poll_url"`
}

// APIError is a non-2xx answer of the paynow service.
type APIError struct {
	Status  int    `json:"-"`
	Kind    string `json:"kind"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paynow service returned %d (%s): %s", e.Status, e.Kind, e.Message)
}

// Initiator starts payments on a remote paynow service.
type Initiator struct {
	baseURL string
	http    *zipkinhttp.Client
}

func NewInitiator(baseURL string, tracer *zipkin.Tracer, timeout time.Duration) (*Initiator, error) {
	if tracer == nil {
		var err error
		if tracer, err = zipkin.NewTracer(reporter.NewNoopReporter()); err != nil {
			return nil, err
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client, err := zipkinhttp.NewClient(tracer, zipkinhttp.WithClient(&http.Client{Timeout: timeout}))
	if err != nil {
		return nil, err
	}

	return &Initiator{baseURL: strings.TrimRight(baseURL, "/"), http: client}, nil
}

// Pay begins a payment of offer instanceID for payer.
func (i *Initiator) Pay(ctx context.Context, instanceID uint, payer model.Payer) (*PayResult, error) {
	body, err := json.Marshal(map[string]interface{}{
		"instance_id": instanceID,
		"payer":       payer,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.baseURL+payPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := i.http.DoWithAppSpan(req, "paynow_pay")
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	if res.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: res.StatusCode}
		if err := json.Unmarshal(raw, apiErr); err != nil {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return nil, apiErr
	}

	result := &PayResult{}
	if err := json.Unmarshal(raw, result); err != nil {
		return nil, fmt.Errorf("decode pay reply: %w", err)
	}
	return result, nil
}
