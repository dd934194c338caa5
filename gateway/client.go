package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/apsdehal/go-logger"
	"github.com/openzipkin/zipkin-go"
	zipkinhttp "github.com/openzipkin/zipkin-go/middleware/http"
	"github.com/openzipkin/zipkin-go/reporter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	DefaultURL     = "https://www.paynow.co.zw/interface/initiatetransaction"
	DefaultTimeout = 30 * time.Second

	maxReplyBytes = 1 << 20
)

// ErrUnavailable covers every failure to complete the exchange with the
// gateway: refused endpoint, transport error, timeout or non-2xx reply.
var ErrUnavailable = errors.New("payment gateway unavailable")

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "paynow",
	Name:      "gateway_request_duration_seconds",
	Help:      "Duration of POST requests to the Paynow gateway.",
	Buckets:   prometheus.DefBuckets,
}, []string{"outcome"})

type Config struct {
	URL     string
	Timeout time.Duration

	// InsecureSkipVerify disables certificate verification. Never enable it
	// against the production gateway.
	InsecureSkipVerify bool

	// AllowPlaintext accepts http:// endpoints.
	AllowPlaintext bool

	// Transport replaces the default TLS transport.
	Transport http.RoundTripper

	Tracer *zipkin.Tracer
	Logger *logger.Logger
}

type Client struct {
	url    string
	http   *zipkinhttp.Client
	logger *logger.Logger
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	endpoint, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: bad endpoint %q: %v", ErrUnavailable, cfg.URL, err)
	}
	if endpoint.Scheme != "https" && !(cfg.AllowPlaintext && endpoint.Scheme == "http") {
		return nil, fmt.Errorf("%w: endpoint %q is not https", ErrUnavailable, cfg.URL)
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer, err = zipkin.NewTracer(reporter.NewNoopReporter())
		if err != nil {
			return nil, err
		}
	}

	transport := cfg.Transport
	if transport == nil {
		base := http.DefaultTransport.(*http.Transport).Clone()
		base.TLSClientConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		}
		transport = base
	}

	if cfg.InsecureSkipVerify && cfg.Logger != nil {
		cfg.Logger.Warningf("[GATEWAY] certificate verification disabled for %s", cfg.URL)
	}

	client, err := zipkinhttp.NewClient(tracer,
		zipkinhttp.WithClient(&http.Client{Timeout: cfg.Timeout}),
		zipkinhttp.TransportOptions(zipkinhttp.RoundTripper(transport)),
		zipkinhttp.ClientTags(map[string]string{"component": "paynow-gateway"}),
	)
	if err != nil {
		return nil, err
	}

	return &Client{url: cfg.URL, http: client, logger: cfg.Logger}, nil
}

// Send posts payload and returns the raw reply body. Failures are never
// retried here: resubmitting a payment request may charge the payer twice.
func (c *Client) Send(ctx context.Context, payload string) (string, error) {
	start := time.Now()
	reply, err := c.send(ctx, payload)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		if c.logger != nil {
			c.logger.Errorf("[GATEWAY] request to %s failed: %s", c.url, err)
		}
	}
	requestDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	return reply, err
}

func (c *Client) send(ctx context.Context, payload string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.http.DoWithAppSpan(req, "paynow_gateway_post")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxReplyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read reply: %v", ErrUnavailable, err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return "", fmt.Errorf("%w: gateway returned %s", ErrUnavailable, res.Status)
	}

	if c.logger != nil {
		c.logger.Debugf("[GATEWAY] %s replied %d bytes", c.url, len(body))
	}
	return string(body), nil
}
