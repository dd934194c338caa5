package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/apsdehal/go-logger"
	"github.com/gin-gonic/gin"
	"github.com/openzipkin/zipkin-go"
	zipkinhttp "github.com/openzipkin/zipkin-go/middleware/http"
	"github.com/trakkie-id/paynow/model"
	"github.com/trakkie-id/paynow/service"
)

const (
	PayPath     = "/enrol/paynow/pay"
	ConfirmPath = "/enrol/paynow/confirm"
	FailPath    = "/enrol/paynow/fail"
	HealthPath  = "/healthz"
)

type Deps struct {
	Service service.TransactionService
	Offers  service.OfferStore
	// Check probes the database for /healthz.
	Check  func(ctx context.Context) error
	Tracer *zipkin.Tracer
	Logger *logger.Logger
}

// Server serves the payer facing callbacks.
type Server struct {
	deps    Deps
	router  *gin.Engine
	handler http.Handler
	http    *http.Server
}

type payRequest struct {
	InstanceID uint         `json:"instance_id" binding:"required"`
	Payer      *model.Payer `json:"payer" binding:"required"`
}

func New(deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), accessLog(deps.Logger))

	s := &Server{deps: deps, router: router}

	router.POST(PayPath, s.handlePay)
	router.GET(ConfirmPath, s.handleConfirm)
	router.GET(FailPath, s.handleFail)
	router.GET(HealthPath, s.handleHealth)

	s.handler = router
	if deps.Tracer != nil {
		s.handler = zipkinhttp.NewServerMiddleware(deps.Tracer, zipkinhttp.SpanName("paynow_callback"))(router)
	}
	s.http = &http.Server{Handler: s.handler, ReadHeaderTimeout: 10 * time.Second}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	if s.deps.Logger != nil {
		s.deps.Logger.Info("HTTP Server Started, listening on " + addr)
	}

	if err := s.http.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handlePay(c *gin.Context) {
	var req payRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	offer, err := s.deps.Offers.Offer(c.Request.Context(), req.InstanceID)
	if errors.Is(err, service.ErrOfferNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	} else if err != nil {
		s.fail(c, err)
		return
	}

	res, err := s.deps.Service.Begin(c.Request.Context(), offer, req.Payer)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transaction_id": res.TransactionID,
		"redirect_url":   res.RedirectURL,
		"poll_url":       res.PollURL,
	})
}

func (s *Server) handleConfirm(c *gin.Context) {
	res, err := s.deps.Service.Confirm(c.Request.Context(), c.Query("result"))
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "confirmed",
		"transaction_id": res.Transaction.ID,
		"course_id":      res.CourseID,
	})
}

func (s *Server) handleFail(c *gin.Context) {
	if err := s.deps.Service.Abort(c.Request.Context(), c.Query("result")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "aborted"})
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.deps.Check != nil {
		if err := s.deps.Check(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) fail(c *gin.Context, err error) {
	body := gin.H{"error": err.Error(), "kind": service.ErrorKind(err)}

	var failure *service.PaymentFailure
	if errors.As(err, &failure) {
		body["transaction_id"] = failure.TransactionID
		body["response_text"] = failure.ResponseText
	}

	c.JSON(StatusFor(err), body)
}

// StatusFor maps a service error to its HTTP status code.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrUnsupportedCurrency),
		errors.Is(err, service.ErrInvalidTransaction):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrTransactionNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrAlreadyProcessed):
		return http.StatusConflict
	case errors.Is(err, service.ErrPaymentFailure):
		return http.StatusPaymentRequired
	case errors.Is(err, service.ErrGatewayUnavailable),
		errors.Is(err, service.ErrGatewayInitiationFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func accessLog(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if log != nil {
			log.Infof("[SERVER] %s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
		}
	}
}
