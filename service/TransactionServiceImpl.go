package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/apsdehal/go-logger"
	"github.com/openzipkin/zipkin-go"
	"github.com/openzipkin/zipkin-go/reporter"
	"github.com/shopspring/decimal"
	"github.com/trakkie-id/paynow/auth"
	"github.com/trakkie-id/paynow/codec"
	"github.com/trakkie-id/paynow/ledger"
	"github.com/trakkie-id/paynow/model"
	"gorm.io/datatypes"
)

const approvedResponse = "APPROVED"

var minimumCost = decimal.New(1, -2)

// TransactionService drives a payment through
// CREATED -> AWAITING_GATEWAY -> CONFIRMED | ABORTED.
type TransactionService interface {
	Begin(ctx context.Context, offer *model.EnrolmentOffer, payer *model.Payer) (*BeginResult, error)
	Confirm(ctx context.Context, token string) (*ConfirmResult, error)
	Abort(ctx context.Context, payload string) error
}

type BeginResult struct {
	TransactionID uint
	RedirectURL   string
	PollURL       string
}

type ConfirmResult struct {
	Transaction *model.Transaction
	CourseID    uint
}

type Gateway interface {
	Send(ctx context.Context, payload string) (string, error)
}

// Settings are the merchant's Paynow integration settings.
type Settings struct {
	// Integration id and key issued by Paynow.
	UserID string
	Key    string

	SiteName   string
	SuccessURL string
	// ReturnURL is where the payer's browser lands; defaults to SuccessURL.
	ReturnURL string

	Currencies  []string
	DefaultCost decimal.Decimal

	// VerifyConfirm makes the success callback resolve the transaction through
	// a signed gateway reply instead of trusting the raw ledger id.
	VerifyConfirm bool
}

type Deps struct {
	Ledger        ledger.Ledger
	Gateway       Gateway
	Authenticator *auth.Authenticator
	Offers        OfferStore
	Enrolments    EnrolmentSink
	Publisher     Publisher
	Logger        *logger.Logger
	Tracer        *zipkin.Tracer
	Settings      Settings
	Now           func() time.Time
}

type transactionServiceImpl struct {
	ledger     ledger.Ledger
	gateway    Gateway
	auth       *auth.Authenticator
	offers     OfferStore
	enrolments EnrolmentSink
	publisher  Publisher
	logger     *logger.Logger
	tracer     *zipkin.Tracer
	settings   Settings
	now        func() time.Time
}

func TransactionServiceImpl(deps Deps) (TransactionService, error) {
	if deps.Ledger == nil || deps.Gateway == nil || deps.Offers == nil || deps.Enrolments == nil || deps.Logger == nil {
		return nil, errors.New("ledger, gateway, offers, enrolments and logger are required")
	}

	t := &transactionServiceImpl{
		ledger:     deps.Ledger,
		gateway:    deps.Gateway,
		auth:       deps.Authenticator,
		offers:     deps.Offers,
		enrolments: deps.Enrolments,
		publisher:  deps.Publisher,
		logger:     deps.Logger,
		tracer:     deps.Tracer,
		settings:   deps.Settings,
		now:        deps.Now,
	}

	if t.auth == nil {
		t.auth = auth.NewAuthenticator(deps.Settings.Key)
	}
	if t.publisher == nil {
		t.publisher = nopPublisher{}
	}
	if t.now == nil {
		t.now = time.Now
	}
	if t.tracer == nil {
		tracer, err := zipkin.NewTracer(reporter.NewNoopReporter())
		if err != nil {
			return nil, err
		}
		t.tracer = tracer
	}
	if len(t.settings.Currencies) == 0 {
		t.settings.Currencies = []string{"USD"}
	}
	if t.settings.ReturnURL == "" {
		t.settings.ReturnURL = t.settings.SuccessURL
	}

	return t, nil
}

func (t *transactionServiceImpl) Begin(ctx context.Context, offer *model.EnrolmentOffer, payer *model.Payer) (res *BeginResult, err error) {
	span, ctx := t.tracer.StartSpanFromContext(ctx, "paynow_begin")
	defer t.finish(span, "begin", &err)

	if offer == nil || payer == nil {
		return nil, fmt.Errorf("%w: offer and payer are required", ErrInvalidRequest)
	}

	if !t.recognised(offer.Currency) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, offer.Currency)
	}

	now := t.now()
	if !offer.Enabled {
		return nil, fmt.Errorf("%w: offer %d is disabled", ErrInvalidRequest, offer.ID)
	}
	if !offer.OpenAt(now) {
		return nil, fmt.Errorf("%w: offer %d is outside its enrolment window", ErrInvalidRequest, offer.ID)
	}

	cost := offer.Cost
	if !cost.IsPositive() {
		cost = t.settings.DefaultCost
	}
	cost = cost.Round(2)
	if cost.LessThan(minimumCost) {
		return nil, fmt.Errorf("%w: there is no cost associated with offer %d", ErrInvalidRequest, offer.ID)
	}

	//Log the transaction
	trx := &model.Transaction{
		CourseID:          offer.CourseID,
		UserID:            payer.ID,
		InstanceID:        offer.ID,
		Cost:              cost,
		Currency:          cleanText(offer.Currency),
		Email:             cleanText(payer.Email),
		MerchantReference: merchantReference(t.settings.SiteName, offer, payer),
		TxnData1:          cleanText(fmt.Sprintf("%d: %s", offer.CourseID, offer.CourseFullName)),
		TxnData2:          cleanText(fmt.Sprintf("%d: %s", payer.ID, payer.FullName())),
		TransactionStatus: model.TrxCreated,
	}

	id, err := t.ledger.Create(ctx, trx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransactionPersist, err)
	}
	span.Tag("paynow.transaction_id", strconv.FormatUint(uint64(id), 10))

	//Build and sign the initiate request
	reference := strconv.FormatUint(uint64(id), 10)
	fields := codec.Fields{}.
		Add("resulturl", callbackURL(t.settings.SuccessURL, reference)).
		Add("returnurl", callbackURL(t.settings.ReturnURL, reference)).
		Add("reference", reference).
		Add("amount", cost.StringFixed(2)).
		Add("id", t.settings.UserID).
		Add("authemail", trx.Email).
		Add("status", "Message")
	payload := codec.Encode(t.auth.Sign(fields).Escaped())

	raw, err := t.gateway.Send(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	reply, err := codec.DecodeFields(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayInitiationFailed, err)
	}
	values := reply.Map()

	if !strings.EqualFold(values["status"], "Ok") {
		return nil, fmt.Errorf("%w: status %q: %s", ErrGatewayInitiationFailed, values["status"], values["error"])
	}
	if _, signed := values[auth.HashField]; signed && !t.auth.VerifySigned(reply) {
		return nil, fmt.Errorf("%w: reply hash mismatch", ErrGatewayInitiationFailed)
	}
	if values["browserurl"] == "" {
		return nil, fmt.Errorf("%w: reply has no browserurl", ErrGatewayInitiationFailed)
	}

	if err := t.ledger.MarkAwaiting(ctx, id); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransactionPersist, err)
	}
	trx.TransactionStatus = model.TrxAwaitingGateway

	t.logger.Infof("[SERVER] %s transaction %d started for user %d, offer %d, %s %s",
		TraceTag(ctx), id, payer.ID, offer.ID, cost.StringFixed(2), trx.Currency)
	t.publish(ctx, BEGIN_TRANSACTION, trx)

	return &BeginResult{
		TransactionID: id,
		RedirectURL:   values["browserurl"],
		PollURL:       values["pollurl"],
	}, nil
}

func (t *transactionServiceImpl) Confirm(ctx context.Context, token string) (res *ConfirmResult, err error) {
	span, ctx := t.tracer.StartSpanFromContext(ctx, "paynow_confirm")
	defer t.finish(span, "confirm", &err)

	var (
		trx   *model.Transaction
		reply *codec.Reply
	)

	if t.settings.VerifyConfirm {
		if reply, err = t.processResponse(ctx, token); err != nil {
			return nil, err
		}
		trx, err = t.lookup(ctx, reply.TxnID)
	} else {
		trx, err = t.lookup(ctx, token)
	}
	if err != nil {
		return nil, err
	}

	// abort if already processed
	if trx.Processed() || trx.TransactionStatus.Terminal() {
		return nil, fmt.Errorf("%w: id %d", ErrAlreadyProcessed, trx.ID)
	}

	if reply != nil {
		applyReply(trx, reply)
		if !reply.Approved() {
			return nil, t.recordFailure(ctx, trx, reply)
		}
	}

	trx.Success = true
	trx.Response = approvedResponse
	trx.TransactionStatus = model.TrxConfirmed

	if err := t.update(ctx, trx); err != nil {
		return nil, err
	}
	t.publish(ctx, CONFIRM_TRANSACTION, trx)

	//Enrol the payer, the ledger write above guarantees we get here once
	if err := t.enrol(ctx, trx); err != nil {
		t.logger.Criticalf("[SERVER] %s transaction %d confirmed but enrolment failed, manual action required: %s",
			TraceTag(ctx), trx.ID, err)
		return nil, fmt.Errorf("%w: transaction %d: %v", ErrEnrolmentFailed, trx.ID, err)
	}

	t.logger.Infof("[SERVER] %s transaction %d confirmed, user %d enrolled in course %d",
		TraceTag(ctx), trx.ID, trx.UserID, trx.CourseID)

	return &ConfirmResult{Transaction: trx, CourseID: trx.CourseID}, nil
}

func (t *transactionServiceImpl) Abort(ctx context.Context, payload string) (err error) {
	span, ctx := t.tracer.StartSpanFromContext(ctx, "paynow_abort")
	defer t.finish(span, "abort", &err)

	reply, err := t.processResponse(ctx, payload)
	if err != nil {
		return err
	}

	trx, err := t.lookup(ctx, reply.TxnID)
	if err != nil {
		return err
	}

	// abort if already processed
	if trx.Processed() || trx.TransactionStatus.Terminal() {
		return fmt.Errorf("%w: id %d", ErrAlreadyProcessed, trx.ID)
	}

	applyReply(trx, reply)
	if reply.Approved() {
		t.logger.Warningf("[SERVER] %s gateway reports success for transaction %d on the failure callback",
			TraceTag(ctx), trx.ID)
	}

	return t.recordFailure(ctx, trx, reply)
}

// processResponse asks the gateway for the authoritative outcome behind a
// callback token and checks that the reply is valid and signed.
func (t *transactionServiceImpl) processResponse(ctx context.Context, token string) (*codec.Reply, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("%w: empty callback token", ErrInvalidRequest)
	}

	body, err := codec.ProcessResponseRequest{
		UserID:   t.settings.UserID,
		Key:      t.settings.Key,
		Response: token,
	}.Marshal()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	raw, err := t.gateway.Send(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	reply, err := codec.ParseReply([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	if !reply.IsValid() {
		return nil, fmt.Errorf("%w: reply flagged invalid", ErrInvalidTransaction)
	}
	if !t.auth.Verify(reply.Fields(), reply.TxnMac) {
		return nil, fmt.Errorf("%w: reply digest mismatch", ErrInvalidTransaction)
	}

	return reply, nil
}

func (t *transactionServiceImpl) recordFailure(ctx context.Context, trx *model.Transaction, reply *codec.Reply) error {
	trx.Success = reply.Approved()
	trx.Response = cleanText(reply.ResponseText)
	trx.TransactionStatus = model.TrxAborted

	if err := t.update(ctx, trx); err != nil {
		return err
	}

	t.logger.Infof("[SERVER] %s transaction %d aborted: %s", TraceTag(ctx), trx.ID, trx.Response)
	t.publish(ctx, ABORT_TRANSACTION, trx)

	return &PaymentFailure{TransactionID: trx.ID, ResponseText: trx.Response}
}

func (t *transactionServiceImpl) enrol(ctx context.Context, trx *model.Transaction) error {
	offer, err := t.offers.Offer(ctx, trx.InstanceID)
	if err != nil {
		return err
	}
	if !offer.Enabled {
		return fmt.Errorf("offer %d is not enabled", offer.ID)
	}

	var start, end time.Time
	if period := offer.EnrolPeriod(); period > 0 {
		start = t.now()
		end = start.Add(period)
	}

	if err := t.enrolments.Enrol(ctx, Enrolment{
		TransactionID: trx.ID,
		InstanceID:    offer.ID,
		UserID:        trx.UserID,
		RoleID:        offer.RoleID,
		TimeStart:     start,
		TimeEnd:       end,
	}); err != nil {
		return err
	}

	enrolmentsTotal.Inc()
	return nil
}

func (t *transactionServiceImpl) lookup(ctx context.Context, token string) (*model.Transaction, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(token), 10, 64)
	if err != nil || id == 0 {
		return nil, fmt.Errorf("%w: token %q", ErrTransactionNotFound, token)
	}

	trx, err := t.ledger.Lookup(ctx, uint(id))
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, fmt.Errorf("%w: id %d", ErrTransactionNotFound, id)
	} else if err != nil {
		return nil, err
	}

	return trx, nil
}

func (t *transactionServiceImpl) update(ctx context.Context, trx *model.Transaction) error {
	err := t.ledger.Update(ctx, trx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ledger.ErrAlreadyProcessed):
		return fmt.Errorf("%w: id %d", ErrAlreadyProcessed, trx.ID)
	case errors.Is(err, ledger.ErrNotFound):
		return fmt.Errorf("%w: id %d", ErrTransactionNotFound, trx.ID)
	default:
		return fmt.Errorf("%w: %v", ErrTransactionPersist, err)
	}
}

func (t *transactionServiceImpl) publish(ctx context.Context, topic string, trx *model.Transaction) {
	if err := t.publisher.Publish(ctx, topic, newEvent(trx, t.now())); err != nil {
		t.logger.Errorf("[KAFKA] %s failed to publish %s for transaction %d: %s", TraceTag(ctx), topic, trx.ID, err)
	}
}

func (t *transactionServiceImpl) finish(span zipkin.Span, operation string, err *error) {
	if *err != nil {
		span.Tag(string(zipkin.TagError), fmt.Sprint(*err))
		t.logger.Warningf("[SERVER] %s failed: %s", operation, *err)
	}
	observe(operation, *err)
	span.Finish()
}

func (t *transactionServiceImpl) recognised(currency string) bool {
	for _, c := range t.settings.Currencies {
		if c == currency {
			return true
		}
	}
	return false
}

// applyReply copies the gateway's outcome detail. Card data is kept for audit
// only and never drives a decision.
func applyReply(trx *model.Transaction, reply *codec.Reply) {
	trx.AuthCode = cleanText(reply.AuthCode)
	trx.CardType = cleanText(reply.CardName)
	trx.CardHolder = cleanText(reply.CardHolderName)
	trx.CardNumber = cleanText(reply.CardNumber)
	trx.CardExpiry = cleanText(reply.DateExpiry)
	trx.ClientInfo = cleanText(reply.ClientInfo)
	trx.PaynowTxnRef = cleanText(reply.PaynowTxnRef)
	trx.TxnMac = cleanText(reply.TxnMac)

	audit := reply.Fields().Map()
	audit["TxnMac"] = reply.TxnMac
	audit["valid"] = reply.Valid
	if raw, err := json.Marshal(audit); err == nil {
		trx.GatewayReply = datatypes.JSON(raw)
	}
}

func callbackURL(base, reference string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?result=" + url.QueryEscape(reference)
	}
	q := u.Query()
	q.Set("result", reference)
	u.RawQuery = q.Encode()
	return u.String()
}
