package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/trakkie-id/paynow/model"
	"github.com/trakkie-id/paynow/testutil"
)

func newTestLedger(t *testing.T) *GormLedger {
	t.Helper()
	return NewGormLedger(testutil.NewDB(t))
}

func makeTestTransaction(userID uint) *model.Transaction {
	return &model.Transaction{
		CourseID:          3,
		UserID:            userID,
		InstanceID:        9,
		Cost:              decimal.RequireFromString("10.00"),
		Currency:          "USD",
		Email:             "a@b.com",
		MerchantReference: "SITE:3:C:7:P A",
	}
}

func TestCreateAssignsIDs(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	first, err := l.Create(ctx, makeTestTransaction(7))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	second, err := l.Create(ctx, makeTestTransaction(7))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if first == 0 || second == 0 || first == second {
		t.Fatalf("ids not unique: %d, %d", first, second)
	}

	got, err := l.Lookup(ctx, first)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if got.TransactionStatus != model.TrxCreated || got.Processed() {
		t.Errorf("fresh transaction in unexpected state: %+v", got)
	}
	if !got.Cost.Equal(decimal.RequireFromString("10")) || got.Currency != "USD" {
		t.Errorf("cost/currency = %s %s", got.Cost, got.Currency)
	}
}

func TestCreateRejectsPreassignedID(t *testing.T) {
	l := newTestLedger(t)
	trx := makeTestTransaction(1)
	trx.ID = 55

	if _, err := l.Create(context.Background(), trx); !errors.Is(err, ErrPersist) {
		t.Errorf("Create() error = %v, want ErrPersist", err)
	}
}

func TestLookupMissing(t *testing.T) {
	l := newTestLedger(t)
	if _, err := l.Lookup(context.Background(), 404); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup() error = %v, want ErrNotFound", err)
	}
}

func TestUpdate(t *testing.T) {
	tests := []struct {
		name    string
		exists  bool
		prior   bool
		wantErr error
	}{
		{name: "Given an open transaction When updating Then outcome is stored", exists: true},
		{name: "Given a processed transaction When updating Then ErrAlreadyProcessed", exists: true, prior: true, wantErr: ErrAlreadyProcessed},
		{name: "Given a missing transaction When updating Then ErrNotFound", wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLedger(t)
			ctx := context.Background()

			id := uint(999)
			if tt.exists {
				var err error
				if id, err = l.Create(ctx, makeTestTransaction(7)); err != nil {
					t.Fatalf("Create() error = %v", err)
				}
			}
			if tt.prior {
				first := &model.Transaction{TransactionStatus: model.TrxAborted, Response: "DECLINED"}
				first.ID = id
				if err := l.Update(ctx, first); err != nil {
					t.Fatalf("first Update() error = %v", err)
				}
			}

			trx := &model.Transaction{TransactionStatus: model.TrxConfirmed, Success: true, Response: "APPROVED"}
			trx.ID = id
			err := l.Update(ctx, trx)
			if !errors.Is(err, tt.wantErr) || (tt.wantErr == nil && err != nil) {
				t.Fatalf("Update() error = %v, want %v", err, tt.wantErr)
			}

			if tt.exists {
				got, err := l.Lookup(ctx, id)
				if err != nil {
					t.Fatalf("Lookup() error = %v", err)
				}
				wantResponse := "APPROVED"
				if tt.prior {
					wantResponse = "DECLINED"
				}
				if got.Response != wantResponse || !got.Processed() {
					t.Errorf("stored outcome = %q processed=%v, want %q", got.Response, got.Processed(), wantResponse)
				}
				if !got.Cost.Equal(decimal.RequireFromString("10")) {
					t.Errorf("cost mutated: %s", got.Cost)
				}
			}
		})
	}
}

func TestUpdateEmptyResponseStillFinal(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	id, _ := l.Create(ctx, makeTestTransaction(7))

	first := &model.Transaction{TransactionStatus: model.TrxAborted}
	first.ID = id
	if err := l.Update(ctx, first); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	second := &model.Transaction{TransactionStatus: model.TrxConfirmed, Response: "APPROVED"}
	second.ID = id
	if err := l.Update(ctx, second); !errors.Is(err, ErrAlreadyProcessed) {
		t.Errorf("Update() error = %v, want ErrAlreadyProcessed", err)
	}
}

func TestConcurrentUpdatesHaveOneWinner(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	id, err := l.Create(ctx, makeTestTransaction(7))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			trx := &model.Transaction{TransactionStatus: model.TrxConfirmed, Response: "APPROVED"}
			if i%2 == 1 {
				trx = &model.Transaction{TransactionStatus: model.TrxAborted, Response: "DECLINED"}
			}
			trx.ID = id
			errs[i] = l.Update(ctx, trx)
		}(i)
	}
	wg.Wait()

	winners := 0
	winner := -1
	for i, err := range errs {
		switch {
		case err == nil:
			winners++
			winner = i
		case !errors.Is(err, ErrAlreadyProcessed):
			t.Errorf("attempt %d: unexpected error %v", i, err)
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want 1", winners)
	}

	got, _ := l.Lookup(ctx, id)
	want := model.TrxConfirmed
	if winner%2 == 1 {
		want = model.TrxAborted
	}
	if got.TransactionStatus != want {
		t.Errorf("stored status = %s, winner wrote %s", got.TransactionStatus, want)
	}
}

func TestMarkAwaitingAndList(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	a, _ := l.Create(ctx, makeTestTransaction(7))
	_, _ = l.Create(ctx, makeTestTransaction(8))
	c, _ := l.Create(ctx, makeTestTransaction(7))

	if err := l.MarkAwaiting(ctx, a); err != nil {
		t.Fatalf("MarkAwaiting() error = %v", err)
	}
	if err := l.MarkAwaiting(ctx, 12345); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkAwaiting(missing) error = %v, want ErrNotFound", err)
	}

	got, _ := l.Lookup(ctx, a)
	if got.TransactionStatus != model.TrxAwaitingGateway {
		t.Errorf("status = %s, want AWAITING_GATEWAY", got.TransactionStatus)
	}

	list, err := l.List(ctx, 7, 10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != c || list[1].ID != a {
		t.Errorf("List() returned %d rows in unexpected order", len(list))
	}

	all, _ := l.List(ctx, 0, 0)
	if len(all) != 3 {
		t.Errorf("List(all) = %d rows, want 3", len(all))
	}
}
