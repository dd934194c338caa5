package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/trakkie-id/paynow/ledger"
	"github.com/trakkie-id/paynow/model"
	"github.com/trakkie-id/paynow/testutil"
)

func TestWriteCSV(t *testing.T) {
	l := ledger.NewGormLedger(testutil.NewDB(t))
	ctx := context.Background()

	for _, user := range []uint{7, 8, 7} {
		if _, err := l.Create(ctx, &model.Transaction{
			UserID:   user,
			CourseID: 3,
			Cost:     decimal.RequireFromString("10"),
			Currency: "USD",
		}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	var buf bytes.Buffer
	n, err := WriteCSV(ctx, &buf, l, 7, 0)
	if err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	if n != 2 {
		t.Errorf("rows = %d, want 2", n)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want header + 2", len(records))
	}
	if records[0][0] != "transaction_id" {
		t.Errorf("header = %v", records[0])
	}
	if got := records[1]; got[2] != "7" || got[5] != "10.00" || got[7] != string(model.TrxCreated) || got[11] != "" {
		t.Errorf("row = %v", got)
	}
}
