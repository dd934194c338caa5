package report

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/trakkie-id/paynow/ledger"
)

var header = []string{
	"transaction_id", "created_at", "user_id", "course_id", "instance_id",
	"amount", "currency", "status", "success", "response", "paynow_txn_ref", "processed_at",
}

// WriteCSV exports the newest transactions of userID (0 for everyone) and
// returns the number of rows written.
func WriteCSV(ctx context.Context, w io.Writer, l ledger.Ledger, userID uint, limit int) (int, error) {
	trxs, err := l.List(ctx, userID, limit)
	if err != nil {
		return 0, err
	}

	out := csv.NewWriter(w)
	if err := out.Write(header); err != nil {
		return 0, err
	}

	for _, trx := range trxs {
		processed := ""
		if trx.ProcessedAt != nil {
			processed = trx.ProcessedAt.UTC().Format(time.RFC3339)
		}

		row := []string{
			strconv.FormatUint(uint64(trx.ID), 10),
			trx.CreatedAt.UTC().Format(time.RFC3339),
			strconv.FormatUint(uint64(trx.UserID), 10),
			strconv.FormatUint(uint64(trx.CourseID), 10),
			strconv.FormatUint(uint64(trx.InstanceID), 10),
			trx.Cost.StringFixed(2),
			trx.Currency,
			string(trx.TransactionStatus),
			strconv.FormatBool(trx.Success),
			trx.Response,
			trx.PaynowTxnRef,
			processed,
		}
		if err := out.Write(row); err != nil {
			return 0, err
		}
	}

	out.Flush()
	return len(trxs), out.Error()
}
