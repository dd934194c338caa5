package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Transaction struct {

	gorm.Model

	CourseID uint `gorm:"column:course_id;index:idx_paynow_trx_course"`

	UserID uint `gorm:"column:user_id;index:idx_paynow_trx_user"`

	InstanceID uint `gorm:"column:instance_id;not null;default:0"`

	Cost decimal.Decimal `gorm:"column:cost;type:decimal(10,2);not null"`

	Currency string `gorm:"column:currency;size:3;not null"`

	Email string `gorm:"column:email;size:254"`

	MerchantReference string `gorm:"column:merchant_reference;size:64"`

	TxnData1 string `gorm:"column:txn_data1;size:255"`

	TxnData2 string `gorm:"column:txn_data2;size:255"`

	TxnData3 string `gorm:"column:txn_data3;size:255"`

	TransactionStatus TransactionStatus `gorm:"column:trx_status;size:20;index:idx_paynow_trx_status"`

	// Outcome block, written once by confirm or abort.
	Success bool `gorm:"column:success;not null;default:false"`

	Response string `gorm:"column:response;size:255;not null;default:''"`

	AuthCode string `gorm:"column:auth_code;size:32"`

	CardType string `gorm:"column:card_type;size:32"`

	CardHolder string `gorm:"column:card_holder;size:64"`

	// Truncated by the gateway, audit only.
	CardNumber string `gorm:"column:card_number;size:32"`

	CardExpiry string `gorm:"column:card_expiry;size:8"`

	ClientInfo string `gorm:"column:client_info;size:64"`

	PaynowTxnRef string `gorm:"column:paynow_txn_ref;size:64"`

	TxnMac string `gorm:"column:txn_mac;size:160"`

	GatewayReply datatypes.JSON `gorm:"column:gateway_reply"`

	ProcessedAt *time.Time `gorm:"column:processed_at"`

}

func (Transaction) TableName() string {
	return "paynow_transactions"
}

// Processed reports whether the outcome block has been written.
func (t *Transaction) Processed() bool {
	return t.ProcessedAt != nil
}

type TransactionStatus string

const (
	TrxCreated         TransactionStatus = "CREATED"
	TrxAwaitingGateway TransactionStatus = "AWAITING_GATEWAY"
	TrxConfirmed       TransactionStatus = "CONFIRMED"
	TrxAborted         TransactionStatus = "ABORTED"
)

// Terminal reports whether no further transition is allowed.
func (s TransactionStatus) Terminal() bool {
	return s == TrxConfirmed || s == TrxAborted
}
