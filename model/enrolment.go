package model

import (
	"time"

	"gorm.io/gorm"
)

// EnrolmentRecord is the audit trail of enrolments triggered by confirmed
// payments. One row per transaction at most.
type EnrolmentRecord struct {

	gorm.Model

	TransactionID uint `gorm:"column:transaction_id;uniqueIndex:idx_paynow_enrol_trx"`

	InstanceID uint `gorm:"column:instance_id"`

	UserID uint `gorm:"column:user_id;index:idx_paynow_enrol_user"`

	RoleID uint `gorm:"column:role_id"`

	TimeStart time.Time `gorm:"column:time_start"`

	TimeEnd time.Time `gorm:"column:time_end"`

}

func (EnrolmentRecord) TableName() string {
	return "paynow_enrolments"
}
