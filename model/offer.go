package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EnrolmentOffer is owned by the enclosing course system and only read here.
type EnrolmentOffer struct {

	ID uint `gorm:"column:id;primaryKey"`

	CourseID uint `gorm:"column:course_id"`

	CourseShortName string `gorm:"column:course_shortname"`

	CourseFullName string `gorm:"column:course_fullname"`

	Cost decimal.Decimal `gorm:"column:cost;type:decimal(10,2)"`

	Currency string `gorm:"column:currency"`

	EnrolPeriodSeconds int64 `gorm:"column:enrol_period"`

	RoleID uint `gorm:"column:role_id"`

	EnrolStart time.Time `gorm:"column:enrol_start"`

	EnrolEnd time.Time `gorm:"column:enrol_end"`

	Enabled bool `gorm:"column:enabled"`

}

func (EnrolmentOffer) TableName() string {
	return "enrolment_offers"
}

func (o *EnrolmentOffer) EnrolPeriod() time.Duration {
	return time.Duration(o.EnrolPeriodSeconds) * time.Second
}

// OpenAt reports whether the enrol window contains now. Zero bounds are open.
func (o *EnrolmentOffer) OpenAt(now time.Time) bool {
	if !o.EnrolStart.IsZero() && o.EnrolStart.After(now) {
		return false
	}
	if !o.EnrolEnd.IsZero() && o.EnrolEnd.Before(now) {
		return false
	}
	return true
}

// Payer is the authenticated user of the enclosing system.
type Payer struct {
	ID        uint   `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

func (p *Payer) FullName() string {
	return p.FirstName + " " + p.LastName
}
