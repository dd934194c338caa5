package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/trakkie-id/paynow/model"
	"gorm.io/gorm"
)

var ErrOfferNotFound = errors.New("enrolment offer not found")

// OfferStore resolves enrolment offers owned by the course system.
type OfferStore interface {
	Offer(ctx context.Context, id uint) (*model.EnrolmentOffer, error)
}

// Enrolment is the side effect of a confirmed payment.
type Enrolment struct {
	TransactionID uint
	InstanceID    uint
	UserID        uint
	RoleID        uint
	TimeStart     time.Time
	TimeEnd       time.Time
}

// EnrolmentSink grants course access. It is invoked at most once per
// transaction.
type EnrolmentSink interface {
	Enrol(ctx context.Context, enrolment Enrolment) error
}

type GormOfferStore struct {
	db *gorm.DB
}

func NewGormOfferStore(db *gorm.DB) *GormOfferStore {
	return &GormOfferStore{db: db}
}

func (s *GormOfferStore) Offer(ctx context.Context, id uint) (*model.EnrolmentOffer, error) {
	offer := &model.EnrolmentOffer{}
	res := s.db.WithContext(ctx).First(offer, id)

	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id %d", ErrOfferNotFound, id)
	} else if res.Error != nil {
		return nil, res.Error
	}

	return offer, nil
}

// GormEnrolmentSink records enrolments in paynow_enrolments. The unique index
// on transaction_id rejects a second enrolment for the same payment.
type GormEnrolmentSink struct {
	db *gorm.DB
}

func NewGormEnrolmentSink(db *gorm.DB) *GormEnrolmentSink {
	return &GormEnrolmentSink{db: db}
}

func (s *GormEnrolmentSink) Enrol(ctx context.Context, enrolment Enrolment) error {
	res := s.db.WithContext(ctx).Create(&model.EnrolmentRecord{
		TransactionID: enrolment.TransactionID,
		InstanceID:    enrolment.InstanceID,
		UserID:        enrolment.UserID,
		RoleID:        enrolment.RoleID,
		TimeStart:     enrolment.TimeStart,
		TimeEnd:       enrolment.TimeEnd,
	})
	if res.Error != nil {
		return fmt.Errorf("record enrolment for transaction %d: %w", enrolment.TransactionID, res.Error)
	}
	return nil
}
