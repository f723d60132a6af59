package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/servemate/service-booking/internal/domain"
	"github.com/servemate/service-booking/internal/domain/booking"
	"github.com/servemate/service-booking/internal/domain/listing"
	"github.com/servemate/service-booking/internal/domain/quota"
	"github.com/servemate/service-booking/internal/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore runs units of work in database transactions.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a GormStore.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate creates or updates every table the store owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

// PostgreSQL aborts one side of a lock cycle or a serialization conflict.
// Both leave nothing committed and are safe to rerun.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// WithinTx implements store.UnitOfWork. Deadlocks and serialization
// failures surface as domain.ErrVersionConflict so callers retry them like
// any other lost race.
func (s *GormStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(ctx, &gormTx{db: db})
	})
	return translateTxError(err)
}

func translateTxError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgSerializationFailure, pgDeadlockDetected:
		return fmt.Errorf("%w: %s", domain.ErrVersionConflict, pgErr.Message)
	}
	return err
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) Bookings() booking.BookingRepository   { return NewGormBookingRepository(t.db) }
func (t *gormTx) Proposals() booking.ProposalRepository { return NewGormProposalRepository(t.db) }
func (t *gormTx) Listings() listing.Repository          { return NewGormListingRepository(t.db) }
func (t *gormTx) Counters() quota.CounterRepository     { return NewGormCounterRepository(t.db) }

// forUpdate adds SELECT ... FOR UPDATE where the dialect supports it. SQLite
// serializes writers on its own.
func forUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "postgres" {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}
