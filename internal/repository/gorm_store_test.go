package repository_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/servemate/service-booking/internal/domain"
	"github.com/servemate/service-booking/internal/domain/booking"
	"github.com/servemate/service-booking/internal/domain/quota"
	"github.com/servemate/service-booking/internal/repository"
	"github.com/servemate/service-booking/internal/store"
	"github.com/servemate/service-booking/internal/store/storetest"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:booking_test_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err, "failed to open sqlite db")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, repository.AutoMigrate(db), "failed to migrate db")
	return db
}

func TestGormStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.UnitOfWork {
		return repository.NewGormStore(setupTestDB(t))
	})
}

func TestGormBookingRepository_UpdateClearsNullableColumns(t *testing.T) {
	db := setupTestDB(t)
	uow := repository.NewGormStore(db)

	snap := storetest.NewBooking(t, uuid.New(), uuid.New(), time.Hour, time.Hour, 0).Snapshot()
	price, acceptedAt := int64(900), storetest.Base
	snap.Status = booking.StatusAwaitingPayment
	snap.NegotiatedPriceCents = &price
	snap.AcceptedAt = &acceptedAt
	bk := booking.ReconstructBooking(snap)

	require.NoError(t, uow.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.Bookings().Save(ctx, bk)
	}))

	_, err := bk.LoseSlot("slot taken", storetest.Base.Add(time.Minute))
	require.NoError(t, err)
	bk.IncrementVersion(storetest.Base.Add(time.Minute))

	require.NoError(t, uow.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.Bookings().Update(ctx, bk, 1)
	}))

	var model repository.BookingModel
	require.NoError(t, db.First(&model, "id = ?", bk.ID()).Error)
	assert.Equal(t, string(booking.StatusNeedRescheduling), model.Status)
	assert.Nil(t, model.NegotiatedPriceCents)
	assert.Nil(t, model.AcceptedAt)
	assert.Equal(t, int64(2), model.Version)
}

func TestGormCounterRepository_AddCreatesRow(t *testing.T) {
	db := setupTestDB(t)
	uow := repository.NewGormStore(db)
	bk := storetest.NewBooking(t, uuid.New(), uuid.New(), time.Hour, time.Hour, 0)

	require.NoError(t, uow.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		for _, delta := range []int64{1, 1, -1} {
			for _, key := range quota.BookingKeys(bk) {
				if _, err := tx.Counters().Add(ctx, key, delta); err != nil {
					return err
				}
			}
		}
		return nil
	}))

	var rows []repository.QuotaCounterModel
	require.NoError(t, db.Find(&rows).Error)
	assert.Len(t, rows, len(quota.BookingKeys(bk)))
	for _, row := range rows {
		assert.Equal(t, int64(1), row.Value, row.Metric)
	}
}

func TestGormStore_WithinTxTranslatesAbortedTransactions(t *testing.T) {
	uow := repository.NewGormStore(setupTestDB(t))

	tests := []struct {
		name     string
		err      error
		conflict bool
	}{
		{"deadlock", &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}, true},
		{"serialization failure", &pgconn.PgError{Code: "40001", Message: "could not serialize access"}, true},
		{"wrapped deadlock", fmt.Errorf("failed to find overlapping requests: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := uow.WithinTx(context.Background(), func(context.Context, store.Tx) error {
				return tt.err
			})
			require.Error(t, err)
			assert.Equal(t, tt.conflict, errors.Is(err, domain.ErrVersionConflict))
			if !tt.conflict {
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}
}

func TestGormCounterRepository_LockIsNoopOnSQLite(t *testing.T) {
	uow := repository.NewGormStore(setupTestDB(t))
	require.NoError(t, uow.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.Counters().Lock(ctx)
	}))
}
