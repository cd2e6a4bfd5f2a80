package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	reservationerrors "bookly/internal/reservations/errors"
	"bookly/pkg/model"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// SQLOverlapMessage is raised by the SQLite overlap triggers.
const SQLOverlapMessage = "booking_overlap"

const (
	pgExclusionViolation = "23P01"
	pgUniqueViolation    = "23505"
)

type bookingRecord struct {
	ID              string    `gorm:"primaryKey"`
	ResourceID      string    `gorm:"column:resource_id"`
	StartAt         time.Time `gorm:"column:start_at"`
	EndAt           time.Time `gorm:"column:end_at"`
	Status          string    `gorm:"column:status"`
	Version         int64     `gorm:"column:version"`
	ArrivalSeq      int64     `gorm:"column:arrival_seq"`
	IdempotencyKey  *string   `gorm:"column:idempotency_key"`
	RequestedBy     string    `gorm:"column:requested_by"`
	Notes           string    `gorm:"column:notes"`
	RescheduledFrom string    `gorm:"column:rescheduled_from"`
	RescheduledTo   string    `gorm:"column:rescheduled_to"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
}

func (bookingRecord) TableName() string { return "bookings" }

func toRecord(b *model.Booking) bookingRecord {
	rec := bookingRecord{
		ID:              b.ID,
		ResourceID:      b.ResourceID,
		StartAt:         b.Range.Start.UTC(),
		EndAt:           b.Range.End.UTC(),
		Status:          string(b.Status),
		Version:         b.Version,
		ArrivalSeq:      b.ArrivalSeq,
		RequestedBy:     b.RequestedBy,
		Notes:           b.Notes,
		RescheduledFrom: b.RescheduledFrom,
		RescheduledTo:   b.RescheduledTo,
		CreatedAt:       b.CreatedAt.UTC(),
		UpdatedAt:       b.UpdatedAt.UTC(),
	}
	if b.IdempotencyKey != "" {
		key := b.IdempotencyKey
		rec.IdempotencyKey = &key
	}
	return rec
}

func (rec bookingRecord) toModel() *model.Booking {
	b := &model.Booking{
		ID:              rec.ID,
		ResourceID:      rec.ResourceID,
		Range:           model.TimeRange{Start: rec.StartAt.UTC(), End: rec.EndAt.UTC()},
		Status:          model.BookingStatus(rec.Status),
		Version:         rec.Version,
		ArrivalSeq:      rec.ArrivalSeq,
		RequestedBy:     rec.RequestedBy,
		Notes:           rec.Notes,
		RescheduledFrom: rec.RescheduledFrom,
		RescheduledTo:   rec.RescheduledTo,
		CreatedAt:       rec.CreatedAt.UTC(),
		UpdatedAt:       rec.UpdatedAt.UTC(),
	}
	if rec.IdempotencyKey != nil {
		b.IdempotencyKey = *rec.IdempotencyKey
	}
	return b
}

type resourceRecord struct {
	ID          string    `gorm:"primaryKey"`
	Name        string    `gorm:"column:name"`
	DisplayName string    `gorm:"column:display_name"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (resourceRecord) TableName() string { return "resources" }

type gormBookingRepository struct {
	db *gorm.DB
}

// NewGormBookingRepository works against the postgres and sqlite schemas
// created by the sql migration, which both reject overlapping confirmed rows.
func NewGormBookingRepository(db *gorm.DB) BookingRepository {
	return &gormBookingRepository{db: db}
}

func (r *gormBookingRepository) SaveAll(ctx context.Context, writes []BookingWrite) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, w := range writes {
			rec := toRecord(w.Booking)
			if w.ExpectedVersion == 0 {
				if err := tx.Create(&rec).Error; err != nil {
					return err
				}
				continue
			}

			result := tx.Model(&bookingRecord{}).
				Where("id = ? AND version = ?", rec.ID, w.ExpectedVersion).
				Updates(map[string]any{
					"start_at":         rec.StartAt,
					"end_at":           rec.EndAt,
					"status":           rec.Status,
					"version":          rec.Version,
					"requested_by":     rec.RequestedBy,
					"notes":            rec.Notes,
					"rescheduled_from": rec.RescheduledFrom,
					"rescheduled_to":   rec.RescheduledTo,
					"updated_at":       rec.UpdatedAt,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				var n int64
				if err := tx.Model(&bookingRecord{}).Where("id = ?", rec.ID).Count(&n).Error; err != nil {
					return err
				}
				if n == 0 {
					return fmt.Errorf("%w: %s", reservationerrors.ErrNotFound, rec.ID)
				}
				return fmt.Errorf("%w: booking %s expected version %d", reservationerrors.ErrVersionConflict, rec.ID, w.ExpectedVersion)
			}
		}
		return nil
	})
	return translateSQLError(err)
}

// translateSQLError maps driver errors onto engine sentinels. Postgres
// reports the exclusion constraint as 23P01; SQLite raises the trigger
// message.
func translateSQLError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, reservationerrors.ErrNotFound) || errors.Is(err, reservationerrors.ErrVersionConflict) {
		return err
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", reservationerrors.ErrVersionConflict, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgExclusionViolation:
			return fmt.Errorf("%w: %s", reservationerrors.ErrOverlap, pgErr.Message)
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", reservationerrors.ErrVersionConflict, pgErr.Message)
		}
	}
	msg := err.Error()
	if strings.Contains(msg, SQLOverlapMessage) {
		return fmt.Errorf("%w: %s", reservationerrors.ErrOverlap, msg)
	}
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %s", reservationerrors.ErrVersionConflict, msg)
	}
	return fmt.Errorf("failed to save bookings: %w", err)
}

func (r *gormBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *gormBookingRepository) FindByIdempotencyKey(ctx context.Context, resourceID, key string) (*model.Booking, error) {
	return r.first(ctx, "resource_id = ? AND idempotency_key = ?", resourceID, key)
}

func (r *gormBookingRepository) first(ctx context.Context, query string, args ...any) (*model.Booking, error) {
	var rec bookingRecord
	err := r.db.WithContext(ctx).Where(query, args...).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, reservationerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}
	return rec.toModel(), nil
}

func (r *gormBookingRepository) FindActiveByResource(ctx context.Context, resourceID string) ([]*model.Booking, error) {
	var recs []bookingRecord
	err := r.db.WithContext(ctx).
		Where("resource_id = ?", resourceID).
		Where("status IN ?", []string{string(model.BookingStatusPending), string(model.BookingStatusConfirmed)}).
		Order("arrival_seq ASC").Order("created_at ASC").Order("id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find active bookings: %w", err)
	}
	return toModels(recs), nil
}

func (r *gormBookingRepository) Search(ctx context.Context, filter model.BookingFilter, limit int, offset int64) ([]*model.Booking, error) {
	q := r.filtered(ctx, filter).
		Order("start_at ASC").Order("created_at ASC").Order("id ASC").
		Offset(int(offset))
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []bookingRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to search bookings: %w", err)
	}
	return toModels(recs), nil
}

func (r *gormBookingRepository) Count(ctx context.Context, filter model.BookingFilter) (int64, error) {
	var total int64
	if err := r.filtered(ctx, filter).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return total, nil
}

func (r *gormBookingRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *gormBookingRepository) filtered(ctx context.Context, f model.BookingFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&bookingRecord{})
	if f.ResourceID != "" {
		q = q.Where("resource_id = ?", f.ResourceID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.Window != nil {
		q = q.Where("start_at < ? AND end_at > ?", f.Window.End.UTC(), f.Window.Start.UTC())
	}
	return q
}

func toModels(recs []bookingRecord) []*model.Booking {
	out := make([]*model.Booking, len(recs))
	for i, rec := range recs {
		out[i] = rec.toModel()
	}
	return out
}

type gormResourceRepository struct {
	db *gorm.DB
}

func NewGormResourceRepository(db *gorm.DB) ResourceRepository {
	return &gormResourceRepository{db: db}
}

func (r *gormResourceRepository) Create(ctx context.Context, resource *model.Resource) error {
	rec := resourceRecord{
		ID:          resource.ID,
		Name:        resource.Name,
		DisplayName: resource.DisplayName,
		CreatedAt:   resource.CreatedAt.UTC(),
	}
	err := r.db.WithContext(ctx).Create(&rec).Error
	if err == nil {
		return nil
	}
	if errors.Is(translateSQLError(err), reservationerrors.ErrVersionConflict) {
		return fmt.Errorf("%w: %s", reservationerrors.ErrResourceExists, resource.ID)
	}
	return fmt.Errorf("failed to create resource: %w", err)
}

func (r *gormResourceRepository) FindByID(ctx context.Context, id string) (*model.Resource, error) {
	var rec resourceRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, reservationerrors.ErrResourceNotFound
		}
		return nil, fmt.Errorf("failed to find resource: %w", err)
	}
	return rec.toModel(), nil
}

func (r *gormResourceRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Resource, error) {
	q := r.db.WithContext(ctx).Order("id ASC").Offset(int(offset))
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []resourceRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to find resources: %w", err)
	}
	out := make([]*model.Resource, len(recs))
	for i, rec := range recs {
		out[i] = rec.toModel()
	}
	return out, nil
}

func (r *gormResourceRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&resourceRecord{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count resources: %w", err)
	}
	return total, nil
}

func (r *gormResourceRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&resourceRecord{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete resource: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return reservationerrors.ErrResourceNotFound
	}
	return nil
}

func (rec resourceRecord) toModel() *model.Resource {
	return &model.Resource{
		ID:          rec.ID,
		Name:        rec.Name,
		DisplayName: rec.DisplayName,
		CreatedAt:   rec.CreatedAt.UTC(),
	}
}
