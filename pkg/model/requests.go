package model

import "time"

type CreateBookingRequest struct {
	ResourceID     string    `json:"resource_id" validate:"required,resource_id"`
	Start          time.Time `json:"start" validate:"required"`
	End            time.Time `json:"end" validate:"required,gtfield=Start"`
	IdempotencyKey string    `json:"idempotency_key,omitempty" validate:"omitempty,max=128"`
	RequestedBy    string    `json:"requested_by,omitempty" validate:"omitempty,max=120"`
	Notes          string    `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

type CancelBookingRequest struct {
	Version int64 `json:"version" validate:"required,min=1"`
}

type ApproveBookingRequest struct {
	Version int64 `json:"version" validate:"required,min=1"`
}

type DeclineBookingRequest struct {
	Version int64 `json:"version" validate:"required,min=1"`
}

type RescheduleBookingRequest struct {
	Version int64     `json:"version" validate:"required,min=1"`
	Start   time.Time `json:"start" validate:"required"`
	End     time.Time `json:"end" validate:"required,gtfield=Start"`
}

type CreateResourceRequest struct {
	ID          string `json:"id" validate:"required,resource_id"`
	Name        string `json:"name,omitempty" validate:"omitempty,min=2,max=100"`
	DisplayName string `json:"display_name,omitempty" validate:"omitempty,min=2,max=100"`
}
