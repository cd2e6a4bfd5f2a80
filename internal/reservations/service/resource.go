package service

import (
	"context"
	"errors"
	"fmt"

	reservationerrors "bookly/internal/reservations/errors"
	"bookly/pkg/model"
	"bookly/pkg/sanitizer"
)

const warmPageSize = 100

func (s *reservationService) CreateResource(ctx context.Context, req *model.CreateResourceRequest) (*model.Resource, error) {
	req.ID = sanitizer.SanitizeResourceID(req.ID)
	req.Name = sanitizer.SanitizeFreeText(req.Name)
	req.DisplayName = sanitizer.SanitizeFreeText(req.DisplayName)
	if err := s.validator.Validate(req); err != nil {
		s.cfg.Log.Warn("Resource validation failed", "resource_id", req.ID, "error", err)
		return nil, err
	}

	resource := &model.Resource{
		ID:          req.ID,
		Name:        req.Name,
		DisplayName: req.DisplayName,
		CreatedAt:   s.now(),
	}
	if resource.DisplayName == "" {
		resource.DisplayName = sanitizer.DisplayNameFromID(resource.ID)
	}
	if resource.Name == "" {
		resource.Name = resource.DisplayName
	}

	if err := s.resources.Create(ctx, resource); err != nil {
		if !errors.Is(err, reservationerrors.ErrResourceExists) {
			s.cfg.Log.Error("Failed to create resource", "resource_id", resource.ID, "error", err)
		}
		return nil, err
	}

	s.cfg.Log.Info("Resource created", "resource_id", resource.ID, "display_name", resource.DisplayName)
	return resource, nil
}

func (s *reservationService) GetResource(ctx context.Context, id string) (*model.Resource, error) {
	id = sanitizer.SanitizeResourceID(id)
	if id == "" {
		return nil, reservationerrors.ErrResourceNotFound
	}
	return s.resources.FindByID(ctx, id)
}

func (s *reservationService) ListResources(ctx context.Context, limit int, offset int64) ([]*model.Resource, int64, error) {
	count, err := s.resources.Count(ctx)
	if err != nil {
		s.cfg.Log.Error("Failed to count resources", "error", err)
		return nil, 0, err
	}
	resources, err := s.resources.FindAll(ctx, limit, offset)
	if err != nil {
		s.cfg.Log.Error("Failed to list resources", "error", err)
		return nil, 0, err
	}
	return resources, count, nil
}

// DeleteResource removes a resource that holds no confirmed or pending
// bookings. Terminal bookings stay in storage for history.
func (s *reservationService) DeleteResource(ctx context.Context, id string) error {
	id = sanitizer.SanitizeResourceID(id)
	st, unlock, err := s.acquire(ctx, id, true)
	if err != nil {
		return err
	}
	defer unlock()

	active := len(st.active)
	if active == 0 {
		stored, err := s.bookings.FindActiveByResource(ctx, id)
		if err != nil {
			return fmt.Errorf("check active bookings of %s: %w", id, err)
		}
		active = len(stored)
	}
	if active > 0 {
		return fmt.Errorf("%w: %s has %d active bookings", reservationerrors.ErrResourceInUse, id, active)
	}

	if err := s.resources.Delete(ctx, id); err != nil {
		return err
	}
	st.removed = true
	s.dropState(st)

	s.cfg.Log.Info("Resource deleted", "resource_id", id)
	return nil
}

// Reconcile rebuilds the resource's index from storage and lifts a halt when
// the rebuilt state is sound.
func (s *reservationService) Reconcile(ctx context.Context, resourceID string) error {
	resourceID = sanitizer.SanitizeResourceID(resourceID)
	st, unlock, err := s.acquire(ctx, resourceID, true)
	if err != nil {
		return err
	}
	defer unlock()

	previous := st.halted
	if err := s.load(ctx, st); err != nil {
		st.removed = true
		s.dropState(st)
		return err
	}
	if st.halted != nil {
		return fmt.Errorf("reconcile %s: %w", resourceID, st.halted)
	}

	s.cfg.Log.Info("Resource reconciled",
		"resource_id", resourceID,
		"was_halted", previous != nil,
		"confirmed", st.index.Len(),
		"waitlisted", len(st.waitlist),
	)
	return nil
}

// Warm loads the index of every registered resource.
func (s *reservationService) Warm(ctx context.Context) error {
	var errs []error
	var loaded int
	for offset := int64(0); ; offset += warmPageSize {
		page, err := s.resources.FindAll(ctx, warmPageSize, offset)
		if err != nil {
			return fmt.Errorf("list resources: %w", err)
		}
		for _, r := range page {
			_, unlock, err := s.acquire(ctx, r.ID, false)
			if err != nil {
				errs = append(errs, fmt.Errorf("warm %s: %w", r.ID, err))
				continue
			}
			unlock()
			loaded++
		}
		if len(page) < warmPageSize {
			break
		}
	}

	s.cfg.Log.Info("Availability indexes warmed", "resources", loaded, "failed", len(errs))
	return errors.Join(errs...)
}
