// Package store adapts an identity provider's per-user metadata into the
// record blob the service reads and rewrites.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/atinyakov/NoPass/internal/models"
)

// UserProvider is the identity provider surface the store needs.
type UserProvider interface {
	// GetUser returns the user with its private metadata, or
	// models.ErrUserNotFound.
	GetUser(ctx context.Context, userID string) (*models.User, error)
	// UpdateUserMetadata merges patch into the top level of the user's
	// private metadata.
	UpdateUserMetadata(ctx context.Context, userID string, patch models.Metadata) error
}

// RecordStore reads and writes the record blob of a user. It keeps no
// state between calls and performs no version check before writing.
type RecordStore struct {
	provider UserProvider
}

// NewRecordStore creates a RecordStore over provider.
func NewRecordStore(provider UserProvider) *RecordStore {
	return &RecordStore{provider: provider}
}

// FetchBlob returns the current blob. Missing lists read as empty and the
// elements are not decoded, so records of any shape survive a rewrite.
func (s *RecordStore) FetchBlob(ctx context.Context, userID string) (models.StoredBlob, error) {
	user, err := s.provider.GetUser(ctx, userID)
	if err != nil {
		return models.StoredBlob{}, classify("fetch blob", err)
	}
	blob, err := models.ReadStoredBlob(user.PrivateMetadata)
	if err != nil {
		return models.StoredBlob{}, fmt.Errorf("fetch blob: %w", err)
	}
	return blob, nil
}

// ReplaceBlob overwrites the given sections of the stored blob, all of them
// when none are named. Unrelated metadata keys are preserved by the
// provider's merge.
func (s *RecordStore) ReplaceBlob(ctx context.Context, userID string, blob models.StoredBlob, sections ...models.Section) error {
	patch, err := blob.Patch(sections...)
	if err != nil {
		return fmt.Errorf("replace blob: %w", err)
	}
	if err := s.provider.UpdateUserMetadata(ctx, userID, patch); err != nil {
		return classify("replace blob", err)
	}
	return nil
}

// Profile returns the identity record without decoding the blob.
func (s *RecordStore) Profile(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.provider.GetUser(ctx, userID)
	if err != nil {
		return nil, classify("profile", err)
	}
	return user, nil
}

func classify(op string, err error) error {
	if errors.Is(err, models.ErrUserNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, models.ErrStoreUnavailable, err)
}
