// Package service provides the record business logic: appending cards and
// website credentials to a user's stored lists and reading them back.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atinyakov/NoPass/internal/models"
	"github.com/atinyakov/NoPass/internal/seal"
)

// IdentityGate resolves the caller of the current request.
type IdentityGate interface {
	// ResolveIdentity returns the caller's user ID or models.ErrUnauthenticated.
	ResolveIdentity(ctx context.Context) (string, error)
}

// BlobStore defines the persistence operations needed by RecordService.
type BlobStore interface {
	// FetchBlob returns the user's current record blob with elements
	// left undecoded.
	FetchBlob(ctx context.Context, userID string) (models.StoredBlob, error)
	// ReplaceBlob overwrites the named sections of the user's blob.
	ReplaceBlob(ctx context.Context, userID string, blob models.StoredBlob, sections ...models.Section) error
	// Profile returns the identity record of the user.
	Profile(ctx context.Context, userID string) (*models.User, error)
}

// RecordService appends records with a read-modify-write against the store.
// Concurrent appends for the same user are not serialized: the last write wins.
type RecordService struct {
	gate   IdentityGate
	store  BlobStore
	sealer seal.Sealer
	log    *zap.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures a RecordService.
type Option func(*RecordService)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(s *RecordService) { s.log = log }
}

// WithClock sets the time source used for creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *RecordService) { s.now = now }
}

// WithIDGenerator sets the record ID generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *RecordService) { s.newID = newID }
}

// NewRecordService constructs a RecordService. A nil sealer stores secrets
// in plaintext.
func NewRecordService(gate IdentityGate, store BlobStore, sealer seal.Sealer, opts ...Option) *RecordService {
	if sealer == nil {
		sealer = seal.Plaintext{}
	}
	s := &RecordService{
		gate:   gate,
		store:  store,
		sealer: sealer,
		log:    zap.NewNop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AppendCard adds a card to the end of the caller's card list and returns
// it with the secret fields in plaintext. Fields are stored as given; they
// are expected to be validated by the caller.
//
// If the write fails after a successful read the new card is lost and the
// error is returned. Submitting again creates a card with a new ID.
func (s *RecordService) AppendCard(ctx context.Context, fields models.CardFields) (*models.Card, error) {
	userID, err := s.gate.ResolveIdentity(ctx)
	if err != nil {
		return nil, err
	}

	blob, err := s.store.FetchBlob(ctx, userID)
	if err != nil {
		return nil, err
	}

	sealedCVV, err := s.sealer.Seal(fields.CVV)
	if err != nil {
		return nil, fmt.Errorf("seal cvv: %w", err)
	}
	card := models.Card{
		ID:         s.newID(),
		CardName:   fields.CardName,
		CardNo:     fields.CardNo,
		ExpiryDate: fields.ExpiryDate,
		CVV:        sealedCVV,
		HolderName: fields.HolderName,
		CreatedAt:  s.now().UTC(),
	}
	if err := blob.Append(models.SectionCards, card); err != nil {
		return nil, err
	}

	if err := s.store.ReplaceBlob(ctx, userID, blob, models.SectionCards); err != nil {
		s.log.Error("failed to save card",
			zap.String("user", userID),
			zap.String("card_id", card.ID),
			zap.Error(err))
		return nil, err
	}

	s.log.Info("card saved", zap.String("user", userID), zap.String("card_id", card.ID))
	card.CVV = fields.CVV
	return &card, nil
}

// AppendPassword adds a website credential to the end of the caller's
// password list. It behaves like AppendCard.
func (s *RecordService) AppendPassword(ctx context.Context, fields models.PasswordFields) (*models.Password, error) {
	userID, err := s.gate.ResolveIdentity(ctx)
	if err != nil {
		return nil, err
	}

	blob, err := s.store.FetchBlob(ctx, userID)
	if err != nil {
		return nil, err
	}

	sealed, err := s.sealer.Seal(fields.Password)
	if err != nil {
		return nil, fmt.Errorf("seal password: %w", err)
	}
	pw := models.Password{
		ID:         s.newID(),
		WebsiteURL: fields.WebsiteURL,
		Username:   fields.Username,
		Password:   sealed,
		CreatedAt:  s.now().UTC(),
	}
	if err := blob.Append(models.SectionPasswords, pw); err != nil {
		return nil, err
	}

	if err := s.store.ReplaceBlob(ctx, userID, blob, models.SectionPasswords); err != nil {
		s.log.Error("failed to save password",
			zap.String("user", userID),
			zap.String("password_id", pw.ID),
			zap.Error(err))
		return nil, err
	}

	s.log.Info("password saved", zap.String("user", userID), zap.String("password_id", pw.ID))
	pw.Password = fields.Password
	return &pw, nil
}

// List returns the caller's records with secret fields opened for display.
func (s *RecordService) List(ctx context.Context) (models.Blob, error) {
	userID, err := s.gate.ResolveIdentity(ctx)
	if err != nil {
		return models.Blob{}, err
	}

	stored, err := s.store.FetchBlob(ctx, userID)
	if err != nil {
		return models.Blob{}, err
	}
	blob, err := stored.Decode()
	if err != nil {
		return models.Blob{}, fmt.Errorf("list: %w", err)
	}

	for i := range blob.Cards {
		if blob.Cards[i].CVV, err = s.sealer.Open(blob.Cards[i].CVV); err != nil {
			return models.Blob{}, fmt.Errorf("open card %s: %w", blob.Cards[i].ID, err)
		}
	}
	for i := range blob.Passwords {
		if blob.Passwords[i].Password, err = s.sealer.Open(blob.Passwords[i].Password); err != nil {
			return models.Blob{}, fmt.Errorf("open password %s: %w", blob.Passwords[i].ID, err)
		}
	}
	return blob, nil
}

// Profile returns the caller's identity record from the provider.
func (s *RecordService) Profile(ctx context.Context) (*models.User, error) {
	userID, err := s.gate.ResolveIdentity(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.Profile(ctx, userID)
}

// RequestDelete records the caller's intent to delete a record. Deletion
// is not supported; the store is never touched and models.ErrNotImplemented
// is returned.
func (s *RecordService) RequestDelete(ctx context.Context, section models.Section, id string) error {
	userID, err := s.gate.ResolveIdentity(ctx)
	if err != nil {
		return err
	}
	s.log.Info("delete requested",
		zap.String("user", userID),
		zap.String("section", string(section)),
		zap.String("id", id))
	return models.ErrNotImplemented
}
