package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/NoPass/internal/models"
	"github.com/atinyakov/NoPass/internal/seal"
	"github.com/atinyakov/NoPass/internal/service"
	"github.com/atinyakov/NoPass/internal/store"
)

// memProvider is an in-memory identity provider with top-level merge updates.
type memProvider struct {
	mu        sync.Mutex
	users     map[string]models.Metadata
	gets      int
	updates   int
	getErr    error
	updateErr error
	// afterGet runs once, right after the next GetUser has read its snapshot.
	afterGet func()
}

func newMemProvider(users ...string) *memProvider {
	p := &memProvider{users: make(map[string]models.Metadata)}
	for _, u := range users {
		p.users[u] = models.Metadata{}
	}
	return p
}

func (p *memProvider) GetUser(ctx context.Context, userID string) (*models.User, error) {
	p.mu.Lock()
	p.gets++
	if p.getErr != nil {
		p.mu.Unlock()
		return nil, p.getErr
	}
	meta, ok := p.users[userID]
	if !ok {
		p.mu.Unlock()
		return nil, models.ErrUserNotFound
	}
	snapshot := make(models.Metadata, len(meta))
	for k, v := range meta {
		snapshot[k] = append(json.RawMessage(nil), v...)
	}
	hook := p.afterGet
	p.afterGet = nil
	p.mu.Unlock()

	if hook != nil {
		hook()
	}
	return &models.User{ID: userID, PrivateMetadata: snapshot}, nil
}

func (p *memProvider) UpdateUserMetadata(ctx context.Context, userID string, patch models.Metadata) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates++
	if p.updateErr != nil {
		return p.updateErr
	}
	meta, ok := p.users[userID]
	if !ok {
		return models.ErrUserNotFound
	}
	for k, v := range patch {
		meta[k] = v
	}
	return nil
}

func (p *memProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gets + p.updates
}

type gateFunc func(ctx context.Context) (string, error)

func (f gateFunc) ResolveIdentity(ctx context.Context) (string, error) { return f(ctx) }

func userGate(id string) gateFunc {
	return func(context.Context) (string, error) { return id, nil }
}

func anonymousGate() gateFunc {
	return func(context.Context) (string, error) { return "", models.ErrUnauthenticated }
}

var fixedNow = time.Date(2026, time.October, 17, 9, 30, 0, 0, time.UTC)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newService(gate service.IdentityGate, p *memProvider, sealer seal.Sealer) (*service.RecordService, *store.RecordStore) {
	st := store.NewRecordStore(p)
	svc := service.NewRecordService(gate, st, sealer,
		service.WithClock(func() time.Time { return fixedNow }),
		service.WithIDGenerator(sequentialIDs()),
	)
	return svc, st
}

func fetchDecoded(t *testing.T, st *store.RecordStore, userID string) models.Blob {
	t.Helper()
	stored, err := st.FetchBlob(context.Background(), userID)
	require.NoError(t, err)
	blob, err := stored.Decode()
	require.NoError(t, err)
	return blob
}

func janeCard() models.CardFields {
	return models.CardFields{CardNo: "4539578763621486", ExpiryDate: "12/29", CVV: "123", HolderName: "Jane Doe"}
}

func TestAppendCard_EmptyBlob(t *testing.T) {
	p := newMemProvider("user_1")
	svc, st := newService(userGate("user_1"), p, nil)

	card, err := svc.AppendCard(context.Background(), janeCard())
	require.NoError(t, err)
	assert.Equal(t, "id-1", card.ID)
	assert.Equal(t, fixedNow, card.CreatedAt)

	blob := fetchDecoded(t, st, "user_1")
	require.Len(t, blob.Cards, 1)
	assert.Equal(t, "4539578763621486", blob.Cards[0].CardNo)
	assert.Equal(t, *card, blob.Cards[0])
	assert.Empty(t, blob.Passwords)
}

func TestAppendCard_AppendsLastAndKeepsExisting(t *testing.T) {
	p := newMemProvider("user_1")
	svc, st := newService(userGate("user_1"), p, nil)
	ctx := context.Background()

	first, err := svc.AppendCard(ctx, janeCard())
	require.NoError(t, err)
	_, err = svc.AppendPassword(ctx, models.PasswordFields{WebsiteURL: "https://a.io", Username: "jane", Password: "secret1"})
	require.NoError(t, err)

	before := fetchDecoded(t, st, "user_1")

	fields := models.CardFields{CardName: "Work", CardNo: "4111111111111111", ExpiryDate: "01/30", CVV: "0042", HolderName: "J Doe"}
	second, err := svc.AppendCard(ctx, fields)
	require.NoError(t, err)

	after := fetchDecoded(t, st, "user_1")
	require.Len(t, after.Cards, len(before.Cards)+1)
	assert.Equal(t, *first, after.Cards[0])
	assert.Equal(t, before.Passwords, after.Passwords)

	last := after.Cards[len(after.Cards)-1]
	assert.Equal(t, second.ID, last.ID)
	assert.Equal(t, models.CardFields{
		CardName: last.CardName, CardNo: last.CardNo, ExpiryDate: last.ExpiryDate, CVV: last.CVV, HolderName: last.HolderName,
	}, fields)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestAppendPassword_SecondEntryLast(t *testing.T) {
	p := newMemProvider("user_1")
	p.users["user_1"]["passwords"] = json.RawMessage(
		`[{"id":"p0","websiteUrl":"https://old.example","username":"jane","password":"oldsecret","createdAt":"2025-05-01T00:00:00Z"}]`)
	svc, st := newService(userGate("user_1"), p, nil)

	pw, err := svc.AppendPassword(context.Background(), models.PasswordFields{
		WebsiteURL: "https://example.com", Username: "john@example.com", Password: "hunter22",
	})
	require.NoError(t, err)

	blob := fetchDecoded(t, st, "user_1")
	require.Len(t, blob.Passwords, 2)
	assert.Equal(t, models.Password{
		ID: "p0", WebsiteURL: "https://old.example", Username: "jane", Password: "oldsecret",
		CreatedAt: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
	}, blob.Passwords[0])
	assert.Equal(t, *pw, blob.Passwords[1])
	assert.Equal(t, "hunter22", blob.Passwords[1].Password)
}

func TestAppend_PreservesUnrelatedMetadata(t *testing.T) {
	p := newMemProvider("user_1")
	p.users["user_1"]["theme"] = json.RawMessage(`"dark"`)
	svc, _ := newService(userGate("user_1"), p, nil)

	_, err := svc.AppendCard(context.Background(), janeCard())
	require.NoError(t, err)
	assert.JSONEq(t, `"dark"`, string(p.users["user_1"]["theme"]))
	assert.NotContains(t, p.users["user_1"], "passwords")
}

func TestAppendPassword_UnauthenticatedMakesNoStoreCalls(t *testing.T) {
	p := newMemProvider("user_1")
	p.users["user_1"]["passwords"] = json.RawMessage(`[]`)
	svc, _ := newService(anonymousGate(), p, nil)

	_, err := svc.AppendPassword(context.Background(), models.PasswordFields{
		WebsiteURL: "https://example.com", Username: "jane", Password: "hunter22",
	})
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
	assert.Equal(t, 0, p.calls())
	assert.JSONEq(t, `[]`, string(p.users["user_1"]["passwords"]))
}

func TestUnauthenticated_AllOperations(t *testing.T) {
	p := newMemProvider("user_1")
	svc, _ := newService(anonymousGate(), p, nil)
	ctx := context.Background()

	_, err := svc.AppendCard(ctx, janeCard())
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
	_, err = svc.List(ctx)
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
	_, err = svc.Profile(ctx)
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
	err = svc.RequestDelete(ctx, models.SectionCards, "c1")
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
	assert.Equal(t, 0, p.calls())
}

func TestAppendCard_FetchFailure(t *testing.T) {
	p := newMemProvider("user_1")
	p.getErr = errors.New("connection refused")
	svc, _ := newService(userGate("user_1"), p, nil)

	_, err := svc.AppendCard(context.Background(), janeCard())
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
	assert.Equal(t, 0, p.updates)
}

func TestAppendCard_ReplaceFailureLosesRecord(t *testing.T) {
	p := newMemProvider("user_1")
	p.updateErr = errors.New("provider returned 503")
	svc, _ := newService(userGate("user_1"), p, nil)

	_, err := svc.AppendCard(context.Background(), janeCard())
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)

	p.updateErr = nil
	blob := fetchDecoded(t, store.NewRecordStore(p), "user_1")
	assert.Empty(t, blob.Cards)
}

func TestAppendCard_ResubmitCreatesDuplicate(t *testing.T) {
	p := newMemProvider("user_1")
	svc, st := newService(userGate("user_1"), p, nil)
	ctx := context.Background()

	a, err := svc.AppendCard(ctx, janeCard())
	require.NoError(t, err)
	b, err := svc.AppendCard(ctx, janeCard())
	require.NoError(t, err)

	blob := fetchDecoded(t, st, "user_1")
	require.Len(t, blob.Cards, 2)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, a.CardNo, b.CardNo)
}

func TestAppendCard_UnknownUser(t *testing.T) {
	p := newMemProvider()
	svc, _ := newService(userGate("ghost"), p, nil)

	_, err := svc.AppendCard(context.Background(), janeCard())
	assert.ErrorIs(t, err, models.ErrUserNotFound)
}

// Two appends for one user where the second reads before the first writes:
// the write that completes last overwrites the other, and that record is gone.
func TestAppendCard_InterleavedAppendsLoseAnUpdate(t *testing.T) {
	p := newMemProvider("user_1")
	svc, st := newService(userGate("user_1"), p, nil)
	ctx := context.Background()

	var (
		inner    *models.Card
		innerErr error
	)
	p.afterGet = func() {
		inner, innerErr = svc.AppendCard(ctx, models.CardFields{
			CardNo: "4111111111111111", ExpiryDate: "01/30", CVV: "999", HolderName: "Tab Two",
		})
	}

	outer, err := svc.AppendCard(ctx, janeCard())
	require.NoError(t, err)
	require.NoError(t, innerErr)
	require.NotNil(t, inner)

	blob := fetchDecoded(t, st, "user_1")
	require.Len(t, blob.Cards, 1, "one of the two appends is lost")
	assert.Equal(t, outer.ID, blob.Cards[0].ID)
	assert.NotEqual(t, inner.ID, blob.Cards[0].ID)
}

func TestAppend_SealsSecrets(t *testing.T) {
	key, err := seal.GenerateDataKey()
	require.NoError(t, err)
	sealer, err := seal.NewAgeSealer(key)
	require.NoError(t, err)

	p := newMemProvider("user_1")
	svc, st := newService(userGate("user_1"), p, sealer)
	ctx := context.Background()

	card, err := svc.AppendCard(ctx, janeCard())
	require.NoError(t, err)
	assert.Equal(t, "123", card.CVV)
	pw, err := svc.AppendPassword(ctx, models.PasswordFields{WebsiteURL: "https://a.io", Username: "jane", Password: "hunter22"})
	require.NoError(t, err)
	assert.Equal(t, "hunter22", pw.Password)

	stored := fetchDecoded(t, st, "user_1")
	assert.True(t, seal.IsSealed(stored.Cards[0].CVV))
	assert.True(t, seal.IsSealed(stored.Passwords[0].Password))
	assert.Equal(t, "4539578763621486", stored.Cards[0].CardNo)

	listed, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "123", listed.Cards[0].CVV)
	assert.Equal(t, "hunter22", listed.Passwords[0].Password)
}

func TestList_SealedWithoutKey(t *testing.T) {
	p := newMemProvider("user_1")
	p.users["user_1"]["passwords"] = json.RawMessage(`[{"id":"p1","password":"age:AAAA"}]`)
	svc, _ := newService(userGate("user_1"), p, nil)

	_, err := svc.List(context.Background())
	assert.ErrorIs(t, err, seal.ErrNoKey)
}

func TestList_ReturnsBothSections(t *testing.T) {
	p := newMemProvider("user_1")
	svc, _ := newService(userGate("user_1"), p, nil)
	ctx := context.Background()

	_, err := svc.AppendCard(ctx, janeCard())
	require.NoError(t, err)

	blob, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, blob.Cards, 1)
	assert.NotNil(t, blob.Passwords)
	assert.Empty(t, blob.Passwords)
}

func TestRequestDelete_DoesNotTouchStore(t *testing.T) {
	p := newMemProvider("user_1")
	svc, _ := newService(userGate("user_1"), p, nil)

	err := svc.RequestDelete(context.Background(), models.SectionPasswords, "p1")
	assert.ErrorIs(t, err, models.ErrNotImplemented)
	assert.Equal(t, 0, p.calls())
}

func TestProfile(t *testing.T) {
	p := newMemProvider("user_1")
	svc, _ := newService(userGate("user_1"), p, nil)

	user, err := svc.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user_1", user.ID)
}

func TestAppend_StoredRecordsKeepTheirBytes(t *testing.T) {
	legacyCard := `{"id":1,"name":"Visa","cardNumber":"4111111111111111","holder":"Al","createdAt":"2024-01-02","cvv":123,"note":"keep me"}`
	taggedPassword := `{"id":"p0","websiteUrl":"https://a.io","username":"al","password":"pw","createdAt":"2025-05-01T00:00:00Z","tags":["x"]}`

	p := newMemProvider("user_1")
	p.users["user_1"]["cards"] = json.RawMessage(`[` + legacyCard + `]`)
	p.users["user_1"]["passwords"] = json.RawMessage(`[` + taggedPassword + `]`)
	svc, _ := newService(userGate("user_1"), p, nil)
	ctx := context.Background()

	_, err := svc.AppendCard(ctx, janeCard())
	require.NoError(t, err)
	_, err = svc.AppendPassword(ctx, models.PasswordFields{WebsiteURL: "https://b.io", Username: "jane", Password: "hunter22"})
	require.NoError(t, err)

	var cards, passwords []json.RawMessage
	require.NoError(t, json.Unmarshal(p.users["user_1"]["cards"], &cards))
	require.NoError(t, json.Unmarshal(p.users["user_1"]["passwords"], &passwords))
	require.Len(t, cards, 2)
	require.Len(t, passwords, 2)
	assert.Equal(t, legacyCard, string(cards[0]))
	assert.Equal(t, taggedPassword, string(passwords[0]))
}

func TestAppendCard_LenientPasswordDateDoesNotBlock(t *testing.T) {
	p := newMemProvider("user_1")
	p.users["user_1"]["passwords"] = json.RawMessage(
		`[{"id":"p0","websiteUrl":"https://a.io","username":"al","password":"pw","createdAt":"2024-01-02"}]`)
	svc, _ := newService(userGate("user_1"), p, nil)
	ctx := context.Background()

	_, err := svc.AppendCard(ctx, janeCard())
	require.NoError(t, err)

	blob, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, blob.Cards, 1)
	require.Len(t, blob.Passwords, 1)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), blob.Passwords[0].CreatedAt)
}

func TestAppendCard_UndecodableElementStillAppends(t *testing.T) {
	p := newMemProvider("user_1")
	p.users["user_1"]["cards"] = json.RawMessage(`["just a string"]`)
	svc, _ := newService(userGate("user_1"), p, nil)
	ctx := context.Background()

	_, err := svc.AppendCard(ctx, janeCard())
	require.NoError(t, err)

	var cards []json.RawMessage
	require.NoError(t, json.Unmarshal(p.users["user_1"]["cards"], &cards))
	require.Len(t, cards, 2)
	assert.Equal(t, `"just a string"`, string(cards[0]))

	_, err = svc.List(ctx)
	assert.ErrorIs(t, err, models.ErrMalformedBlob)
}
