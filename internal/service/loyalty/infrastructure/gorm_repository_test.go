package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stampcard/internal/service/loyalty/domain"
)

func TestBusinessRepositoryRoundTrip(t *testing.T) {
	db := newMigratedDB(t)
	repo := NewGormBusinessRepository(db)
	ctx := context.Background()

	b, err := domain.NewBusiness(uuid.NewString(), "Panadería Sol", "sol@pan.es", "hash", time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, b))

	got, err := repo.FindBySlug(ctx, "panaderia-sol")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, domain.ExpirationNone, got.Expiration.Mode)
	assert.Nil(t, got.Program.RewardThreshold)

	_, err = repo.FindByEmail(ctx, "nobody@pan.es")
	assert.ErrorIs(t, err, domain.ErrBusinessNotFound)
}

func TestBusinessRepositoryDuplicate(t *testing.T) {
	db := newMigratedDB(t)
	repo := NewGormBusinessRepository(db)
	ctx := context.Background()

	first, _ := domain.NewBusiness(uuid.NewString(), "Bar Luna", "luna@bar.es", "hash", time.Now())
	require.NoError(t, repo.Create(ctx, first))

	sameEmail, _ := domain.NewBusiness(uuid.NewString(), "Otro Bar", "luna@bar.es", "hash", time.Now())
	assert.ErrorIs(t, repo.Create(ctx, sameEmail), domain.ErrDuplicate)

	sameSlug, _ := domain.NewBusiness(uuid.NewString(), "Bar  Luna", "otro@bar.es", "hash", time.Now())
	assert.ErrorIs(t, repo.Create(ctx, sameSlug), domain.ErrDuplicate)
}

func TestBusinessRepositoryUpdates(t *testing.T) {
	db := newMigratedDB(t)
	repo := NewGormBusinessRepository(db)
	ctx := context.Background()

	b, _ := domain.NewBusiness(uuid.NewString(), "Bar Luna", "luna@bar.es", "hash", time.Now())
	require.NoError(t, repo.Create(ctx, b))

	p := b.Program
	require.NoError(t, p.Apply(domain.ProgramUpdate{RewardThreshold: intPtr(8)}))
	p.Messages.StampOne = "Hola {nombre}"
	require.NoError(t, repo.UpdateProgram(ctx, b.ID, p))

	cutoff := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	exp, err := domain.NewExpirationPolicy(domain.ExpirationFixedDate, &cutoff, nil)
	require.NoError(t, err)
	require.NoError(t, repo.UpdateExpiration(ctx, b.ID, exp))

	got, err := repo.FindByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, *got.Program.RewardThreshold)
	assert.Equal(t, "Hola {nombre}", got.Program.Messages.StampOne)
	assert.Equal(t, domain.ExpirationFixedDate, got.Expiration.Mode)
	require.NotNil(t, got.Expiration.Date)
	assert.True(t, cutoff.Equal(*got.Expiration.Date))
	assert.Nil(t, got.Expiration.Days)
}

func TestClientRepositoryFindForBusiness(t *testing.T) {
	db := newMigratedDB(t)
	ledger := NewGormLedger(db, 3)
	f := seed(t, db, ledger, nil)
	clients := NewGormClientRepository(db)
	ctx := context.Background()

	got, err := clients.FindForBusiness(ctx, f.business.ID, "ana@mail.es", "")
	require.NoError(t, err)
	assert.Equal(t, f.client.ID, got.ID)

	_, err = clients.FindForBusiness(ctx, f.business.ID, "", "")
	assert.ErrorIs(t, err, domain.ErrClientNotFound)

	// 其他商户的会员不可见
	_, err = clients.FindForBusiness(ctx, uuid.NewString(), "ana@mail.es", "")
	assert.ErrorIs(t, err, domain.ErrClientNotFound)

	got.Phone = "+34 611"
	require.NoError(t, clients.Update(ctx, got))
	byPhone, err := clients.FindForBusiness(ctx, f.business.ID, "other@mail.es", "+34 611")
	require.NoError(t, err)
	assert.Equal(t, f.client.ID, byPhone.ID)
}

func TestLandingRepositoryUpsert(t *testing.T) {
	repo := NewGormLandingRepository(newMigratedDB(t))
	ctx := context.Background()
	id := uuid.NewString()

	_, ok, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Save(ctx, id, domain.LandingConfig{"formTitle": "Uno"}))
	require.NoError(t, repo.Save(ctx, id, domain.LandingConfig{"formTitle": "Dos", "fields": map[string]any{"phone": false}}))

	cfg, ok, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Dos", cfg["formTitle"])
	assert.Equal(t, map[string]any{"phone": false}, cfg["fields"])
}
