package benefit

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestAccountService_CreateDefaultsActive(t *testing.T) {
	svc := NewAccountService(NewMemoryStore(), nil)

	a, err := svc.Create(context.Background(), CreateAccountRequest{Name: "Meal", Balance: dec("100")})
	require.NoError(t, err)
	assert.True(t, a.Active)
	assert.Equal(t, int64(1), a.Version)

	b, err := svc.Create(context.Background(), CreateAccountRequest{Name: "Fuel", Balance: dec("0"), Active: boolPtr(false)})
	require.NoError(t, err)
	assert.False(t, b.Active)
}

func TestAccountService_CreateRejectsInvalidFields(t *testing.T) {
	svc := NewAccountService(NewMemoryStore(), nil)
	ctx := context.Background()

	cases := []struct {
		name  string
		req   CreateAccountRequest
		field string
	}{
		{"blank name", CreateAccountRequest{Name: "  "}, "name"},
		{"long name", CreateAccountRequest{Name: strings.Repeat("n", 101)}, "name"},
		{"long description", CreateAccountRequest{Name: "ok", Description: strings.Repeat("d", 256)}, "description"},
		{"negative balance", CreateAccountRequest{Name: "ok", Balance: dec("-0.01")}, "balance"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.req)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tc.field, vErr.Field)
		})
	}

	all, err := svc.List(ctx, AccountFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestAccountService_ListActive(t *testing.T) {
	svc := NewAccountService(NewMemoryStore(), nil)
	ctx := context.Background()
	_, err := svc.Create(ctx, CreateAccountRequest{Name: "on", Balance: dec("1")})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateAccountRequest{Name: "off", Balance: dec("1"), Active: boolPtr(false)})
	require.NoError(t, err)

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "on", active[0].Name)

	_, err = svc.List(ctx, AccountFilter{Limit: -1})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAccountService_UpdateRequiresCurrentVersion(t *testing.T) {
	svc := NewAccountService(NewMemoryStore(), nil)
	ctx := context.Background()
	a, err := svc.Create(ctx, CreateAccountRequest{Name: "Meal", Balance: dec("100"), Active: boolPtr(false)})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, a.ID, UpdateAccountRequest{Name: "Meal+", Description: "more", Balance: dec("120"), Version: a.Version})
	require.NoError(t, err)
	assert.Equal(t, "Meal+", updated.Name)
	assert.False(t, updated.Active, "omitted active keeps the stored value")
	assert.Equal(t, int64(2), updated.Version)

	_, err = svc.Update(ctx, a.ID, UpdateAccountRequest{Name: "stale", Balance: dec("1"), Version: a.Version})
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.True(t, IsRetryable(err))

	_, err = svc.Update(ctx, a.ID, UpdateAccountRequest{Name: "noversion", Balance: dec("1")})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Update(ctx, 999, UpdateAccountRequest{Name: "ghost", Balance: dec("1"), Version: 1})
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Meal+", got.Name)
	assert.True(t, got.Balance.Equal(dec("120")))
}

func TestAccountService_Delete(t *testing.T) {
	svc := NewAccountService(NewMemoryStore(), nil)
	ctx := context.Background()
	a, err := svc.Create(ctx, CreateAccountRequest{Name: "Gym", Balance: dec("5")})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, a.ID))

	err = svc.Delete(ctx, a.ID)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, a.ID, nf.ID)

	assert.ErrorIs(t, svc.Delete(ctx, 0), ErrValidation)
	_, err = svc.Get(ctx, 0)
	assert.ErrorIs(t, err, ErrValidation)
}
