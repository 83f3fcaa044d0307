package address

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func newTestService(t *testing.T) (Service, *models.User, func(enums.AddressType) []models.Address) {
	t.Helper()
	conn := dbtest.Open(t)
	user := dbtest.CreateUser(t, conn, enums.UserRoleCustomer)
	svc, err := NewService(NewRepository(conn), db.FromGorm(conn), nil)
	require.NoError(t, err)

	defaults := func(addrType enums.AddressType) []models.Address {
		var rows []models.Address
		require.NoError(t, conn.Where("user_id = ? AND type = ? AND is_default = ?", user.ID, addrType, true).Find(&rows).Error)
		return rows
	}
	return svc, &user, defaults
}

func validInput(isDefault bool) CreateInput {
	return CreateInput{
		Street:     " 221B Baker St ",
		City:       "London",
		State:      "LDN",
		PostalCode: "NW1 6XE",
		Country:    "GB",
		IsDefault:  isDefault,
	}
}

func TestCreateTrimsAndDefaultsToShipping(t *testing.T) {
	svc, user, _ := newTestService(t)

	addr, err := svc.Create(context.Background(), user.ID, validInput(false))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, addr.ID)
	assert.Equal(t, "221B Baker St", addr.Street)
	assert.Equal(t, enums.AddressTypeShipping, addr.Type)
	assert.False(t, addr.IsDefault)
}

func TestCreateRejectsMissingFields(t *testing.T) {
	svc, user, _ := newTestService(t)

	input := validInput(true)
	input.City = "  "
	input.Country = ""
	_, err := svc.Create(context.Background(), user.ID, input)
	require.Error(t, err)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	assert.Contains(t, details, "city")
	assert.Contains(t, details, "country")
}

func TestCreateRejectsUnknownType(t *testing.T) {
	svc, user, _ := newTestService(t)

	input := validInput(false)
	input.Type = "office"
	_, err := svc.Create(context.Background(), user.ID, input)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCreateRequiresUser(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Create(context.Background(), uuid.Nil, validInput(false))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestCreateDefaultClearsPriorDefaultOfSameType(t *testing.T) {
	svc, user, defaults := newTestService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, user.ID, validInput(true))
	require.NoError(t, err)

	billing := validInput(true)
	billing.Type = "billing"
	billingAddr, err := svc.Create(ctx, user.ID, billing)
	require.NoError(t, err)

	second, err := svc.Create(ctx, user.ID, validInput(true))
	require.NoError(t, err)

	shipping := defaults(enums.AddressTypeShipping)
	require.Len(t, shipping, 1)
	assert.Equal(t, second.ID, shipping[0].ID)
	assert.NotEqual(t, first.ID, shipping[0].ID)

	billingDefaults := defaults(enums.AddressTypeBilling)
	require.Len(t, billingDefaults, 1)
	assert.Equal(t, billingAddr.ID, billingDefaults[0].ID)
}

func TestConcurrentDefaultsLeaveExactlyOne(t *testing.T) {
	svc, user, defaults := newTestService(t)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(ctx, user.ID, validInput(true))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Len(t, defaults(enums.AddressTypeShipping), 1)

	all, err := svc.List(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, all, writers)
}
