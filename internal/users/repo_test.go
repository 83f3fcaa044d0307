package users

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

func TestRepositoryCreateAndFind(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	user, err := repo.Create(ctx, CreateUserDTO{
		Email:        " Ada@Example.com ",
		PasswordHash: "hash",
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Role:         enums.UserRoleSystem,
	})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, enums.UserRoleCustomer, user.Role)
	assert.True(t, user.IsActive)

	found, err := repo.FindByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	byID, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lovelace", byID.LastName)

	_, err = repo.Create(ctx, CreateUserDTO{Email: "ada@example.com", PasswordHash: "x", FirstName: "A", LastName: "B"})
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, ""))
}

func TestRepositoryUpdateLastLogin(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	user := dbtest.CreateUser(t, conn, enums.UserRoleAdmin)

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.UpdateLastLogin(context.Background(), user.ID, at))

	found, err := repo.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	require.NotNil(t, found.LastLoginAt)
	assert.True(t, at.Equal(found.LastLoginAt.UTC()))

	dto := FromModel(found)
	assert.Equal(t, enums.UserRoleAdmin, dto.Role)
}

func TestRepositoryMissesReturnRecordNotFound(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()

	_, err := repo.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	err = repo.UpdateLastLogin(ctx, uuid.New(), time.Now())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
