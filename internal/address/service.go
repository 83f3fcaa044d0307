package address

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const defaultAddressIndex = "ux_addresses_one_default"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service resolves and stores user addresses.
type Service interface {
	Create(ctx context.Context, userID uuid.UUID, input CreateInput) (*models.Address, error)
	List(ctx context.Context, userID uuid.UUID) ([]models.Address, error)
}

// CreateInput is a candidate address submitted by its owner.
type CreateInput struct {
	Street     string
	City       string
	State      string
	PostalCode string
	Country    string
	Type       string
	IsDefault  bool
}

type service struct {
	repo Repository
	tx   txRunner
	logg *logger.Logger
}

func NewService(repo Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("address repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx, logg: logg}, nil
}

// Create stores the address. When it is marked default, every existing default
// of the same type for the user is cleared in the same transaction.
func (s *service) Create(ctx context.Context, userID uuid.UUID, input CreateInput) (*models.Address, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}

	addr, err := buildAddress(userID, input)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if addr.IsDefault {
			if err := repo.LockOwner(ctx, userID); err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return pkgerrors.New(pkgerrors.CodeUnauthorized, "user not found")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock address owner")
			}
			if err := repo.ClearDefault(ctx, userID, addr.Type); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear default address")
			}
		}
		if err := repo.Create(ctx, addr); err != nil {
			if db.IsUniqueViolation(err, defaultAddressIndex) {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "another default address was set concurrently")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create address")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"address_id": addr.ID.String(),
			"type":       addr.Type,
			"is_default": addr.IsDefault,
		})
		s.logg.Info(logCtx, "address created")
	}
	return addr, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID) ([]models.Address, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	addrs, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list addresses")
	}
	return addrs, nil
}

func buildAddress(userID uuid.UUID, input CreateInput) (*models.Address, error) {
	fields := map[string]string{
		"street":     strings.TrimSpace(input.Street),
		"city":       strings.TrimSpace(input.City),
		"state":      strings.TrimSpace(input.State),
		"postalCode": strings.TrimSpace(input.PostalCode),
		"country":    strings.TrimSpace(input.Country),
	}
	missing := map[string]string{}
	for name, value := range fields {
		if value == "" {
			missing[name] = "required"
		}
	}
	if len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address fields are required").WithDetails(missing)
	}

	addrType, err := enums.ParseAddressType(input.Type)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid address type")
	}

	return &models.Address{
		UserID:     userID,
		Street:     fields["street"],
		City:       fields["city"],
		State:      fields["state"],
		PostalCode: fields["postalCode"],
		Country:    fields["country"],
		Type:       addrType,
		IsDefault:  input.IsDefault,
	}, nil
}
