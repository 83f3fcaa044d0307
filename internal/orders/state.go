package orders

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// legalTransitions lists every status an order may move to from its current one.
// DELIVERED and CANCELLED have no successors.
var legalTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:    {enums.OrderStatusProcessing, enums.OrderStatusCancelled},
	enums.OrderStatusProcessing: {enums.OrderStatusShipped, enums.OrderStatusCancelled},
	enums.OrderStatusShipped:    {enums.OrderStatusDelivered},
}

// AllowedNext returns the statuses reachable from from in one step.
func AllowedNext(from enums.OrderStatus) []enums.OrderStatus {
	next := legalTransitions[from]
	out := make([]enums.OrderStatus, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether from -> to is a legal single step.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range legalTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Actor is whoever requests a transition.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// SystemActor is used by trusted internal callers such as the payment webhook
// and the pending order sweep.
func SystemActor() Actor {
	return Actor{Role: enums.UserRoleSystem}
}

func (a Actor) mayTransition() bool {
	return a.Role == enums.UserRoleAdmin || a.Role == enums.UserRoleSystem
}
