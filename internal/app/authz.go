package app

import "cumbria_stays/internal/domain"

// Action enumerates the guarded operations. Authorization is a pure predicate
// over the actor's roles and the resource owner, so it can be tested without
// any storage behind it.
type Action int

const (
	// book on behalf of another user
	ActionDelegateBooking Action = iota
	// cancel a booking; resourceOwner is the booking's user or the property host
	ActionCancelBooking
	// edit or delete a property; resourceOwner is its host
	ActionManageProperty
	ActionCreateProperty
	// reassign a property to a different host
	ActionSetPropertyHost
)

func Authorize(a Action, actor domain.Identity, resourceOwner string) bool {
	if actor.IsGuest() {
		return false
	}
	switch a {
	case ActionDelegateBooking:
		if actor.IsAdmin() || actor.HasRole(domain.RoleSupport) {
			return true
		}
		return actor.IsHost() && actor.User == resourceOwner
	case ActionCancelBooking:
		return actor.IsAdmin() || actor.User == resourceOwner
	case ActionManageProperty:
		if actor.IsAdmin() {
			return true
		}
		return actor.IsHost() && actor.User == resourceOwner
	case ActionCreateProperty:
		return actor.IsAdmin() || actor.IsHost()
	case ActionSetPropertyHost:
		return actor.IsAdmin()
	}
	return false
}
