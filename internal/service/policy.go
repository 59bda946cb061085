package service

import "github.com/Shivanand-hulikatti/event-booking/internal/model"

// Policy decides whether an actor may act on a booking or manage an event.
// The engine trusts the actor's identity and role as given.
type Policy interface {
	CanActOnBooking(actor model.Actor, b model.Booking) bool
	CanManageEvent(actor model.Actor, e model.Event) bool
}

// DefaultPolicy lets owners act on their own records and administrators act
// on everything.
type DefaultPolicy struct{}

func (DefaultPolicy) CanActOnBooking(actor model.Actor, b model.Booking) bool {
	return actor.IsAdmin() || (actor.UserID != "" && actor.UserID == b.UserID)
}

func (DefaultPolicy) CanManageEvent(actor model.Actor, e model.Event) bool {
	if actor.IsAdmin() {
		return true
	}
	return actor.Role == model.RoleOrganizer && actor.UserID != "" && actor.UserID == e.OrganizerID
}

// CanCreateEvents reports whether the actor may create events at all.
func CanCreateEvents(actor model.Actor) bool {
	return actor.Role == model.RoleOrganizer || actor.IsAdmin()
}
