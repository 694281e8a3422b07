package ws

import (
	"time"
)

type EventType string

const (
	EventVisitRecorded    EventType = "visit.recorded"
	EventIdentityEnrolled EventType = "face.enrolled"
	EventIdentityUpdated  EventType = "face.updated"
	EventIdentityDeleted  EventType = "face.deleted"
	EventGalleryRebuilt   EventType = "gallery.rebuilt"
)

type Event struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`

	// denied marks visits that were refused access
	denied bool
}

// Filter selects which events a client receives.
type Filter string

const (
	FilterAll    Filter = "all"
	FilterDenied Filter = "denied"
)

// ParseFilter maps a query value to a Filter; unknown values mean all.
func ParseFilter(s string) Filter {
	if Filter(s) == FilterDenied {
		return FilterDenied
	}
	return FilterAll
}

func (f Filter) accepts(e Event) bool {
	if f != FilterDenied {
		return true
	}
	return e.Type == EventVisitRecorded && e.denied
}
