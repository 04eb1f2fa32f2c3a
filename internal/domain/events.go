package domain

// EventKind categorizes backend push events
type EventKind int

const (
	EventUnknown EventKind = iota
	EventContentChanged
	EventDeviceDeleted
)

func (k EventKind) String() string {
	switch k {
	case EventContentChanged:
		return "content_changed"
	case EventDeviceDeleted:
		return "device_deleted"
	default:
		return "unknown"
	}
}

// Event is a push notification from the backend
type Event struct {
	Name string    // Wire name, e.g. "onNewContent"
	Kind EventKind
}

// EventHandler receives notifier events
type EventHandler func(Event)

// eventKinds maps wire names to categories
var eventKinds = map[string]EventKind{
	"onNewGlobalContent":     EventContentChanged,
	"onDeletedGlobalContent": EventContentChanged,
	"onUpdatedGlobalContent": EventContentChanged,
	"onNewContent":           EventContentChanged,
	"onRemovedContent":       EventContentChanged,
	"onUpdatedContent":       EventContentChanged,
	"onAllContentRemoved":    EventContentChanged,
	"onDeviceDeleted":        EventDeviceDeleted,
}

// ParseEvent classifies a wire event name
func ParseEvent(name string) Event {
	return Event{Name: name, Kind: eventKinds[name]}
}

// EventNames returns every recognized wire name
func EventNames() []string {
	names := make([]string, 0, len(eventKinds))
	for name := range eventKinds {
		names = append(names, name)
	}
	return names
}
