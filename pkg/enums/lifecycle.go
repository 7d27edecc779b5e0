package enums

// Lifecycle tags whether a user or product row is live or soft deleted.
type Lifecycle string

const (
	LifecycleActive  Lifecycle = "active"
	LifecycleDeleted Lifecycle = "deleted"
)

var lifecycles = values[Lifecycle]{"lifecycle", []Lifecycle{LifecycleActive, LifecycleDeleted}}

func (l Lifecycle) IsValid() bool { return lifecycles.has(l) }

func ParseLifecycle(value string) (Lifecycle, error) { return lifecycles.parse(value) }
