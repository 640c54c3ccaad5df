package scheduler

// Task is anything implementing the poll contract: Poll is called with a
// Context bound to this task's waker and returns (value, true) once the
// task is Ready, or (nil, false) while still Pending. Poll may register the
// Context's waker with any external event source; invoking that waker must
// eventually cause the scheduler to re-poll this task.
type Task interface {
	Poll(ctx *Context) (value any, ready bool)
	Name() string
	ID() uint64
	SetID(id uint64)
}

// Base provides the name/id/set_id accessors required by the Task contract.
// Embed it in concrete task types so they only need to implement Poll.
type Base struct {
	name string
	id   uint64
}

// NewBase returns a Base with the given diagnostic name. The id is assigned
// by the scheduler on insertion.
func NewBase(name string) Base {
	return Base{name: name}
}

func (b *Base) Name() string    { return b.name }
func (b *Base) ID() uint64      { return b.id }
func (b *Base) SetID(id uint64) { b.id = id }
