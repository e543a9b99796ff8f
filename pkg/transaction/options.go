package transaction

// Propagation decides how a transactional scope relates to a transaction
// already active on the calling context.
type Propagation int

const (
	// JoinOrCreate joins the caller's active transaction, or starts a new
	// one when none is active. This is the default.
	JoinOrCreate Propagation = iota

	// AlwaysNew starts an independent transaction on its own connection.
	// The caller's transaction, if any, is untouched and resumes when the
	// inner scope ends; its outcome is independent of the inner one.
	AlwaysNew

	// Nested starts a savepoint-backed scope inside the caller's
	// transaction, on the same connection. Rolling the scope back undoes
	// only work done since the savepoint. Without an active outer
	// transaction it degrades to a new one.
	Nested
)

func (p Propagation) String() string {
	switch p {
	case AlwaysNew:
		return "alwaysNew"
	case Nested:
		return "nested"
	default:
		return "joinOrCreate"
	}
}

// ParsePropagation maps a marker argument back to a Propagation. Unknown
// values map to the default.
func ParsePropagation(s string) Propagation {
	switch s {
	case "alwaysNew":
		return AlwaysNew
	case "nested":
		return Nested
	default:
		return JoinOrCreate
	}
}

// Isolation selects the transaction isolation level. The connector maps
// it onto whatever the underlying store supports.
type Isolation int

const (
	IsolationDefault Isolation = iota
	ReadCommitted
	RepeatableRead
	Serializable
)

func (i Isolation) String() string {
	switch i {
	case ReadCommitted:
		return "readCommitted"
	case RepeatableRead:
		return "repeatableRead"
	case Serializable:
		return "serializable"
	default:
		return "default"
	}
}

// ParseIsolation maps a marker argument back to an Isolation. Unknown
// values map to the default.
func ParseIsolation(s string) Isolation {
	switch s {
	case "readCommitted":
		return ReadCommitted
	case "repeatableRead":
		return RepeatableRead
	case "serializable":
		return Serializable
	default:
		return IsolationDefault
	}
}

// Options configures one transactional scope.
type Options struct {
	Propagation Propagation
	Isolation   Isolation

	// ReadOnly is a hint passed to the connector. It does not make the
	// runtime track or reject writes; a store may refuse them.
	ReadOnly bool

	// RollbackOn decides whether an error returned from a transactional
	// function rolls the scope back. Nil means every error does.
	RollbackOn func(error) bool
}

func (o Options) shouldRollback(err error) bool {
	if err == nil {
		return false
	}
	if o.RollbackOn == nil {
		return true
	}
	return o.RollbackOn(err)
}
