package types

import "time"

// ChangeKind classifies a CacheChange's effect on an instance's lifecycle.
type ChangeKind byte

const (
	ChangeKindAlive ChangeKind = iota
	ChangeKindNotAliveDisposed
	ChangeKindNotAliveUnregistered
	ChangeKindNotAliveDisposedUnregistered
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeKindAlive:
		return "ALIVE"
	case ChangeKindNotAliveDisposed:
		return "NOT_ALIVE_DISPOSED"
	case ChangeKindNotAliveUnregistered:
		return "NOT_ALIVE_UNREGISTERED"
	case ChangeKindNotAliveDisposedUnregistered:
		return "NOT_ALIVE_DISPOSED_UNREGISTERED"
	default:
		return "UNKNOWN"
	}
}

// InstanceHandle is the 16-byte identity of a keyed data instance (CDR-BE
// of the key fields, or all-zero for keyless types).
type InstanceHandle [16]byte

// ParameterList is an ordered list of (parameter id, value) pairs, as
// decoded from or destined for PL_CDR. Duplicates are preserved in order.
type Parameter struct {
	ID    uint16
	Value []byte
}

type ParameterList struct {
	Parameters []Parameter
}

func (pl *ParameterList) Add(id uint16, value []byte) {
	pl.Parameters = append(pl.Parameters, Parameter{ID: id, Value: value})
}

// Find returns the value of the first parameter with the given id.
func (pl *ParameterList) Find(id uint16) ([]byte, bool) {
	for _, p := range pl.Parameters {
		if p.ID == id {
			return p.Value, true
		}
	}
	return nil, false
}

// CacheChange is an immutable sample held by a history cache.
type CacheChange struct {
	Kind            ChangeKind
	WriterGuid      Guid
	InstanceHandle  InstanceHandle
	SequenceNumber  SequenceNumber
	SourceTimestamp *time.Time
	Data            []byte
	InlineQos       ParameterList
}
