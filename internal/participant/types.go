// Package participant implements the participant actor: the
// mailbox-serialized owner of every endpoint, proxy, history cache and
// the transport handle, per spec.md §4.10-§5 and §6's collaborator
// interface.
package participant

import (
	"time"

	"github.com/nimbora/rtpscore/internal/qos"
	"github.com/nimbora/rtpscore/internal/types"
)

// PublisherHandle and SubscriberHandle are opaque entities grouping
// datawriters/datareaders under a shared default QoS, per spec.md §6.
type PublisherHandle uint64
type SubscriberHandle uint64

// TopicDescription is the (name, type, QoS) triple a publisher's
// datawriter or a subscriber's datareader is created against.
type TopicDescription struct {
	Name     string
	TypeName string
	QoS      qos.Policies
}

// Sample is one delivered or published value returned by Read/Take.
type Sample struct {
	Data            []byte
	Kind            types.ChangeKind
	SourceTimestamp time.Time
	WriterGuid      types.Guid
}

type publisherState struct {
	handle      PublisherHandle
	defaultQoS  qos.Policies
}

type subscriberState struct {
	handle     SubscriberHandle
	defaultQoS qos.Policies
}
