package discovery

import (
	"sync"

	"github.com/nimbora/rtpscore/internal/qos"
	"github.com/nimbora/rtpscore/internal/types"
)

// TopicMatch reports whether a discovered writer/reader pair shares a
// topic and type name and has compatible QoS, per spec.md §4.9.
func TopicMatch(topicA, typeA string, qosA qos.Policies, topicB, typeB string, qosB qos.Policies) (ok bool, reason string) {
	if topicA != topicB || typeA != typeB {
		return false, "topic or type name mismatch"
	}
	return qos.Compatible(qosA, qosB)
}

// WriterTable holds discovered remote writers (SEDP publications),
// invoking OnDiscovered for every writer added. It does no matching itself;
// the caller checks each local reader with TopicMatch (spec.md §4.9).
type WriterTable struct {
	mu      sync.Mutex
	writers map[types.Guid]DiscoveredWriterData

	// OnDiscovered/OnRemoved fire outside the lock.
	OnDiscovered func(DiscoveredWriterData)
	OnRemoved    func(types.Guid)
}

func NewWriterTable() *WriterTable {
	return &WriterTable{writers: make(map[types.Guid]DiscoveredWriterData)}
}

func (t *WriterTable) Add(d DiscoveredWriterData) {
	t.mu.Lock()
	t.writers[d.EndpointGuid] = d
	t.mu.Unlock()
	if t.OnDiscovered != nil {
		t.OnDiscovered(d)
	}
}

func (t *WriterTable) Remove(guid types.Guid) {
	t.mu.Lock()
	delete(t.writers, guid)
	t.mu.Unlock()
	if t.OnRemoved != nil {
		t.OnRemoved(guid)
	}
}

func (t *WriterTable) All() []DiscoveredWriterData {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]DiscoveredWriterData, 0, len(t.writers))
	for _, d := range t.writers {
		out = append(out, d)
	}
	return out
}

// ReaderTable mirrors WriterTable for SEDP subscriptions.
type ReaderTable struct {
	mu      sync.Mutex
	readers map[types.Guid]DiscoveredReaderData

	OnDiscovered func(DiscoveredReaderData)
	OnRemoved    func(types.Guid)
}

func NewReaderTable() *ReaderTable {
	return &ReaderTable{readers: make(map[types.Guid]DiscoveredReaderData)}
}

func (t *ReaderTable) Add(d DiscoveredReaderData) {
	t.mu.Lock()
	t.readers[d.EndpointGuid] = d
	t.mu.Unlock()
	if t.OnDiscovered != nil {
		t.OnDiscovered(d)
	}
}

func (t *ReaderTable) Remove(guid types.Guid) {
	t.mu.Lock()
	delete(t.readers, guid)
	t.mu.Unlock()
	if t.OnRemoved != nil {
		t.OnRemoved(guid)
	}
}

func (t *ReaderTable) All() []DiscoveredReaderData {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]DiscoveredReaderData, 0, len(t.readers))
	for _, d := range t.readers {
		out = append(out, d)
	}
	return out
}

// TopicTable holds discovered SEDP topics (spec.md §6's DiscoveredTopicData).
type TopicTable struct {
	mu     sync.Mutex
	topics map[string]DiscoveredTopicData
}

func NewTopicTable() *TopicTable {
	return &TopicTable{topics: make(map[string]DiscoveredTopicData)}
}

func (t *TopicTable) Add(d DiscoveredTopicData) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.topics[d.TopicName] = d
}

func (t *TopicTable) Get(name string) (DiscoveredTopicData, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.topics[name]
	return d, ok
}
