package discovery

import (
	"sync"
	"time"

	"github.com/nimbora/rtpscore/internal/types"
)

// ParticipantLease tracks one remote participant's proxy and its lease
// expiry, per spec.md §4.9.
type ParticipantLease struct {
	Proxy    ParticipantProxy
	ExpireAt time.Time
}

// ParticipantTable holds known remote participants, keyed by GUID prefix,
// with lease expiry and unmatch notification.
type ParticipantTable struct {
	mu   sync.Mutex
	byPrefix map[types.GuidPrefix]*ParticipantLease

	// OnAdd is invoked (outside the lock) when a new or renewed
	// participant proxy is admitted; OnExpire when its lease lapses.
	OnAdd    func(ParticipantProxy)
	OnExpire func(types.GuidPrefix)
}

func NewParticipantTable() *ParticipantTable {
	return &ParticipantTable{byPrefix: make(map[types.GuidPrefix]*ParticipantLease)}
}

// OnSPDPReceived admits a remote ParticipantProxy if domainId/domainTag
// match the local participant's, renewing its lease.
func (t *ParticipantTable) OnSPDPReceived(pp ParticipantProxy, localDomainID uint32, localDomainTag string, now time.Time) {
	if pp.DomainId != localDomainID || pp.DomainTag != localDomainTag {
		return
	}
	t.mu.Lock()
	t.byPrefix[pp.GuidPrefix] = &ParticipantLease{Proxy: pp, ExpireAt: now.Add(pp.LeaseDuration)}
	t.mu.Unlock()
	if t.OnAdd != nil {
		t.OnAdd(pp)
	}
}

// ExpireLeases removes any participant whose lease has lapsed as of now,
// invoking OnExpire for each.
func (t *ParticipantTable) ExpireLeases(now time.Time) {
	t.mu.Lock()
	var expired []types.GuidPrefix
	for prefix, lease := range t.byPrefix {
		if now.After(lease.ExpireAt) {
			expired = append(expired, prefix)
			delete(t.byPrefix, prefix)
		}
	}
	t.mu.Unlock()
	for _, prefix := range expired {
		if t.OnExpire != nil {
			t.OnExpire(prefix)
		}
	}
}

func (t *ParticipantTable) Get(prefix types.GuidPrefix) (ParticipantProxy, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	lease, ok := t.byPrefix[prefix]
	if !ok {
		return ParticipantProxy{}, false
	}
	return lease.Proxy, true
}

func (t *ParticipantTable) All() []ParticipantProxy {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ParticipantProxy, 0, len(t.byPrefix))
	for _, lease := range t.byPrefix {
		out = append(out, lease.Proxy)
	}
	return out
}
