// Package qos implements the QoS policy bundle used by endpoints and
// discovery matching: reliability, durability, history, resource limits
// and the compatibility rules between an offered (writer) and requested
// (reader) policy set.
package qos

import (
	"fmt"
	"time"
)

type ReliabilityKind int

const (
	BestEffort ReliabilityKind = iota
	Reliable
)

type DurabilityKind int

const (
	Volatile DurabilityKind = iota
	TransientLocal
	Transient
	Persistent
)

type HistoryKind int

const (
	KeepLast HistoryKind = iota
	KeepAll
)

type OwnershipKind int

const (
	Shared OwnershipKind = iota
	Exclusive
)

type DestinationOrderKind int

const (
	ByReceptionTimestamp DestinationOrderKind = iota
	BySourceTimestamp
)

type LivelinessKind int

const (
	Automatic LivelinessKind = iota
	ManualByParticipant
	ManualByTopic
)

// LengthUnlimited marks a resource-limit field as having no finite cap.
const LengthUnlimited = -1

type Reliability struct {
	Kind              ReliabilityKind
	MaxBlockingTime   time.Duration
}

type Durability struct {
	Kind DurabilityKind
}

type History struct {
	Kind  HistoryKind
	Depth int // meaningful only for KeepLast
}

type ResourceLimits struct {
	MaxSamples             int
	MaxInstances           int
	MaxSamplesPerInstance  int
}

type Deadline struct{ Period time.Duration }
type LatencyBudget struct{ Duration time.Duration }
type Liveliness struct {
	Kind          LivelinessKind
	LeaseDuration time.Duration
}
type DestinationOrder struct{ Kind DestinationOrderKind }
type Ownership struct{ Kind OwnershipKind }
type Lifespan struct{ Duration time.Duration }

type PresentationScope int

const (
	InstanceScope PresentationScope = iota
	TopicScope
	GroupScope
)

type Presentation struct {
	AccessScope     PresentationScope
	CoherentAccess  bool
	OrderedAccess   bool
}

// Policies is the full QoS bundle attached to an endpoint or discovered
// endpoint proxy.
type Policies struct {
	Reliability      Reliability
	Durability       Durability
	History          History
	ResourceLimits   ResourceLimits
	Deadline         Deadline
	LatencyBudget    LatencyBudget
	Liveliness       Liveliness
	DestinationOrder DestinationOrder
	Ownership        Ownership
	Lifespan         Lifespan
	Presentation     Presentation
}

// Default returns the RTPS default policy bundle: best-effort, volatile,
// keep-last(1), unlimited resources.
func Default() Policies {
	return Policies{
		Reliability:    Reliability{Kind: BestEffort},
		Durability:     Durability{Kind: Volatile},
		History:        History{Kind: KeepLast, Depth: 1},
		ResourceLimits: ResourceLimits{MaxSamples: LengthUnlimited, MaxInstances: LengthUnlimited, MaxSamplesPerInstance: LengthUnlimited},
		Liveliness:     Liveliness{Kind: Automatic},
	}
}

// Validate reports QoS inconsistencies, per spec.md §3: a finite
// max_samples_per_instance requires max_samples >= max_samples_per_instance.
func (p Policies) Validate() error {
	rl := p.ResourceLimits
	if rl.MaxSamplesPerInstance != LengthUnlimited && rl.MaxSamples != LengthUnlimited {
		if rl.MaxSamples < rl.MaxSamplesPerInstance {
			return fmt.Errorf("inconsistent QoS: max_samples (%d) < max_samples_per_instance (%d)", rl.MaxSamples, rl.MaxSamplesPerInstance)
		}
	}
	if p.History.Kind == KeepLast && p.History.Depth < 1 {
		return fmt.Errorf("inconsistent QoS: KEEP_LAST depth must be >= 1, got %d", p.History.Depth)
	}
	return nil
}

// Compatible checks offered (writer) vs requested (reader) QoS per
// spec.md §4.9: reliability, durability, deadline, liveliness,
// destination order, presentation, ownership. Returns an explanatory
// reason on incompatibility.
func Compatible(offered, requested Policies) (ok bool, reason string) {
	if requested.Reliability.Kind == Reliable && offered.Reliability.Kind == BestEffort {
		return false, "reader requires RELIABLE but writer offers BEST_EFFORT"
	}
	if int(requested.Durability.Kind) > int(offered.Durability.Kind) {
		return false, "reader requests stronger durability than writer offers"
	}
	if requested.Deadline.Period != 0 && (offered.Deadline.Period == 0 || offered.Deadline.Period > requested.Deadline.Period) {
		return false, "writer deadline period does not satisfy reader's requested deadline"
	}
	if requested.Liveliness.Kind != offered.Liveliness.Kind {
		return false, "liveliness kind mismatch"
	}
	if requested.Liveliness.LeaseDuration != 0 && offered.Liveliness.LeaseDuration > requested.Liveliness.LeaseDuration {
		return false, "writer liveliness lease duration does not satisfy reader's requested lease"
	}
	if requested.DestinationOrder.Kind == BySourceTimestamp && offered.DestinationOrder.Kind == ByReceptionTimestamp {
		return false, "reader requires BY_SOURCE_TIMESTAMP but writer offers BY_RECEPTION_TIMESTAMP"
	}
	if requested.Presentation.AccessScope > offered.Presentation.AccessScope {
		return false, "reader requests wider presentation access scope than writer offers"
	}
	if requested.Presentation.CoherentAccess && !offered.Presentation.CoherentAccess {
		return false, "reader requires coherent access, writer does not offer it"
	}
	if requested.Ownership.Kind != offered.Ownership.Kind {
		return false, "ownership kind mismatch"
	}
	return true, ""
}
