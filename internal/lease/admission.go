package lease

import (
	"slices"

	"github.com/edvin/kubelease/internal/model"
)

// Outcome classifies a deploy request.
type Outcome int

const (
	Admit Outcome = iota
	TooManyClusters
	ClusterTooLarge
	OffLimits
	NameTaken
)

func (o Outcome) String() string {
	switch o {
	case Admit:
		return "admit"
	case TooManyClusters:
		return "too-many-clusters-already"
	case ClusterTooLarge:
		return "cluster-too-large"
	case OffLimits:
		return "off-limits"
	case NameTaken:
		return "name-taken"
	default:
		return "unknown"
	}
}

// Evaluate checks a proposed deployment against the quotas. active is the
// number of clusters that are not Gone. Callers must evaluate again right
// before committing; no slot is reserved.
func Evaluate(spec model.ClusterSpec, active, maxClusters, maxNodes int) Outcome {
	if active >= maxClusters {
		return TooManyClusters
	}
	if spec.Size > maxNodes {
		return ClusterTooLarge
	}
	return Admit
}

// Limits is the admission policy.
type Limits struct {
	MaxClusters int
	MaxNodes    int
	// OffLimits names clusters the bot must never touch.
	OffLimits []string
}

// DefaultLimits matches LKE_MAX_CLUSTERS and LKE_MAX_NODES defaults.
var DefaultLimits = Limits{MaxClusters: 5, MaxNodes: 3}

// Allowed reports whether the bot may act on the named cluster.
func (l Limits) Allowed(name string) bool {
	return !slices.Contains(l.OffLimits, name)
}
