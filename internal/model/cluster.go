package model

import (
	"fmt"
	"math"
	"time"
)

// Status is the lifecycle state of a leased cluster.
type Status string

const (
	StatusDeploying   Status = "deploying"
	StatusLive        Status = "live"
	StatusTerminating Status = "terminating"
	StatusGone        Status = "gone"
)

// Cluster is one lease. The registry stores it by value; callers get copies.
type Cluster struct {
	Name       string      `json:"name"`
	UpstreamID string      `json:"upstream_id,omitempty"`
	Spec       ClusterSpec `json:"spec"`
	Status     Status      `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	ExpiresAt  time.Time   `json:"expires_at"`

	// DeleteAfter is set when the cluster went missing upstream. The entry is
	// dropped from the registry once it passes.
	DeleteAfter *time.Time `json:"delete_after,omitempty"`

	// TeardownPending records a teardown requested before the provider
	// assigned an id.
	TeardownPending bool   `json:"teardown_pending,omitempty"`
	LastError       string `json:"last_error,omitempty"`

	// Seen is only meaningful during a reconcile pass.
	Seen bool `json:"-"`
}

// NewCluster starts a lease at now that runs for spec.Life hours, capped at
// MaxLeaseHours.
func NewCluster(name string, status Status, spec ClusterSpec, now time.Time) Cluster {
	return Cluster{
		Name:      name,
		Spec:      spec,
		Status:    status,
		CreatedAt: now,
		ExpiresAt: now.Add(LeaseDuration(spec.Life)),
	}
}

func (c Cluster) IsDeploying() bool   { return c.Status == StatusDeploying }
func (c Cluster) IsLive() bool        { return c.Status == StatusLive }
func (c Cluster) IsTerminating() bool { return c.Status == StatusTerminating }
func (c Cluster) IsGone() bool        { return c.Status == StatusGone }

// Expired reports whether the lease has run out at now.
func (c Cluster) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

// HoursLeft is the remaining lease rounded to the nearest hour.
func (c Cluster) HoursLeft(now time.Time) int {
	return int(math.Round(c.ExpiresAt.Sub(now).Hours()))
}

// Describe renders the cluster for a chat listing.
func (c Cluster) Describe(now time.Time) string {
	switch c.Status {
	case StatusGone:
		return fmt.Sprintf("%s _[gone]_", c.Name)
	case StatusTerminating:
		return fmt.Sprintf("%s _[terminating]_", c.Name)
	case StatusDeploying:
		return fmt.Sprintf("%s _[deploying]_", c.Name)
	}

	left := "EXPIRED"
	if !c.Expired(now) {
		left = fmt.Sprintf("%dh left", c.HoursLeft(now))
	}
	return fmt.Sprintf("%s [%d-node] _%s_", c.Name, c.Spec.Size, left)
}
