package model

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// MaxLeaseHours caps a single lease grant (deploy life or one renewal).
const MaxLeaseHours = 24 * 365

// ClusterSpec is the desired shape of a cluster, snapshotted at deploy time.
type ClusterSpec struct {
	Region   string `json:"region"`
	Instance string `json:"instance"`
	Size     int    `json:"size"`
	Version  string `json:"version"`
	Life     int    `json:"life_hours"`
}

// SpecInput is an unvalidated spec as it arrives from chat. Empty fields
// fall back to the defaults.
type SpecInput struct {
	Region   string
	Instance string
	Size     string
	Version  string
	Life     string
}

// SpecDefaults holds the configured fallback values for SpecInput.
type SpecDefaults struct {
	Region   string
	Instance string
	Size     string
	Version  string
	Life     string
}

// DefaultSpecDefaults mirrors the LKE_DEFAULT_* environment defaults.
var DefaultSpecDefaults = SpecDefaults{
	Region:   "us-east",
	Instance: "g6-standard-2",
	Size:     "1",
	Version:  "1.22",
	Life:     "8",
}

// Resolve fills empty fields from d and clamps size and life to at least 1.
// Size has no upper clamp; admission enforces the node limit. Life is capped
// at MaxLeaseHours.
func (d SpecDefaults) Resolve(in SpecInput) ClusterSpec {
	return ClusterSpec{
		Region:   orDefault(in.Region, d.Region),
		Instance: orDefault(in.Instance, d.Instance),
		Version:  strings.TrimPrefix(orDefault(in.Version, d.Version), "v"),
		Size:     AtLeastOne(orDefault(in.Size, d.Size)),
		Life:     ClampLeaseHours(AtLeastOne(strings.TrimSuffix(orDefault(in.Life, d.Life), "h"))),
	}
}

// Default is the ClusterSpec used when nothing more specific is known.
func (d SpecDefaults) Default() ClusterSpec {
	return d.Resolve(SpecInput{})
}

// AtLeastOne parses s as an integer, returning 1 when it is unparsable or
// below 1. Positive values too large for an int saturate to math.MaxInt.
func AtLeastOne(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if errors.Is(err, strconv.ErrRange) && n > 0 {
		return math.MaxInt
	}
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// ClampLeaseHours bounds hours to [1, MaxLeaseHours].
func ClampLeaseHours(hours int) int {
	return min(max(hours, 1), MaxLeaseHours)
}

// LeaseDuration converts lease hours to a duration after clamping, so the
// multiplication cannot overflow.
func LeaseDuration(hours int) time.Duration {
	return time.Duration(ClampLeaseHours(hours)) * time.Hour
}

func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
