package lease

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/kubelease/internal/clock"
	"github.com/edvin/kubelease/internal/model"
	"github.com/edvin/kubelease/internal/provider"
)

// GracePeriod is how long a cluster stays Gone before it is dropped, giving
// an eventually-consistent delete time to settle.
const GracePeriod = 15 * time.Minute

const nodePoolConcurrency = 8

// upstreamStatuses maps provider-reported states onto the lifecycle. LKE
// only reports "ready" and "not_ready"; anything without an entry here
// (including "not_ready") keeps the previous status, which is Deploying for
// a newly discovered cluster.
var upstreamStatuses = map[string]model.Status{
	"ready": model.StatusLive,
}

func translateStatus(upstream string, prev model.Status) model.Status {
	if prev == model.StatusTerminating || prev == model.StatusGone {
		return prev
	}
	if s, ok := upstreamStatuses[upstream]; ok {
		return s
	}
	return prev
}

// Reconciler keeps the registry in line with the provider's listing.
type Reconciler struct {
	logger   zerolog.Logger
	registry *Registry
	provider provider.Provider
	clock    clock.Clock
	defaults model.SpecDefaults
	interval time.Duration

	// mu serializes passes; a caller arriving mid-pass waits.
	mu      sync.Mutex
	trigger chan struct{}

	// teardown runs for clusters whose queued teardown can now proceed.
	teardown func(ctx context.Context, name string) error

	lastSync atomic.Pointer[time.Time]
}

func NewReconciler(
	logger zerolog.Logger,
	registry *Registry,
	prov provider.Provider,
	clk clock.Clock,
	defaults model.SpecDefaults,
	interval time.Duration,
) *Reconciler {
	return &Reconciler{
		logger:   logger.With().Str("component", "reconciler").Logger(),
		registry: registry,
		provider: prov,
		clock:    clk,
		defaults: defaults,
		interval: interval,
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger asks Run for a pass without waiting for it. Requests that arrive
// while one is already queued are coalesced.
func (r *Reconciler) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// LastSync reports when the registry was last rebuilt from a successful
// listing. It is false until the first pass succeeds.
func (r *Reconciler) LastSync() (time.Time, bool) {
	if t := r.lastSync.Load(); t != nil {
		return *t, true
	}
	return time.Time{}, false
}

// Reconcile runs one mark/diff/sweep pass. Provider I/O happens before the
// registry is locked; the three phases are then applied in one critical
// section so concurrent commands never observe a half-marked registry.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	r.logger.Debug().Msg("refreshing list of clusters from upstream")

	upstream, err := r.provider.ListClusters(ctx)
	if err != nil {
		providerFailures.WithLabelValues("list").Inc()
		reconcileTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("reconcile: %w", err)
	}

	discovered := r.discover(ctx, r.unknown(upstream, nil))

	now := r.clock.Now()
	var pending []string
	var counts map[model.Status]int

	// An entry can be removed between discover and the critical section
	// (failed create cleanup). Such labels are fetched and the pass retried
	// once; a second miss falls back to the default spec.
	for attempt := 0; ; attempt++ {
		var missed []model.UpstreamCluster
		r.registry.apply(func(clusters map[string]model.Cluster) {
			if attempt == 0 {
				missed = r.unknown(upstream, func(label string) bool {
					_, known := clusters[label]
					_, fetched := discovered[label]
					return known || fetched
				})
				if len(missed) > 0 {
					return
				}
			}
			pending, counts = r.pass(clusters, upstream, discovered, now)
		})
		if len(missed) == 0 {
			break
		}
		for label, spec := range r.discover(ctx, missed) {
			discovered[label] = spec
		}
	}

	r.lastSync.Store(&now)
	recordStatusCounts(counts)
	lastReconcile.Set(float64(now.Unix()))
	reconcileDuration.Observe(time.Since(start).Seconds())
	reconcileTotal.WithLabelValues("success").Inc()
	r.logger.Debug().
		Int("upstream", len(upstream)).
		Int("discovered", len(discovered)).
		Dur("duration", time.Since(start)).
		Msg("reconciliation completed")

	for _, name := range pending {
		if r.teardown == nil {
			break
		}
		if err := r.teardown(ctx, name); err != nil {
			r.logger.Warn().Err(err).Str("cluster", name).Msg("queued teardown failed")
		}
	}

	return nil
}

// pass runs mark, diff and sweep over clusters. The caller holds the
// registry lock. It returns the names whose queued teardown can now run and
// the resulting status counts.
func (r *Reconciler) pass(
	clusters map[string]model.Cluster,
	upstream []model.UpstreamCluster,
	discovered map[string]model.ClusterSpec,
	now time.Time,
) ([]string, map[model.Status]int) {
	var pending []string

	// Mark.
	for name, c := range clusters {
		c.Seen = false
		clusters[name] = c
	}

	// Diff.
	for _, uc := range upstream {
		c, ok := clusters[uc.Label]
		if !ok {
			spec, fetched := discovered[uc.Label]
			if !fetched {
				spec = r.defaults.Default()
			}
			c = model.NewCluster(uc.Label, translateStatus(uc.Status, model.StatusDeploying), spec, now)
			r.logger.Info().
				Str("cluster", uc.Label).
				Str("upstream_id", uc.ID).
				Int("size", spec.Size).
				Str("version", spec.Version).
				Str("instance", spec.Instance).
				Str("upstream_status", uc.Status).
				Msg("found cluster upstream")
		}

		c.UpstreamID = uc.ID
		c.Seen = true
		c.Status = translateStatus(uc.Status, c.Status)
		if c.TeardownPending && !c.IsTerminating() && !c.IsGone() {
			pending = append(pending, c.Name)
		}
		clusters[uc.Label] = c
	}

	// Sweep.
	for name, c := range clusters {
		if c.Seen {
			continue
		}
		switch {
		case c.IsLive() || c.IsTerminating():
			deleteAfter := now.Add(GracePeriod)
			c.Status = model.StatusGone
			c.DeleteAfter = &deleteAfter
			clusters[name] = c
			r.logger.Info().Str("cluster", name).Msg("cluster not found upstream; marking gone")
		case c.IsGone() && c.DeleteAfter != nil && !c.DeleteAfter.After(now):
			delete(clusters, name)
			r.logger.Info().Str("cluster", name).Msg("cluster has been gone long enough; dropping it")
		}
	}

	return pending, countByStatus(clusters)
}

// unknown returns the upstream clusters for which known reports false. A nil
// known consults the registry.
func (r *Reconciler) unknown(upstream []model.UpstreamCluster, known func(label string) bool) []model.UpstreamCluster {
	if known == nil {
		known = func(label string) bool {
			_, ok := r.registry.Get(label)
			return ok
		}
	}
	var out []model.UpstreamCluster
	for _, uc := range upstream {
		if !known(uc.Label) {
			out = append(out, uc)
		}
	}
	return out
}

// discover fetches node pools for the given clusters. Results are keyed by
// label, so arrival order does not matter.
func (r *Reconciler) discover(ctx context.Context, upstream []model.UpstreamCluster) map[string]model.ClusterSpec {
	var (
		mu    sync.Mutex
		specs = make(map[string]model.ClusterSpec)
		g     errgroup.Group
	)
	g.SetLimit(nodePoolConcurrency)

	for _, uc := range upstream {
		uc := uc
		g.Go(func() error {
			spec := r.specFromUpstream(ctx, uc)
			mu.Lock()
			specs[uc.Label] = spec
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	return specs
}

// specFromUpstream rebuilds a spec from a single node pool, falling back to
// the default spec when the pools are unavailable or ambiguous.
func (r *Reconciler) specFromUpstream(ctx context.Context, uc model.UpstreamCluster) model.ClusterSpec {
	pools, err := r.provider.GetNodePools(ctx, uc.ID)
	if err != nil {
		providerFailures.WithLabelValues("node_pools").Inc()
		r.logger.Warn().Err(err).Str("cluster", uc.Label).Msg("failed to fetch node pools; using default spec")
		return r.defaults.Default()
	}
	if len(pools) != 1 {
		return r.defaults.Default()
	}

	spec := r.defaults.Default()
	spec.Region = uc.Region
	spec.Version = uc.Version
	spec.Instance = pools[0].Type
	spec.Size = max(pools[0].Count, 1)
	return spec
}

// Run reconciles once at startup, then on every interval tick and every
// Trigger until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	r.logger.Info().Dur("interval", r.interval).Msg("starting reconcile loop")
	r.runOnce(ctx)

	var tick <-chan time.Time
	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("reconcile loop stopped")
			return
		case <-tick:
			r.runOnce(ctx)
		case <-r.trigger:
			r.runOnce(ctx)
		}
	}
}

func (r *Reconciler) runOnce(ctx context.Context) {
	if err := r.Reconcile(ctx); err != nil {
		r.logger.Error().Err(err).Msg("reconciliation failed")
	}
}
