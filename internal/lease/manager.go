package lease

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/kubelease/internal/clock"
	"github.com/edvin/kubelease/internal/model"
	"github.com/edvin/kubelease/internal/provider"
)

var (
	ErrUnknownCluster = errors.New("cluster not found")
	ErrOffLimits      = errors.New("cluster is off limits")
	ErrClusterGone    = errors.New("cluster is already gone")
)

// DeployResult is the answer to a deploy request. An admitted deploy is
// accepted and pending confirmation: the cluster is in the registry as
// Deploying but may not exist upstream yet.
type DeployResult struct {
	Outcome Outcome
	Cluster model.Cluster
}

// Accepted reports whether the deploy was admitted.
func (r DeployResult) Accepted() bool { return r.Outcome == Admit }

// Manager carries out lease operations against the registry and provider.
type Manager struct {
	logger     zerolog.Logger
	registry   *Registry
	provider   provider.Provider
	clock      clock.Clock
	limits     Limits
	defaults   model.SpecDefaults
	reconciler *Reconciler

	inflight sync.WaitGroup
}

// Options configures a Manager.
type Options struct {
	Limits            Limits
	Defaults          model.SpecDefaults
	ReconcileInterval time.Duration
}

func NewManager(logger zerolog.Logger, registry *Registry, prov provider.Provider, clk clock.Clock, opts Options) *Manager {
	m := &Manager{
		logger:   logger.With().Str("component", "lease-manager").Logger(),
		registry: registry,
		provider: prov,
		clock:    clk,
		limits:   opts.Limits,
		defaults: opts.Defaults,
	}
	m.reconciler = NewReconciler(logger, registry, prov, clk, opts.Defaults, opts.ReconcileInterval)
	m.reconciler.teardown = m.Teardown
	return m
}

func (m *Manager) Reconciler() *Reconciler { return m.reconciler }
func (m *Manager) Limits() Limits          { return m.limits }
func (m *Manager) Now() time.Time          { return m.clock.Now() }

// List returns every tracked cluster ordered by name.
func (m *Manager) List() []model.Cluster { return m.registry.All() }

// Wait blocks until in-flight provider calls started by the manager finish.
func (m *Manager) Wait() { m.inflight.Wait() }

// Deploy admits and optimistically registers a new cluster, then creates it
// upstream in the background.
func (m *Manager) Deploy(ctx context.Context, name string, in model.SpecInput) DeployResult {
	if !m.limits.Allowed(name) {
		m.logger.Warn().Str("cluster", name).Msg("refusing to deploy off-limits cluster")
		admissionTotal.WithLabelValues(OffLimits.String()).Inc()
		return DeployResult{Outcome: OffLimits}
	}

	spec := m.defaults.Resolve(in)
	var result DeployResult

	m.registry.apply(func(clusters map[string]model.Cluster) {
		if existing, ok := clusters[name]; ok && !existing.IsGone() {
			result = DeployResult{Outcome: NameTaken, Cluster: existing}
			return
		}
		result.Outcome = Evaluate(spec, countActive(clusters), m.limits.MaxClusters, m.limits.MaxNodes)
		if result.Outcome != Admit {
			return
		}
		result.Cluster = model.NewCluster(name, model.StatusDeploying, spec, m.clock.Now())
		clusters[name] = result.Cluster
	})

	admissionTotal.WithLabelValues(result.Outcome.String()).Inc()
	if !result.Accepted() {
		m.logger.Info().
			Str("cluster", name).
			Str("outcome", result.Outcome.String()).
			Msg("deploy rejected")
		return result
	}

	m.logger.Info().
		Str("cluster", name).
		Int("size", spec.Size).
		Int("life_hours", spec.Life).
		Str("region", spec.Region).
		Msg("deploying new cluster")

	c := result.Cluster
	m.goAsync(ctx, func(ctx context.Context) { m.create(ctx, c) })
	m.reconciler.Trigger()
	return result
}

// create issues the provider create call and feeds the outcome back into
// the registry.
func (m *Manager) create(ctx context.Context, c model.Cluster) {
	id, err := m.provider.CreateCluster(ctx, c.Name, c.Spec)
	if err != nil {
		providerFailures.WithLabelValues("create").Inc()
		m.logger.Error().Err(err).Str("cluster", c.Name).Msg("failed to create cluster")

		// Nothing exists upstream; free the quota slot.
		m.registry.apply(func(clusters map[string]model.Cluster) {
			cur, ok := clusters[c.Name]
			if ok && sameLease(cur, c) && cur.IsDeploying() && cur.UpstreamID == "" {
				delete(clusters, c.Name)
			}
		})
		return
	}

	var queued bool
	m.registry.Update(c.Name, func(cur *model.Cluster) {
		if !sameLease(*cur, c) || cur.UpstreamID != "" {
			return
		}
		cur.UpstreamID = id
		queued = cur.TeardownPending
	})
	m.logger.Info().Str("cluster", c.Name).Str("upstream_id", id).Msg("cluster created upstream")

	if queued {
		if err := m.Teardown(ctx, c.Name); err != nil {
			m.logger.Warn().Err(err).Str("cluster", c.Name).Msg("queued teardown failed")
		}
	}
}

// Renew extends the lease by hours, clamped to [1, model.MaxLeaseHours].
func (m *Manager) Renew(name string, hours int) (model.Cluster, error) {
	if !m.limits.Allowed(name) {
		return model.Cluster{}, ErrOffLimits
	}
	hours = model.ClampLeaseHours(hours)

	c, ok := m.registry.Update(name, func(c *model.Cluster) {
		c.ExpiresAt = c.ExpiresAt.Add(model.LeaseDuration(hours))
	})
	if !ok {
		m.logger.Warn().Str("cluster", name).Msg("cluster not found")
		return model.Cluster{}, ErrUnknownCluster
	}

	m.logger.Info().Str("cluster", name).Int("hours", hours).Time("expires_at", c.ExpiresAt).Msg("lease renewed")
	return c, nil
}

// Expire ends the lease now. The next sweep tears the cluster down.
func (m *Manager) Expire(name string) (model.Cluster, error) {
	if !m.limits.Allowed(name) {
		return model.Cluster{}, ErrOffLimits
	}

	now := m.clock.Now()
	c, ok := m.registry.Update(name, func(c *model.Cluster) {
		c.ExpiresAt = now
	})
	if !ok {
		m.logger.Warn().Str("cluster", name).Msg("cluster not found")
		return model.Cluster{}, ErrUnknownCluster
	}

	m.logger.Info().Str("cluster", name).Msg("lease expired")
	return c, nil
}

// Teardown marks the cluster Terminating and deletes it upstream in the
// background. Without an upstream id the teardown is queued until the
// provider confirms the cluster. A Gone cluster yields ErrClusterGone.
func (m *Manager) Teardown(ctx context.Context, name string) error {
	c, prev, started, err := m.beginTeardown(name)
	if err != nil || !started {
		return err
	}

	teardownsTotal.WithLabelValues("manual").Inc()
	m.goAsync(ctx, func(ctx context.Context) {
		m.deleteUpstream(ctx, c, prev)
	})
	m.reconciler.Trigger()
	return nil
}

// teardownNow is Teardown with the delete call awaited.
func (m *Manager) teardownNow(ctx context.Context, name string) error {
	c, prev, started, err := m.beginTeardown(name)
	if err != nil || !started {
		return err
	}

	teardownsTotal.WithLabelValues("sweep").Inc()
	return m.deleteUpstream(ctx, c, prev)
}

func (m *Manager) beginTeardown(name string) (c model.Cluster, prev model.Status, started bool, err error) {
	if !m.limits.Allowed(name) {
		return c, prev, false, ErrOffLimits
	}

	var gone bool
	c, ok := m.registry.Update(name, func(c *model.Cluster) {
		if c.IsGone() {
			gone = true
			return
		}
		if c.UpstreamID == "" {
			c.TeardownPending = true
			return
		}
		prev = c.Status
		c.Status = model.StatusTerminating
		c.TeardownPending = false
		started = true
	})
	if !ok {
		m.logger.Warn().Str("cluster", name).Msg("cluster not found")
		return c, prev, false, ErrUnknownCluster
	}
	if gone {
		return c, prev, false, ErrClusterGone
	}

	switch {
	case started:
		m.logger.Info().Str("cluster", name).Str("upstream_id", c.UpstreamID).Msg("tearing down cluster")
	case c.TeardownPending:
		m.logger.Info().Str("cluster", name).Msg("cluster has no upstream id yet; teardown queued")
	}
	return c, prev, started, nil
}

// deleteUpstream issues the delete call. On failure the previous status is
// restored so the next sweep retries.
func (m *Manager) deleteUpstream(ctx context.Context, c model.Cluster, prev model.Status) error {
	err := m.provider.DeleteCluster(ctx, c.UpstreamID)
	if err == nil || provider.IsNotFound(err) {
		m.registry.Update(c.Name, func(cur *model.Cluster) {
			if cur.UpstreamID == c.UpstreamID {
				cur.LastError = ""
			}
		})
		return nil
	}

	providerFailures.WithLabelValues("delete").Inc()
	m.logger.Error().Err(err).Str("cluster", c.Name).Msg("failed to delete cluster")
	m.registry.Update(c.Name, func(cur *model.Cluster) {
		if cur.UpstreamID != c.UpstreamID {
			return
		}
		cur.LastError = err.Error()
		if cur.IsTerminating() {
			cur.Status = prev
		}
	})
	return err
}

// Access fetches the cluster's kubeconfig. It reports false when the
// cluster is unknown, not provisioned yet, or the provider call fails.
func (m *Manager) Access(ctx context.Context, name string) (string, bool) {
	if !m.limits.Allowed(name) {
		m.logger.Warn().Str("cluster", name).Msg("refusing access to off-limits cluster")
		return "", false
	}

	c, ok := m.registry.Get(name)
	if !ok {
		m.logger.Warn().Str("cluster", name).Msg("cluster not found")
		return "", false
	}
	if c.UpstreamID == "" {
		m.logger.Info().Str("cluster", name).Msg("cluster still provisioning; no kubeconfig yet")
		return "", false
	}

	encoded, err := m.provider.GetKubeconfig(ctx, c.UpstreamID)
	if err != nil {
		providerFailures.WithLabelValues("kubeconfig").Inc()
		m.logger.Error().Err(err).Str("cluster", name).Msg("failed to retrieve kubeconfig")
		return "", false
	}

	kubeconfig, err := provider.DecodeKubeconfig(encoded)
	if err != nil {
		m.logger.Error().Err(err).Str("cluster", name).Msg("invalid kubeconfig from provider")
		return "", false
	}
	return kubeconfig, true
}

// goAsync runs fn detached from ctx's cancellation so a finished chat
// request does not abort the provider call.
func (m *Manager) goAsync(ctx context.Context, fn func(ctx context.Context)) {
	ctx = context.WithoutCancel(ctx)
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		fn(ctx)
	}()
}

// sameLease reports whether a and b are the same lease record, not a later
// redeploy under the same name.
func sameLease(a, b model.Cluster) bool {
	return a.CreatedAt.Equal(b.CreatedAt)
}
