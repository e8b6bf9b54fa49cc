package lease

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/kubelease/internal/model"
)

func TestSweep_ExpireThenSweepTearsDown(t *testing.T) {
	env := newTestEnv(DefaultLimits)
	id := env.provider.add("x", "ready")
	c := model.NewCluster("x", model.StatusLive, model.ClusterSpec{Size: 1, Life: 8}, t0)
	c.UpstreamID = id
	env.registry.Put(c)
	ctx := context.Background()

	require.NoError(t, env.sweeper.Sweep(ctx))
	assert.Empty(t, env.provider.deleteCalls(), "unexpired lease must survive a sweep")

	_, err := env.manager.Expire("x")
	require.NoError(t, err)
	require.NoError(t, env.sweeper.Sweep(ctx))

	assert.Equal(t, []string{id}, env.provider.deleteCalls())
	assert.Equal(t, model.StatusTerminating, env.get("x").Status)
}

func TestSweep_SkipsTerminatingGoneAndOffLimits(t *testing.T) {
	env := newTestEnv(Limits{MaxClusters: 5, MaxNodes: 3, OffLimits: []string{"prod"}})
	past := t0.Add(-time.Hour)
	for _, c := range []model.Cluster{
		{Name: "terminating", UpstreamID: env.provider.add("terminating", "ready"), Status: model.StatusTerminating, ExpiresAt: past},
		{Name: "prod", UpstreamID: env.provider.add("prod", "ready"), Status: model.StatusLive, ExpiresAt: past},
	} {
		env.registry.Put(c)
	}
	deleteAfter := t0.Add(GracePeriod)
	env.registry.Put(model.Cluster{Name: "gone", UpstreamID: "77", Status: model.StatusGone, ExpiresAt: past, DeleteAfter: &deleteAfter})

	require.NoError(t, env.sweeper.Sweep(context.Background()))

	assert.Empty(t, env.provider.deleteCalls())
	assert.Equal(t, model.StatusLive, env.get("prod").Status)
}

func TestSweep_FailureDoesNotBlockOthers(t *testing.T) {
	env := newTestEnv(DefaultLimits)
	past := t0.Add(-time.Minute)
	var ids []string
	for _, name := range []string{"a", "b", "c"} {
		id := env.provider.add(name, "ready")
		ids = append(ids, id)
		env.registry.Put(model.Cluster{Name: name, UpstreamID: id, Status: model.StatusLive, ExpiresAt: past})
	}
	env.provider.deleteErr[ids[1]] = errors.New("rate limited")

	require.NoError(t, env.sweeper.Sweep(context.Background()))

	calls := env.provider.deleteCalls()
	sort.Strings(calls)
	assert.Equal(t, ids, calls)
	assert.Equal(t, model.StatusTerminating, env.get("a").Status)
	assert.Equal(t, model.StatusLive, env.get("b").Status, "failed delete is retried on the next sweep")
	assert.Equal(t, model.StatusTerminating, env.get("c").Status)

	delete(env.provider.deleteErr, ids[1])
	require.NoError(t, env.sweeper.Sweep(context.Background()))
	assert.Equal(t, model.StatusTerminating, env.get("b").Status)
}

func TestSweep_ExpiredDeployingIsQueued(t *testing.T) {
	env := newTestEnv(DefaultLimits)
	env.registry.Put(model.Cluster{Name: "slow", Status: model.StatusDeploying, ExpiresAt: t0.Add(-time.Minute)})

	require.NoError(t, env.sweeper.Sweep(context.Background()))

	c := env.get("slow")
	assert.Equal(t, model.StatusDeploying, c.Status)
	assert.True(t, c.TeardownPending)
}

func TestSweep_ReconcileFailureIsReturned(t *testing.T) {
	env := newTestEnv(DefaultLimits)
	env.provider.listErr = errors.New("upstream down")

	err := env.sweeper.Sweep(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream down")
}

func TestSweeperRun_DisabledWithZeroInterval(t *testing.T) {
	env := newTestEnv(DefaultLimits)

	done := make(chan struct{})
	go func() {
		NewSweeper(zerolog.Nop(), env.manager, 0).Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run with a zero interval should return immediately")
	}
	assert.Equal(t, 0, env.provider.listCalls)
}

func TestSweeperRun_SweepsImmediately(t *testing.T) {
	env := newTestEnv(DefaultLimits)
	id := env.provider.add("x", "ready")
	env.registry.Put(model.Cluster{Name: "x", UpstreamID: id, Status: model.StatusLive, ExpiresAt: t0})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go NewSweeper(zerolog.Nop(), env.manager, time.Hour).Run(ctx)

	require.Eventually(t, func() bool {
		return len(env.provider.deleteCalls()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
