package lease

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/kubelease/internal/clock"
	"github.com/edvin/kubelease/internal/model"
	"github.com/edvin/kubelease/internal/provider"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

const testKubeconfig = "apiVersion: v1\nkind: Config\nclusters:\n- name: lke\n  cluster:\n    server: https://lke.example:443\n"

// fakeProvider is an in-memory provider. Deleted clusters keep showing in
// the listing until settle is called, like the real eventually-consistent
// API.
type fakeProvider struct {
	mu sync.Mutex

	nextID   int
	order    []string
	clusters map[string]model.UpstreamCluster
	pools    map[string][]model.NodePool
	deleted  map[string]bool

	listErr   error
	createErr error
	poolsErr  error
	deleteErr map[string]error

	// onPools, when set, runs at the start of every GetNodePools call.
	onPools func(id string)

	// createGate, when set, holds CreateCluster until closed.
	createGate chan struct{}

	creates    int
	deletes    []string
	poolCalls  int
	listCalls  int
	kubeconfig string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		nextID:     1000,
		clusters:   make(map[string]model.UpstreamCluster),
		pools:      make(map[string][]model.NodePool),
		deleted:    make(map[string]bool),
		deleteErr:  make(map[string]error),
		kubeconfig: base64.StdEncoding.EncodeToString([]byte(testKubeconfig)),
	}
}

// add registers an upstream cluster directly and returns its id.
func (f *fakeProvider) add(label, status string, pools ...model.NodePool) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := strconv.Itoa(f.nextID)
	f.order = append(f.order, id)
	f.clusters[id] = model.UpstreamCluster{ID: id, Label: label, Region: "us-east", Version: "1.22", Status: status}
	f.pools[id] = pools
	return id
}

func (f *fakeProvider) setStatus(label, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, c := range f.clusters {
		if c.Label == label {
			c.Status = status
			f.clusters[id] = c
		}
	}
}

// settle drops deleted clusters from the listing.
func (f *fakeProvider) settle() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id := range f.deleted {
		delete(f.clusters, id)
	}
}

// vanish removes a cluster from the listing immediately.
func (f *fakeProvider) vanish(label string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, c := range f.clusters {
		if c.Label == label {
			delete(f.clusters, id)
		}
	}
}

func (f *fakeProvider) ListClusters(ctx context.Context) ([]model.UpstreamCluster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.UpstreamCluster
	for _, id := range f.order {
		if c, ok := f.clusters[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeProvider) GetNodePools(ctx context.Context, id string) ([]model.NodePool, error) {
	if f.onPools != nil {
		f.onPools(id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.poolCalls++
	if f.poolsErr != nil {
		return nil, f.poolsErr
	}
	return f.pools[id], nil
}

func (f *fakeProvider) CreateCluster(ctx context.Context, name string, spec model.ClusterSpec) (string, error) {
	if f.createGate != nil {
		<-f.createGate
	}
	f.mu.Lock()
	f.creates++
	err := f.createErr
	f.mu.Unlock()
	if err != nil {
		return "", err
	}
	return f.add(name, "not_ready", model.NodePool{ID: "p1", Type: spec.Instance, Count: spec.Size}), nil
}

func (f *fakeProvider) DeleteCluster(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, id)
	if err := f.deleteErr[id]; err != nil {
		return err
	}
	if _, ok := f.clusters[id]; !ok {
		return &provider.APIError{Method: http.MethodDelete, Path: "/lke/clusters/" + id, StatusCode: http.StatusNotFound}
	}
	f.deleted[id] = true
	return nil
}

func (f *fakeProvider) GetKubeconfig(ctx context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.clusters[id]; !ok {
		return "", errors.New("kubeconfig not available")
	}
	return f.kubeconfig, nil
}

func (f *fakeProvider) deleteCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deletes...)
}

type testEnv struct {
	manager  *Manager
	registry *Registry
	provider *fakeProvider
	clock    *clock.FakeClock
	sweeper  *Sweeper
}

func newTestEnv(limits Limits) *testEnv {
	fp := newFakeProvider()
	clk := clock.Fake(t0)
	reg := NewRegistry()
	m := NewManager(zerolog.Nop(), reg, fp, clk, Options{
		Limits:   limits,
		Defaults: model.DefaultSpecDefaults,
	})
	return &testEnv{
		manager:  m,
		registry: reg,
		provider: fp,
		clock:    clk,
		sweeper:  NewSweeper(zerolog.Nop(), m, 0),
	}
}

func (e *testEnv) get(name string) model.Cluster {
	c, _ := e.registry.Get(name)
	return c
}
