package lease

import (
	"sort"
	"sync"

	"github.com/edvin/kubelease/internal/model"
)

// Registry is the in-memory name→cluster store. Records are copied in and
// out, so every write replaces a whole record under the lock.
type Registry struct {
	mu       sync.RWMutex
	clusters map[string]model.Cluster
}

func NewRegistry() *Registry {
	return &Registry{clusters: make(map[string]model.Cluster)}
}

func (r *Registry) Get(name string) (model.Cluster, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clusters[name]
	return c, ok
}

func (r *Registry) Put(c model.Cluster) {
	r.mu.Lock()
	r.clusters[c.Name] = c
	r.mu.Unlock()
}

func (r *Registry) Remove(name string) {
	r.mu.Lock()
	delete(r.clusters, name)
	r.mu.Unlock()
}

// All returns a snapshot of every cluster, ordered by name.
func (r *Registry) All() []model.Cluster {
	r.mu.RLock()
	out := make([]model.Cluster, 0, len(r.clusters))
	for _, c := range r.clusters {
		out = append(out, c)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Active counts clusters that are not Gone.
func (r *Registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return countActive(r.clusters)
}

// Update applies fn to a copy of the named cluster and stores the result.
// It returns the stored record and false if the name is unknown.
func (r *Registry) Update(name string, fn func(c *model.Cluster)) (model.Cluster, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clusters[name]
	if !ok {
		return model.Cluster{}, false
	}
	fn(&c)
	r.clusters[name] = c
	return c, true
}

// apply runs fn with exclusive access to the whole map. Used where several
// records must change as one unit (reconcile, admission plus insert).
func (r *Registry) apply(fn func(clusters map[string]model.Cluster)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.clusters)
}

func countActive(clusters map[string]model.Cluster) int {
	n := 0
	for _, c := range clusters {
		if !c.IsGone() {
			n++
		}
	}
	return n
}

func countByStatus(clusters map[string]model.Cluster) map[model.Status]int {
	counts := map[model.Status]int{
		model.StatusDeploying:   0,
		model.StatusLive:        0,
		model.StatusTerminating: 0,
		model.StatusGone:        0,
	}
	for _, c := range clusters {
		counts[c.Status]++
	}
	return counts
}
