// Package provider talks to the managed-Kubernetes provider that owns the
// clusters leased out by the bot.
package provider

import (
	"context"

	"github.com/edvin/kubelease/internal/model"
)

// Provider is the upstream API the lease engine depends on. Every call may
// fail; callers log the error and treat the result as absent.
type Provider interface {
	ListClusters(ctx context.Context) ([]model.UpstreamCluster, error)
	GetNodePools(ctx context.Context, id string) ([]model.NodePool, error)
	CreateCluster(ctx context.Context, name string, spec model.ClusterSpec) (string, error)
	DeleteCluster(ctx context.Context, id string) error
	// GetKubeconfig returns the base64-encoded kubeconfig document.
	GetKubeconfig(ctx context.Context, id string) (string, error)
}
