// Package bot answers chat commands using the lease manager.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/kubelease/internal/command"
	"github.com/edvin/kubelease/internal/lease"
	"github.com/edvin/kubelease/internal/model"
)

// Dispatcher maps intents to lease operations and renders the replies. Each
// returned string is one chat message.
type Dispatcher struct {
	logger        zerolog.Logger
	manager       *lease.Manager
	sweepInterval time.Duration
}

func NewDispatcher(logger zerolog.Logger, manager *lease.Manager, sweepInterval time.Duration) *Dispatcher {
	return &Dispatcher{
		logger:        logger.With().Str("component", "dispatcher").Logger(),
		manager:       manager,
		sweepInterval: sweepInterval,
	}
}

// Handle parses a chat message and dispatches it.
func (d *Dispatcher) Handle(ctx context.Context, text string) []string {
	d.logger.Info().Str("text", text).Msg("message received")

	in, ok := command.Parse(text)
	if !ok {
		return []string{"Odd. I seem to have malfunctioned. :flushed:"}
	}
	return d.Dispatch(ctx, in)
}

// Dispatch runs a parsed intent.
func (d *Dispatcher) Dispatch(ctx context.Context, in model.Intent) []string {
	switch in.Op {
	case model.OpCheck:
		d.manager.Reconciler().Trigger()
		return []string{"ok."}
	case model.OpHelp:
		return []string{help}
	case model.OpInfo:
		return []string{d.info()}
	case model.OpList:
		return []string{d.list()}
	case model.OpRenew:
		return d.renew(in)
	case model.OpExpire:
		return d.expire(in)
	case model.OpDeploy:
		return d.deploy(ctx, in)
	case model.OpTeardown:
		return d.teardown(ctx, in)
	case model.OpAccess:
		return d.access(ctx, in)
	default:
		return []string{"Odd. I seem to have malfunctioned. :flushed:"}
	}
}

const help = `hi there! i can help deploy Linode LKE instances!

say ` + "`info`" + ` to get my current limits / parameters.
say ` + "`list`" + ` to see currently deployed clusters.
say ` + "`deploy NAME`" + ` to deploy a new cluster.
say ` + "`renew NAME`" + ` to renew the lease on a cluster.
say ` + "`expire NAME`" + ` to drop the lease on a cluster.
say ` + "`teardown NAME`" + ` to decommission a cluster.
say ` + "`access NAME`" + ` to get a cluster's kubeconfig.`

func (d *Dispatcher) info() string {
	limits := d.manager.Limits()
	lines := []string{
		fmt.Sprintf("i am allowed to deploy up to *%d clusters*", limits.MaxClusters),
		fmt.Sprintf("each of which can be (at most) *%d nodes* in size.", limits.MaxNodes),
	}
	if len(limits.OffLimits) > 0 {
		quoted := make([]string, len(limits.OffLimits))
		for i, name := range limits.OffLimits {
			quoted[i] = "`" + name + "`"
		}
		lines = append(lines, "i am forbidden from interacting with the following clusters: "+strings.Join(quoted, ", "))
	}
	if d.sweepInterval > 0 {
		lines = append(lines, fmt.Sprintf("i check for (and teardown!) expired clusters every *%d minutes*", int(d.sweepInterval.Minutes())))
	}
	return strings.Join(lines, "\n")
}

func (d *Dispatcher) list() string {
	clusters := d.manager.List()
	if len(clusters) == 0 {
		return "i have not deployed any clusters yet.\nto get started, try \"deploy a-test-cluster\""
	}

	now := d.manager.Now()
	lines := []string{fmt.Sprintf("i am watching %d cluster(s):", len(clusters))}
	for _, c := range clusters {
		lines = append(lines, c.Describe(now))
	}
	return strings.Join(lines, "\n")
}

func (d *Dispatcher) renew(in model.Intent) []string {
	hours := 1
	if in.Life != "" {
		hours = model.ClampLeaseHours(model.AtLeastOne(strings.TrimSuffix(in.Life, "h")))
	}
	if _, err := d.manager.Renew(in.Cluster, hours); err != nil {
		return []string{clusterError(in.Cluster, err)}
	}
	return []string{fmt.Sprintf("renewing %s for %d more hours", in.Cluster, hours)}
}

func (d *Dispatcher) expire(in model.Intent) []string {
	if _, err := d.manager.Expire(in.Cluster); err != nil {
		return []string{clusterError(in.Cluster, err)}
	}
	return []string{fmt.Sprintf("dropping lease on %s IMMEDIATELY :boom:", in.Cluster)}
}

func (d *Dispatcher) deploy(ctx context.Context, in model.Intent) []string {
	if in.Cluster == "" {
		return []string{"what do you want to call your new cluster? you might try `deploy my-cluster`"}
	}

	res := d.manager.Deploy(ctx, in.Cluster, in.SpecInput())
	switch res.Outcome {
	case lease.Admit:
		return []string{"you got it! deploying.."}
	case lease.TooManyClusters:
		return []string{"hrm. i have already deployed my quota for clusters. sorry."}
	case lease.ClusterTooLarge:
		return []string{"oops. the cluster you're asking for is larger than what i am allowed to deploy."}
	case lease.OffLimits:
		return []string{clusterError(in.Cluster, lease.ErrOffLimits)}
	case lease.NameTaken:
		return []string{fmt.Sprintf("i am already watching a cluster called `%s`; pick another name.", in.Cluster)}
	default:
		return []string{":boom: something broke; ask my handler about the error `" + res.Outcome.String() + "`"}
	}
}

func (d *Dispatcher) teardown(ctx context.Context, in model.Intent) []string {
	if err := d.manager.Teardown(ctx, in.Cluster); err != nil {
		return []string{clusterError(in.Cluster, err)}
	}
	return []string{fmt.Sprintf("tearing down %s IMMEDIATELY :boom:", in.Cluster)}
}

func (d *Dispatcher) access(ctx context.Context, in model.Intent) []string {
	replies := []string{"let me get that kubeconfig for you..."}

	if !d.manager.Limits().Allowed(in.Cluster) {
		return append(replies, clusterError(in.Cluster, lease.ErrOffLimits))
	}

	kubeconfig, ok := d.manager.Access(ctx, in.Cluster)
	if !ok {
		return append(replies, "hrmm. that cluster may still be provisioning?")
	}
	return append(replies, "here you go:\n```"+kubeconfig+"```")
}

func clusterError(name string, err error) string {
	switch {
	case errors.Is(err, lease.ErrOffLimits):
		return fmt.Sprintf("i am forbidden from interacting with `%s`.", name)
	case errors.Is(err, lease.ErrUnknownCluster):
		return fmt.Sprintf("i don't know of a cluster named `%s`.", name)
	case errors.Is(err, lease.ErrClusterGone):
		return fmt.Sprintf("`%s` is already gone; nothing to tear down.", name)
	default:
		return ":boom: something broke; ask my handler about the error `" + err.Error() + "`"
	}
}
