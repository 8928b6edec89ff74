package main

import (
	"context"
	"encoding/json"
	"path"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	v3 "go.etcd.io/etcd/client/v3"

	"github.com/bagel-payroll/bagel-server/pkg/etcd"
	"github.com/bagel-payroll/bagel-server/pkg/metrics"
)

const (
	validatorsKey = "validators"

	validatorsMetricName = "Validator/peers"
)

// nodeInfo is the record each validator publishes under the validators
// prefix while it runs.
type nodeInfo struct {
	ID         string    `json:"id"`
	RPCAddress string    `json:"rpc_address"`
	StartedAt  time.Time `json:"started_at"`
}

// registry publishes this validator and tracks the other live validators.
type registry struct {
	log    *logrus.Entry
	lease  *etcd.PersistentLease
	doneCh chan struct{}
}

func newRegistry(ctx context.Context, client *v3.Client, rootKey string, ttl time.Duration, self nodeInfo) (*registry, error) {
	prefix := path.Join(rootKey, validatorsKey) + "/"

	encoded, err := json.Marshal(self)
	if err != nil {
		return nil, err
	}

	lease, err := etcd.NewPersistentLease(client, prefix+self.ID, string(encoded), ttl)
	if err != nil {
		return nil, err
	}

	r := &registry{
		log:    logrus.StandardLogger().WithField("type", "validator/registry"),
		lease:  lease,
		doneCh: make(chan struct{}),
	}

	snapshots := etcd.WatchPrefix(ctx, client, prefix, decodeNodeInfo)
	go r.track(ctx, snapshots)

	return r, nil
}

func decodeNodeInfo(_, v []byte) (string, nodeInfo, error) {
	var info nodeInfo
	if err := json.Unmarshal(v, &info); err != nil {
		return "", info, err
	}
	return info.ID, info, nil
}

func (r *registry) track(ctx context.Context, snapshots <-chan etcd.Snapshot[string, nodeInfo]) {
	defer close(r.doneCh)

	for snapshot := range snapshots {
		ids := make([]string, 0, len(snapshot.Tree))
		for id := range snapshot.Tree {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		r.log.WithFields(logrus.Fields{
			"revision":   snapshot.Revision,
			"validators": ids,
		}).Info("validator membership changed")

		metrics.RecordCount(ctx, validatorsMetricName, uint64(len(ids)))
	}
}

// close withdraws this validator. The context passed to newRegistry must be
// cancelled first.
func (r *registry) close() {
	r.lease.Close()
	<-r.doneCh
}
