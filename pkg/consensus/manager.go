package consensus

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	json "github.com/goccy/go-json"

	"github.com/oxidb/oxidb/pkg/blob"
	"github.com/oxidb/oxidb/pkg/collection"
	"github.com/oxidb/oxidb/pkg/oxierr"
)

// Config configures one node's participation in the Raft cluster.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string
}

// Node wraps a *raft.Raft bound to an FSM over a collection.Manager. The
// Raft log/stable stores use bbolt (raft-boltdb) — the one place this
// system keeps bbolt from the teacher's stack, since the Raft log itself
// is infrastructure this system's storage format spec says nothing
// about (see DESIGN.md's pkg/storage entry).
type Node struct {
	nodeID string
	raft   *raft.Raft
	fsm    *FSM
}

// Bootstrap creates a single-node Raft cluster rooted at cfg, grounded on
// the teacher's Bootstrap method (same timeout tuning for fast failover,
// same transport/snapshot/log-store construction), with the DNS/CA/ACME
// startup steps dropped since this system has no orchestration surface
// for them to serve.
func Bootstrap(cfg Config, manager *collection.Manager, blobs *blob.Store) (*Node, error) {
	raftConfig := raft.DefaultConfig()
	raftConfig.LocalID = raft.ServerID(cfg.NodeID)
	raftConfig.HeartbeatTimeout = 500 * time.Millisecond
	raftConfig.ElectionTimeout = 500 * time.Millisecond
	raftConfig.CommitTimeout = 50 * time.Millisecond
	raftConfig.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, oxierr.Wrap(oxierr.Internal, err, "resolve raft bind address")
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, oxierr.Wrap(oxierr.Internal, err, "create raft transport")
	}
	snapshotStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, oxierr.Wrap(oxierr.IOError, err, "create raft snapshot store")
	}
	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, oxierr.Wrap(oxierr.IOError, err, "create raft log store")
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return nil, oxierr.Wrap(oxierr.IOError, err, "create raft stable store")
	}

	fsm := NewFSM(manager, blobs)
	r, err := raft.NewRaft(raftConfig, fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, oxierr.Wrap(oxierr.Internal, err, "create raft instance")
	}

	configuration := raft.Configuration{
		Servers: []raft.Server{{ID: raftConfig.LocalID, Address: transport.LocalAddr()}},
	}
	if err := r.BootstrapCluster(configuration).Error(); err != nil {
		return nil, oxierr.Wrap(oxierr.Internal, err, "bootstrap raft cluster")
	}

	return &Node{nodeID: cfg.NodeID, raft: r, fsm: fsm}, nil
}

// Apply submits op/data as a committed write and waits for it to apply,
// returning the FSM's Apply return value (the write set — see Command).
func (n *Node) Apply(op string, data interface{}, timeout time.Duration) (interface{}, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, oxierr.Wrap(oxierr.Internal, err, "marshal consensus command payload")
	}
	cmd := Command{Op: op, Data: payload}
	encoded, err := json.Marshal(cmd)
	if err != nil {
		return nil, oxierr.Wrap(oxierr.Internal, err, "marshal consensus command")
	}

	future := n.raft.Apply(encoded, timeout)
	if err := future.Error(); err != nil {
		return nil, oxierr.Wrap(oxierr.Internal, err, "raft apply")
	}
	result := future.Response()
	if err, ok := result.(error); ok && err != nil {
		return nil, err
	}
	return result, nil
}

// IsLeader reports whether this node is currently the Raft leader.
func (n *Node) IsLeader() bool { return n.raft.State() == raft.Leader }

// LeaderAddr returns the current leader's transport address.
func (n *Node) LeaderAddr() string { return string(n.raft.Leader()) }

// Stats exposes the underlying Raft instance's diagnostic counters (log
// index, applied index, term, peer count, and so on) for pkg/metrics.
func (n *Node) Stats() map[string]string { return n.raft.Stats() }

// AddVoter adds nodeID at address as a voting member (leader-only).
func (n *Node) AddVoter(nodeID, address string) error {
	if !n.IsLeader() {
		return fmt.Errorf("AddVoter must run on the leader")
	}
	return n.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second).Error()
}
