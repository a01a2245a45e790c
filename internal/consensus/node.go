package consensus

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/lspecian/vexfs-sub008/internal/crdt"
	"github.com/lspecian/vexfs-sub008/internal/errs"
	"github.com/lspecian/vexfs-sub008/internal/obs"
)

// Config holds the spec.md §6 raft.* configuration keys.
type Config struct {
	NodeID                  string
	BindAddr                string
	DataDir                 string
	Bootstrap               bool
	ElectionTimeoutMinMs    int
	ElectionTimeoutMaxMs    int
	HeartbeatMs             int
	Byzantine               bool
	ByzantineSharedKey      []byte
}

// Node bundles a running raft.Raft instance with the FSM it drives.
type Node struct {
	Raft *raft.Raft
	FSM  *FSM
	cfg  Config

	breaker *obs.CircuitBreaker
}

// New starts (or joins) a raft node per spec.md §4.7. The stable/log store
// is raft-boltdb, the snapshot store is a filesystem store rooted under
// cfg.DataDir — the same pairing the teacher's internal/storage packages
// use for on-disk persistence (bbolt-backed directory files), here applied
// to Raft's own log instead of the journal.
func New(cfg Config, fsm *FSM) (*Node, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, errs.Wrap(err, "consensus", "mkdir-datadir")
	}

	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(cfg.NodeID)
	if cfg.HeartbeatMs > 0 {
		raftCfg.HeartbeatTimeout = time.Duration(cfg.HeartbeatMs) * time.Millisecond
	}
	if cfg.ElectionTimeoutMinMs > 0 {
		raftCfg.ElectionTimeout = time.Duration(cfg.ElectionTimeoutMinMs) * time.Millisecond
	}

	logStorePath := filepath.Join(cfg.DataDir, "raft-log.bolt")
	logStore, err := raftboltdb.NewBoltStore(logStorePath)
	if err != nil {
		return nil, errs.Wrap(err, "consensus", "open-log-store")
	}

	stableStorePath := filepath.Join(cfg.DataDir, "raft-stable.bolt")
	stableStore, err := raftboltdb.NewBoltStore(stableStorePath)
	if err != nil {
		return nil, errs.Wrap(err, "consensus", "open-stable-store")
	}

	snapshotStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, errs.Wrap(err, "consensus", "open-snapshot-store")
	}

	transport, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}

	r, err := raft.NewRaft(raftCfg, fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, errs.Wrap(err, "consensus", "new-raft")
	}

	if cfg.Bootstrap {
		bootstrapCfg := raft.Configuration{
			Servers: []raft.Server{{ID: raftCfg.LocalID, Address: transport.LocalAddr()}},
		}
		future := r.BootstrapCluster(bootstrapCfg)
		if err := future.Error(); err != nil && err != raft.ErrCantBootstrap {
			return nil, errs.Wrap(err, "consensus", "bootstrap-cluster")
		}
	}

	return &Node{Raft: r, FSM: fsm, cfg: cfg, breaker: obs.NewRaftQuorumBreaker(fsm.Metrics())}, nil
}

// ProposeJournalAppend submits an append command to the raft log and
// blocks until it commits or timeout elapses.
func (n *Node) ProposeJournalAppend(cmd Command, timeout time.Duration) error {
	cmd.Kind = CommandJournalAppend
	return n.apply(cmd, timeout)
}

// ProposeCRDTMerge submits a CRDT merge command and blocks until commit.
func (n *Node) ProposeCRDTMerge(key string, state *crdt.State, timeout time.Duration) error {
	cmd := Command{Kind: CommandCRDTMerge, CRDTKey: key, CRDT: state}
	return n.apply(cmd, timeout)
}

// apply submits cmd to the raft log. A run of consecutive failures (the
// shape a lost quorum produces, since every Apply then times out the same
// way) trips the breaker so later callers fail fast with
// ErrConsensusUnavailable per spec.md §4.10's "a quorum loss stalls writes"
// instead of each paying the full Apply timeout against a cluster that has
// no leader to commit to.
func (n *Node) apply(cmd Command, timeout time.Duration) error {
	if n.breaker.State() == obs.CircuitOpen {
		return errs.Wrap(errs.ErrConsensusUnavailable, "consensus", "breaker-open")
	}

	return n.breaker.Execute(context.Background(), func() error {
		data, err := json.Marshal(cmd)
		if err != nil {
			return errs.Wrap(err, "consensus", "marshal-command")
		}
		future := n.Raft.Apply(data, timeout)
		if err := future.Error(); err != nil {
			return errs.Wrap(err, "consensus", "raft-apply")
		}
		if respErr, ok := future.Response().(error); ok && respErr != nil {
			return errs.Wrap(respErr, "consensus", "fsm-apply-response")
		}
		return nil
	})
}

// AddVoter adds or updates a voting peer, per spec.md §4.7's membership
// change requirement. Only the leader may call this successfully.
func (n *Node) AddVoter(id, addr string, timeout time.Duration) error {
	future := n.Raft.AddVoter(raft.ServerID(id), raft.ServerAddress(addr), 0, timeout)
	return future.Error()
}

// IsLeader reports whether this node currently holds leadership.
func (n *Node) IsLeader() bool {
	return n.Raft.State() == raft.Leader
}

// Shutdown stops the raft node.
func (n *Node) Shutdown() error {
	return n.Raft.Shutdown().Error()
}

func resolveAddr(bindAddr string) (*net.TCPAddr, error) {
	addr, err := net.ResolveTCPAddr("tcp", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("consensus: resolve bind addr %q: %w", bindAddr, err)
	}
	return addr, nil
}

// newTransport builds a plain TCP raft.Transport, or an HMAC-authenticated
// one when cfg.Byzantine is set (see transport.go).
func newTransport(cfg Config) (raft.Transport, error) {
	if cfg.Byzantine {
		stream, err := NewAuthenticatedStreamLayer(cfg.BindAddr, cfg.ByzantineSharedKey)
		if err != nil {
			return nil, errs.Wrap(err, "consensus", "open-authenticated-transport")
		}
		return raft.NewNetworkTransport(stream, 3, 10*time.Second, os.Stderr), nil
	}

	addr, err := resolveAddr(cfg.BindAddr)
	if err != nil {
		return nil, err
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, errs.Wrap(err, "consensus", "open-transport")
	}
	return transport, nil
}
