// Package node wires the full pipeline together: transaction intake,
// shard routing, pending-set rebalancing, hybrid consensus rounds and
// ledger commitment.
package node

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/quantumfuse-labs/quantumfuse/amount"
	"github.com/quantumfuse-labs/quantumfuse/chain"
	"github.com/quantumfuse-labs/quantumfuse/config"
	"github.com/quantumfuse-labs/quantumfuse/consensus"
	"github.com/quantumfuse-labs/quantumfuse/shard"
	"github.com/quantumfuse-labs/quantumfuse/state"
	"github.com/quantumfuse-labs/quantumfuse/types"
)

const (
	// maxBlockTransactions caps how many pending transactions one block
	// drains.
	maxBlockTransactions = 500

	// initialWorkTarget leaves mining cheap enough for a single node.
	initialWorkTarget = uint64(1) << 60

	reallocBudget = 2 * time.Second
)

// Node owns one running instance of the ledger: the account state, the
// shard set, the consensus coordinator and the persistent store.
type Node struct {
	cfg *config.Config

	state     *state.Manager
	ledger    *chain.Ledger
	shards    *shard.Manager
	allocator *shard.Allocator
	engine    *consensus.Coordinator
	energy    *consensus.EnergyStrategy
	work      *consensus.WorkStrategy
	topology  *types.Topology
	store     types.Store

	mu      sync.Mutex
	stopped chan struct{}
}

// New assembles a node from configuration. The store may be nil for an
// ephemeral node.
func New(cfg *config.Config, st types.Store) (*Node, error) {
	stateMgr := state.NewManager()

	// Accounts come back before the ledger so a reloaded chain sees the
	// balances it committed.
	if st != nil {
		accounts, err := st.Accounts()
		if err != nil {
			return nil, fmt.Errorf("failed to restore accounts: %v", err)
		}
		stateMgr.RestoreAccounts(accounts)
	}

	ledger, err := chain.NewLedger(stateMgr, st)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ledger: %v", err)
	}

	shards := shard.NewManager(cfg.ShardCount, cfg.ShardCapacity, cfg.LoadThreshold)
	allocator := shard.NewAllocator(shards.HomeShard)

	// Fully connect the shard topology with unit link costs; operators can
	// reshape it at runtime through Topology().
	topo := types.NewTopology()
	for i := 0; i < cfg.ShardCount; i++ {
		for j := i + 1; j < cfg.ShardCount; j++ {
			topo.AddBidirectional(types.ShardID(i), types.ShardID(j), 1.0)
		}
	}

	work := consensus.NewWorkStrategy(initialWorkTarget, config.TargetBlockIntervalSecs*time.Second, amount.Amount(cfg.BaseReward))
	stake := consensus.NewStakeStrategy(stateMgr, amount.Amount(cfg.MinStake), amount.Amount(cfg.BaseReward))
	delegated := consensus.NewDelegatedStrategy(stateMgr, cfg.MaxDelegates, amount.Amount(cfg.BaseReward))
	energy := consensus.NewEnergyStrategy(cfg.EnergyThreshold, amount.Amount(cfg.BaseReward))

	engine, err := consensus.NewCoordinator(stateMgr, consensus.Parameters{
		Weights: map[string]float64{
			"work":      cfg.WorkWeight,
			"stake":     cfg.StakeWeight,
			"delegated": cfg.DelegatedWeight,
			"energy":    cfg.EnergyWeight,
		},
		Quorum:            cfg.ConsensusQuorum,
		MaxAdjustmentStep: cfg.MaxAdjustmentStep,
	}, work, stake, delegated, energy)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize consensus: %v", err)
	}

	return &Node{
		cfg:       cfg,
		state:     stateMgr,
		ledger:    ledger,
		shards:    shards,
		allocator: allocator,
		engine:    engine,
		energy:    energy,
		work:      work,
		topology:  topo,
		store:     st,
		stopped:   make(chan struct{}),
	}, nil
}

func (n *Node) State() *state.Manager             { return n.state }
func (n *Node) Ledger() *chain.Ledger             { return n.ledger }
func (n *Node) Shards() *shard.Manager            { return n.shards }
func (n *Node) Consensus() *consensus.Coordinator { return n.engine }
func (n *Node) Topology() *types.Topology         { return n.topology }

// SubmitTransaction verifies a transaction and places it on its shard's
// pending set. Duplicate submissions are absorbed silently.
func (n *Node) SubmitTransaction(tx *types.Transaction) error {
	if err := chain.VerifyTransaction(tx); err != nil {
		return err
	}
	id := n.shards.Route(tx)
	if err := n.shards.AddTransaction(id, tx); err != nil {
		return err
	}
	return nil
}

// ReportEnergyScore records a validator's verified renewable-energy score.
func (n *Node) ReportEnergyScore(address string, score float64) {
	n.energy.SetScore(address, score)
}

// ProduceBlock runs one full consensus round: select a proposer over the
// current validator set, drain pending transactions, propose, validate,
// commit, reward, and retire the committed transactions from the shards.
// With nothing pending it returns (nil, nil).
func (n *Node) ProduceBlock(ctx context.Context) (*types.Block, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	txs := n.drainPending(maxBlockTransactions)
	if len(txs) == 0 {
		return nil, nil
	}

	candidates := n.candidates()
	proposer, err := n.engine.SelectProposer(candidates)
	if err != nil {
		return nil, fmt.Errorf("proposer selection failed: %w", err)
	}

	block, err := n.engine.ProposeBlock(n.ledger.Tip(), txs, proposer)
	if err != nil {
		n.engine.AbortRound()
		return nil, fmt.Errorf("block proposal failed: %w", err)
	}

	if err := n.engine.ValidateBlock(block); err != nil {
		return nil, fmt.Errorf("block rejected: %w", err)
	}

	if err := n.ledger.Append(block); err != nil {
		n.engine.AbortRound()
		return nil, err
	}

	reward, err := n.engine.DistributeRewards(block)
	if err != nil {
		log.Printf("reward distribution failed for block %d: %v", block.Index, err)
	}
	n.engine.FinalizeRound()

	n.shards.RemoveCommitted(block.Transactions)
	n.persistPendingSets()
	n.persistAccounts()
	n.work.AdjustDifficulty(n.ledger.Blocks())

	log.Printf("committed block %d with %d transactions, proposer %s, reward %s",
		block.Index, len(block.Transactions), block.Proposer, reward)
	return block, nil
}

// drainPending collects up to limit pending transactions across shards in
// shard-id order, deterministic for a given pending state.
func (n *Node) drainPending(limit int) []*types.Transaction {
	pending := n.shards.PendingByShard()

	ids := make([]types.ShardID, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []*types.Transaction
	for _, id := range ids {
		for _, tx := range pending[id] {
			if len(out) == limit {
				return out
			}
			out = append(out, tx)
		}
	}
	return out
}

// candidates builds the proposer candidate set from every address with
// stake, annotated with delegated weight and energy score.
func (n *Node) candidates() []consensus.Candidate {
	stakeholders := n.state.Stakeholders()
	delegated := n.state.DelegatedWeight()

	out := make([]consensus.Candidate, 0, len(stakeholders))
	for addr, staked := range stakeholders {
		out = append(out, consensus.Candidate{
			Address:     addr,
			Stake:       staked,
			Delegated:   delegated[addr],
			EnergyScore: n.energy.Score(addr),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// RebalanceShards runs one allocator pass over the current pending sets
// and applies the resulting assignment atomically.
func (n *Node) RebalanceShards(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, reallocBudget)
	defer cancel()

	assignment := n.allocator.OptimizeAllocation(ctx, n.shards.PendingByShard(), n.topology, n.shards.LoadMetrics())
	if err := n.shards.Reallocate(assignment); err != nil {
		return fmt.Errorf("reallocation failed: %v", err)
	}
	n.persistPendingSets()
	return nil
}

// persistPendingSets saves every shard's pending set so accepted
// transactions survive a restart.
func (n *Node) persistPendingSets() {
	if n.store == nil {
		return
	}
	for id, txs := range n.shards.PendingByShard() {
		if err := n.store.SavePendingSet(id, txs); err != nil {
			log.Printf("failed to persist pending set for shard %d: %v", id, err)
		}
	}
}

// persistAccounts saves the whole account table. Runs after every
// committed block and once at shutdown, so restored balances match the
// stored chain.
func (n *Node) persistAccounts() {
	if n.store == nil {
		return
	}
	for _, acc := range n.state.Accounts() {
		if err := n.store.SaveAccount(acc); err != nil {
			log.Printf("failed to persist account %s: %v", acc.Address, err)
		}
	}
}

// RestorePendingSets reloads persisted pending transactions into the
// shards after a restart.
func (n *Node) RestorePendingSets() error {
	if n.store == nil {
		return nil
	}
	for i := 0; i < n.cfg.ShardCount; i++ {
		id := types.ShardID(i)
		txs, err := n.store.GetPendingSet(id)
		if err != nil {
			return err
		}
		for _, tx := range txs {
			if err := n.shards.AddTransaction(n.shards.Route(tx), tx); err != nil {
				log.Printf("failed to restore pending transaction %s: %v", tx.Hash, err)
			}
		}
	}
	return nil
}

// Run drives the node until the context is cancelled: a production tick
// per target interval, reallocation passes on demand, and periodic
// consensus weight adjustment.
func (n *Node) Run(ctx context.Context) {
	defer close(n.stopped)

	produce := time.NewTicker(config.TargetBlockIntervalSecs * time.Second)
	defer produce.Stop()
	adjust := time.NewTicker(10 * config.TargetBlockIntervalSecs * time.Second)
	defer adjust.Stop()

	for {
		select {
		case <-ctx.Done():
			n.persistAccounts()
			return
		case <-produce.C:
			if _, err := n.ProduceBlock(ctx); err != nil {
				log.Printf("block production: %v", err)
			}
		case <-n.shards.ReallocationSignal():
			if err := n.RebalanceShards(ctx); err != nil {
				log.Printf("shard rebalance: %v", err)
			}
		case <-adjust.C:
			n.engine.AdjustParameters(n.observe())
		}
	}
}

// Stopped is closed once Run has returned.
func (n *Node) Stopped() <-chan struct{} { return n.stopped }

// observe summarizes recent chain and stake conditions for consensus
// weight adjustment.
func (n *Node) observe() consensus.Observations {
	blocks := n.ledger.Blocks()

	// Variance of the most recent block intervals, in seconds squared.
	window := blocks
	if len(window) > 16 {
		window = window[len(window)-16:]
	}
	variance := 0.0
	if len(window) > 2 {
		intervals := make([]float64, 0, len(window)-1)
		mean := 0.0
		for i := 1; i < len(window); i++ {
			d := float64(window[i].Timestamp - window[i-1].Timestamp)
			intervals = append(intervals, d)
			mean += d
		}
		mean /= float64(len(intervals))
		for _, d := range intervals {
			variance += (d - mean) * (d - mean)
		}
		variance /= float64(len(intervals))
	}

	// Herfindahl index of the stake distribution.
	stakeholders := n.state.Stakeholders()
	totalStake := amount.Amount(0)
	for _, s := range stakeholders {
		totalStake += s
	}
	concentration := 0.0
	if totalStake > 0 {
		for _, s := range stakeholders {
			share := float64(s) / float64(totalStake)
			concentration += share * share
		}
	}

	return consensus.Observations{
		BlockIntervalVariance: variance,
		StakeConcentration:    concentration,
		AggregateEnergyScore:  n.energy.AggregateScore(),
	}
}
