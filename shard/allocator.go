package shard

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/quantumfuse-labs/quantumfuse/types"
)

var ErrNoRoute = errors.New("no route found between shards")

// Allocator computes proposed pending-set reassignments. It is stateless:
// it only reads snapshots and returns an assignment, it never mutates
// shards directly.
type Allocator struct {
	// HomeShard maps an address to its base shard, used to estimate
	// cross-shard message cost under a candidate assignment.
	HomeShard func(address string) types.ShardID

	// Cost weights: cross-shard message count vs per-shard load variance.
	CrossShardWeight float64
	VarianceWeight   float64

	// MaxIterations bounds the annealing search.
	MaxIterations int

	rng *rand.Rand
}

func NewAllocator(homeShard func(string) types.ShardID) *Allocator {
	return &Allocator{
		HomeShard:        homeShard,
		CrossShardWeight: 1.0,
		VarianceWeight:   4.0,
		MaxIterations:    20000,
		rng:              rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// OptimizeAllocation searches for a transaction-to-shard assignment
// minimizing the weighted sum of cross-shard message count and per-shard
// load variance, by simulated annealing over single-transaction moves.
// The search stops at the iteration budget or the context deadline,
// whichever comes first, and always returns a total assignment covering
// every input transaction exactly once; when the budget is exhausted the
// best assignment found so far is returned.
func (a *Allocator) OptimizeAllocation(ctx context.Context, pendingByShard types.Assignment, topo *types.Topology, loads types.LoadMetrics) types.Assignment {
	ids := make([]types.ShardID, 0, len(pendingByShard))
	for id := range pendingByShard {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if len(ids) == 0 {
		return types.Assignment{}
	}

	// Flatten to a move table: placement[i] is the shard of transaction i.
	var txs []*types.Transaction
	placement := make([]types.ShardID, 0)
	for _, id := range ids {
		for _, tx := range pendingByShard[id] {
			txs = append(txs, tx)
			placement = append(placement, id)
		}
	}

	if len(txs) == 0 {
		out := make(types.Assignment, len(ids))
		for _, id := range ids {
			out[id] = nil
		}
		return out
	}

	current := a.cost(txs, placement, ids, topo, loads)
	best := append([]types.ShardID(nil), placement...)
	bestCost := current

	temperature := 1.0
	cooling := math.Pow(0.001, 1.0/float64(a.MaxIterations))

	for i := 0; i < a.MaxIterations; i++ {
		if ctx.Err() != nil {
			break
		}

		txIdx := a.rng.Intn(len(txs))
		from := placement[txIdx]
		to := ids[a.rng.Intn(len(ids))]
		if to == from {
			continue
		}

		placement[txIdx] = to
		candidate := a.cost(txs, placement, ids, topo, loads)

		delta := candidate - current
		if delta <= 0 || a.rng.Float64() < math.Exp(-delta/temperature) {
			current = candidate
			if current < bestCost {
				bestCost = current
				copy(best, placement)
			}
		} else {
			placement[txIdx] = from
		}

		temperature *= cooling
	}

	out := make(types.Assignment, len(ids))
	for _, id := range ids {
		out[id] = nil
	}
	for i, tx := range txs {
		out[best[i]] = append(out[best[i]], tx)
	}
	return out
}

// cost is the annealing objective: weighted cross-shard message cost plus
// weighted variance of per-shard occupancy (snapshot load factor plus
// proposed pending count).
func (a *Allocator) cost(txs []*types.Transaction, placement []types.ShardID, ids []types.ShardID, topo *types.Topology, loads types.LoadMetrics) float64 {
	counts := make(map[types.ShardID]int, len(ids))
	crossShard := 0.0

	for i, tx := range txs {
		counts[placement[i]]++
		if a.HomeShard == nil {
			continue
		}
		if home := a.HomeShard(tx.Recipient); home != placement[i] {
			crossShard += linkCost(topo, placement[i], home)
		}
	}

	total := 0.0
	occupancy := make(map[types.ShardID]float64, len(ids))
	for _, id := range ids {
		occupancy[id] = loads[id] + float64(counts[id])
		total += occupancy[id]
	}
	mean := total / float64(len(ids))

	variance := 0.0
	for _, id := range ids {
		d := occupancy[id] - mean
		variance += d * d
	}
	variance /= float64(len(ids))

	return a.CrossShardWeight*crossShard + a.VarianceWeight*variance
}

// linkCost prices one cross-shard message: the direct edge cost when the
// topology has one, otherwise a flat penalty for the relayed hop.
func linkCost(topo *types.Topology, from, to types.ShardID) float64 {
	if topo != nil {
		if cost, ok := topo.Neighbors(from)[to]; ok {
			return cost
		}
	}
	return 2.0
}

// RouteCrossShard finds the lowest-cost path between two shards over the
// adjacency graph, breaking ties by lowest shard identifier. It fails with
// ErrNoRoute only when the graph is disconnected between the endpoints.
func RouteCrossShard(topo *types.Topology, source, dest types.ShardID) ([]types.ShardID, error) {
	if source == dest {
		return []types.ShardID{source}, nil
	}
	if topo == nil {
		return nil, ErrNoRoute
	}

	dist := map[types.ShardID]float64{source: 0}
	prev := make(map[types.ShardID]types.ShardID)
	visited := make(map[types.ShardID]struct{})

	for {
		// Pick the unvisited shard with the smallest distance, lowest id
		// on ties.
		var u types.ShardID
		uDist := math.Inf(1)
		found := false
		for id, d := range dist {
			if _, done := visited[id]; done {
				continue
			}
			if d < uDist || (d == uDist && found && id < u) {
				u, uDist, found = id, d, true
			}
		}
		if !found {
			return nil, ErrNoRoute
		}
		if u == dest {
			break
		}
		visited[u] = struct{}{}

		for v, cost := range topo.Neighbors(u) {
			if _, done := visited[v]; done {
				continue
			}
			alt := uDist + cost
			if old, ok := dist[v]; !ok || alt < old || (alt == old && u < prev[v]) {
				dist[v] = alt
				prev[v] = u
			}
		}
	}

	path := []types.ShardID{dest}
	for at := dest; at != source; {
		p, ok := prev[at]
		if !ok {
			return nil, ErrNoRoute
		}
		path = append(path, p)
		at = p
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}
