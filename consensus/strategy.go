// Package consensus implements the pluggable block admission engine: four
// interchangeable trust models behind one Strategy interface, composed by
// a hybrid coordinator that weights their proposer scores, requires quorum
// agreement on validation, and distributes one reward credit per block.
package consensus

import (
	"errors"

	"github.com/quantumfuse-labs/quantumfuse/amount"
	"github.com/quantumfuse-labs/quantumfuse/crypto/aggregate"
	"github.com/quantumfuse-labs/quantumfuse/types"
)

var (
	ErrInsufficientWeight  = errors.New("voter has no delegated weight")
	ErrProposerIneligible  = errors.New("proposer ineligible this round")
	ErrNoEligibleCandidate = errors.New("no eligible proposer candidate")
)

// Candidate is a prospective block proposer as seen by the strategies.
type Candidate struct {
	Address     string
	Stake       amount.Amount
	Delegated   amount.Amount
	WorkRate    float64 // observed hashing throughput
	EnergyScore float64 // verified renewable-energy score in [0,1]
}

// Strategy is one trust model of the closed set: work-based, stake-based,
// delegated-stake and energy-weighted. The hybrid coordinator composes
// their outputs; strategies never call each other.
type Strategy interface {
	Name() string

	// SelectProposer picks a proposer among the candidates under this
	// strategy alone.
	SelectProposer(candidates []Candidate) (string, error)

	// ScoreCandidates grades every candidate; higher is better. The
	// hybrid coordinator combines these scores across strategies.
	ScoreCandidates(candidates []Candidate) (map[string]float64, error)

	// Propose assembles a block over the ordered transactions with the
	// aggregated signature proof already computed.
	Propose(tip *types.Block, txs []*types.Transaction, proposer string, proof *aggregate.Proof) (*types.Block, error)

	// Validate checks the strategy's block admission rules.
	Validate(block *types.Block) error

	// ComputeReward returns this strategy's contribution to the block
	// reward. The coordinator sums contributions and credits once.
	ComputeReward(block *types.Block) amount.Amount
}

// normalizeScores scales a score map to sum to one so strategies with
// different natural units combine fairly.
func normalizeScores(scores map[string]float64) map[string]float64 {
	total := 0.0
	for _, s := range scores {
		total += s
	}
	if total <= 0 {
		return scores
	}
	out := make(map[string]float64, len(scores))
	for addr, s := range scores {
		out[addr] = s / total
	}
	return out
}
