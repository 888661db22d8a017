package consensus

import (
	"fmt"
	"sync"

	"github.com/quantumfuse-labs/quantumfuse/amount"
	"github.com/quantumfuse-labs/quantumfuse/chain"
	"github.com/quantumfuse-labs/quantumfuse/crypto/aggregate"
	"github.com/quantumfuse-labs/quantumfuse/types"
)

// EnergyStrategy gates proposer eligibility on a verified renewable-energy
// score and pays lower-footprint proposers more per block.
type EnergyStrategy struct {
	mu sync.RWMutex

	scores     map[string]float64
	threshold  float64
	baseReward amount.Amount
}

func NewEnergyStrategy(threshold float64, baseReward amount.Amount) *EnergyStrategy {
	return &EnergyStrategy{
		scores:     make(map[string]float64),
		threshold:  threshold,
		baseReward: baseReward,
	}
}

func (e *EnergyStrategy) Name() string { return "energy" }

// SetScore records a verified renewable-energy score for an address,
// clamped to [0, 1]. Verification of the attestation itself happens at
// the (out of scope) oracle boundary.
func (e *EnergyStrategy) SetScore(address string, score float64) {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	e.mu.Lock()
	e.scores[address] = score
	e.mu.Unlock()
}

// Score returns the recorded energy score of an address, zero when
// unknown.
func (e *EnergyStrategy) Score(address string) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.scores[address]
}

// AggregateScore is the mean recorded score, one of the network
// observations feeding hybrid weight adjustment.
func (e *EnergyStrategy) AggregateScore() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.scores) == 0 {
		return 0
	}
	total := 0.0
	for _, s := range e.scores {
		total += s
	}
	return total / float64(len(e.scores))
}

// SelectProposer picks the eligible candidate with the highest energy
// score.
func (e *EnergyStrategy) SelectProposer(candidates []Candidate) (string, error) {
	scores, err := e.ScoreCandidates(candidates)
	if err != nil {
		return "", err
	}

	eligible := false
	for _, s := range scores {
		if s > 0 {
			eligible = true
			break
		}
	}
	if !eligible {
		return "", ErrNoEligibleCandidate
	}
	return bestScored(scores)
}

func (e *EnergyStrategy) ScoreCandidates(candidates []Candidate) (map[string]float64, error) {
	if len(candidates) == 0 {
		return nil, ErrNoEligibleCandidate
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	scores := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		score := e.scores[c.Address]
		if score < e.threshold {
			scores[c.Address] = 0
			continue
		}
		scores[c.Address] = score
	}
	return scores, nil
}

func (e *EnergyStrategy) Propose(tip *types.Block, txs []*types.Transaction, proposer string, proof *aggregate.Proof) (*types.Block, error) {
	if e.Score(proposer) < e.threshold {
		return nil, fmt.Errorf("%w: %s below energy threshold", ErrProposerIneligible, proposer)
	}
	return chain.NewBlock(tip.Index+1, tip.Hash, txs, proposer, proof)
}

// Validate rejects blocks from proposers below the energy threshold.
func (e *EnergyStrategy) Validate(block *types.Block) error {
	if score := e.Score(block.Proposer); score < e.threshold {
		return fmt.Errorf("proposer %s energy score %.2f below threshold %.2f", block.Proposer, score, e.threshold)
	}
	return nil
}

// ComputeReward scales the base reward by the proposer's energy score:
// greener proposers earn more per unit of work.
func (e *EnergyStrategy) ComputeReward(block *types.Block) amount.Amount {
	return e.baseReward.MulF64(e.Score(block.Proposer))
}
