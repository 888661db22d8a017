package consensus

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"

	"github.com/quantumfuse-labs/quantumfuse/amount"
	"github.com/quantumfuse-labs/quantumfuse/chain"
	"github.com/quantumfuse-labs/quantumfuse/crypto/aggregate"
	"github.com/quantumfuse-labs/quantumfuse/state"
	"github.com/quantumfuse-labs/quantumfuse/types"
)

// StakeStrategy selects proposers by weighted random choice proportional
// to staked amount and rejects blocks from proposers below the minimum
// stake at selection time.
type StakeStrategy struct {
	state      *state.Manager
	minStake   amount.Amount
	baseReward amount.Amount
}

func NewStakeStrategy(st *state.Manager, minStake, baseReward amount.Amount) *StakeStrategy {
	return &StakeStrategy{
		state:      st,
		minStake:   minStake,
		baseReward: baseReward,
	}
}

func (s *StakeStrategy) Name() string { return "stake" }

// SelectProposer draws a stake-weighted random winner among eligible
// candidates using a cryptographically secure source.
func (s *StakeStrategy) SelectProposer(candidates []Candidate) (string, error) {
	eligible := make([]Candidate, 0, len(candidates))
	totalStake := amount.Amount(0)
	for _, c := range candidates {
		if c.Stake >= s.minStake {
			eligible = append(eligible, c)
			totalStake += c.Stake
		}
	}
	if len(eligible) == 0 || totalStake == 0 {
		return "", ErrNoEligibleCandidate
	}

	// Deterministic iteration order keeps the draw unbiased across runs.
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].Address < eligible[j].Address })

	draw, err := secureRandomInt(int64(totalStake))
	if err != nil {
		return "", fmt.Errorf("failed to draw random stake point: %v", err)
	}

	for _, c := range eligible {
		draw -= int64(c.Stake)
		if draw < 0 {
			return c.Address, nil
		}
	}
	return eligible[len(eligible)-1].Address, nil
}

func (s *StakeStrategy) ScoreCandidates(candidates []Candidate) (map[string]float64, error) {
	if len(candidates) == 0 {
		return nil, ErrNoEligibleCandidate
	}
	scores := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		if c.Stake >= s.minStake {
			scores[c.Address] = float64(c.Stake)
		} else {
			scores[c.Address] = 0
		}
	}
	return scores, nil
}

func (s *StakeStrategy) Propose(tip *types.Block, txs []*types.Transaction, proposer string, proof *aggregate.Proof) (*types.Block, error) {
	if s.state.GetStaked(proposer) < s.minStake {
		return nil, fmt.Errorf("%w: proposer %s below minimum stake", ErrProposerIneligible, proposer)
	}
	return chain.NewBlock(tip.Index+1, tip.Hash, txs, proposer, proof)
}

// Validate rejects blocks whose proposer does not meet the minimum stake.
func (s *StakeStrategy) Validate(block *types.Block) error {
	if staked := s.state.GetStaked(block.Proposer); staked < s.minStake {
		return fmt.Errorf("proposer %s staked %d, minimum is %d", block.Proposer, staked, s.minStake)
	}
	return nil
}

func (s *StakeStrategy) ComputeReward(block *types.Block) amount.Amount {
	return s.baseReward
}

// secureRandomInt draws a uniform integer in [0, max) from crypto/rand.
func secureRandomInt(max int64) (int64, error) {
	if max <= 0 {
		return 0, fmt.Errorf("max must be positive, got %d", max)
	}
	n, err := rand.Int(rand.Reader, big.NewInt(max))
	if err != nil {
		return 0, err
	}
	return n.Int64(), nil
}
