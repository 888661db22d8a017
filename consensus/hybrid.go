package consensus

import (
	"fmt"
	"log"
	"sync"

	"github.com/quantumfuse-labs/quantumfuse/amount"
	"github.com/quantumfuse-labs/quantumfuse/crypto"
	"github.com/quantumfuse-labs/quantumfuse/crypto/aggregate"
	"github.com/quantumfuse-labs/quantumfuse/state"
	"github.com/quantumfuse-labs/quantumfuse/types"
)

// Parameters are the hybrid tunables: one non-negative weight per
// strategy (normalized to sum to 1), the validation quorum and the
// adjustment step bound. Only the coordinator's adjustment procedure
// mutates them.
type Parameters struct {
	Weights map[string]float64

	// Quorum is the number of enabled strategies that must accept a
	// block. Zero means all of them.
	Quorum int

	// MaxAdjustmentStep caps how much one adjustment may move a single
	// weight, preventing oscillation.
	MaxAdjustmentStep float64
}

// Observations summarize recent network conditions for weight adjustment.
type Observations struct {
	BlockIntervalVariance float64 // variance of recent block intervals, seconds squared
	StakeConcentration    float64 // Herfindahl index of stake distribution, [0,1]
	AggregateEnergyScore  float64 // mean verified energy score, [0,1]
}

// Coordinator composes the strategies into one decision procedure: it
// weights their proposer scores, requires quorum agreement on validation,
// adjusts the weights from observed conditions, and credits one summed
// reward per block.
type Coordinator struct {
	mu sync.Mutex

	strategies []Strategy
	params     Parameters
	state      *state.Manager

	round    RoundState
	roundNum uint64

	// banned maps a proposer to the round number through which it stays
	// ineligible after a rejected block.
	banned map[string]uint64
}

func NewCoordinator(st *state.Manager, params Parameters, strategies ...Strategy) (*Coordinator, error) {
	if len(strategies) == 0 {
		return nil, fmt.Errorf("coordinator needs at least one strategy")
	}
	if params.Weights == nil {
		params.Weights = make(map[string]float64)
	}
	for _, s := range strategies {
		if _, ok := params.Weights[s.Name()]; !ok {
			params.Weights[s.Name()] = 1
		}
		if params.Weights[s.Name()] < 0 {
			return nil, fmt.Errorf("strategy %s has negative weight", s.Name())
		}
	}
	if params.MaxAdjustmentStep <= 0 {
		params.MaxAdjustmentStep = 0.10
	}
	normalizeWeights(params.Weights)

	return &Coordinator{
		strategies: strategies,
		params:     params,
		state:      st,
		round:      Idle,
		banned:     make(map[string]uint64),
	}, nil
}

// Parameters returns a copy of the current hybrid parameters.
func (c *Coordinator) Parameters() Parameters {
	c.mu.Lock()
	defer c.mu.Unlock()

	weights := make(map[string]float64, len(c.params.Weights))
	for name, w := range c.params.Weights {
		weights[name] = w
	}
	return Parameters{
		Weights:           weights,
		Quorum:            c.params.Quorum,
		MaxAdjustmentStep: c.params.MaxAdjustmentStep,
	}
}

// Round reports the current round state.
func (c *Coordinator) Round() RoundState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.round
}

// SelectProposer queries every weighted strategy, combines the candidate
// scores by the configured weights and picks the highest combined score,
// ties broken by lowest proposer identifier. Proposers banned after a
// rejected block are filtered out for one round.
func (c *Coordinator) SelectProposer(candidates []Candidate) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.transition(ProposerSelected); err != nil {
		return "", err
	}

	eligible := make([]Candidate, 0, len(candidates))
	for _, cand := range candidates {
		if until, ok := c.banned[cand.Address]; ok {
			if c.roundNum <= until {
				continue
			}
			delete(c.banned, cand.Address)
		}
		eligible = append(eligible, cand)
	}
	if len(eligible) == 0 {
		c.round = Idle
		return "", ErrNoEligibleCandidate
	}

	combined := make(map[string]float64, len(eligible))
	for _, s := range c.strategies {
		weight := c.params.Weights[s.Name()]
		if weight == 0 {
			continue
		}
		scores, err := s.ScoreCandidates(eligible)
		if err != nil {
			log.Printf("strategy %s scored no candidates: %v", s.Name(), err)
			continue
		}
		for addr, score := range normalizeScores(scores) {
			combined[addr] += weight * score
		}
	}
	if len(combined) == 0 {
		c.round = Idle
		return "", ErrNoEligibleCandidate
	}

	winner, err := bestScored(combined)
	if err != nil {
		c.round = Idle
		return "", err
	}
	return winner, nil
}

// ProposeBlock aggregates the transaction signatures into one proof and
// lets the dominant strategy assemble the block. When the work strategy
// carries weight without being dominant, the block is still mined so it
// passes work's share of the validation quorum.
func (c *Coordinator) ProposeBlock(tip *types.Block, txs []*types.Transaction, proposer string) (*types.Block, error) {
	c.mu.Lock()
	if until, ok := c.banned[proposer]; ok && c.roundNum <= until {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s banned through round %d", ErrProposerIneligible, proposer, until)
	}
	dominant := c.dominantStrategyLocked()
	var work *WorkStrategy
	if dominant.Name() != "work" && c.params.Weights["work"] > 0 {
		for _, s := range c.strategies {
			if ws, ok := s.(*WorkStrategy); ok {
				work = ws
				break
			}
		}
	}
	c.mu.Unlock()

	proof, err := aggregateSignatures(txs)
	if err != nil {
		return nil, err
	}

	block, err := dominant.Propose(tip, txs, proposer, proof)
	if err != nil {
		return nil, err
	}
	if work != nil {
		if err := work.Mine(block); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.transition(BlockProposed); err != nil {
		return nil, err
	}
	return block, nil
}

// ValidateBlock requires agreement from a quorum of enabled strategies;
// by default every one of them must accept. A rejected block sends the
// round back to Idle and marks the proposer ineligible for one round.
func (c *Coordinator) ValidateBlock(block *types.Block) error {
	c.mu.Lock()
	if err := c.transition(Validating); err != nil {
		c.mu.Unlock()
		return err
	}

	enabled := make([]Strategy, 0, len(c.strategies))
	for _, s := range c.strategies {
		if c.params.Weights[s.Name()] > 0 {
			enabled = append(enabled, s)
		}
	}
	quorum := c.params.Quorum
	if quorum <= 0 || quorum > len(enabled) {
		quorum = len(enabled)
	}
	c.mu.Unlock()

	accepts := 0
	var firstErr error
	for _, s := range enabled {
		if err := s.Validate(block); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("strategy %s rejected block: %w", s.Name(), err)
			}
			continue
		}
		accepts++
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if accepts < quorum {
		c.round = Rejected
		c.banned[block.Proposer] = c.roundNum + 1
		c.round = Idle
		c.roundNum++
		if firstErr != nil {
			return firstErr
		}
		return fmt.Errorf("block accepted by %d of %d strategies, quorum is %d", accepts, len(enabled), quorum)
	}

	c.round = Committed
	return nil
}

// AbortRound abandons an in-flight round after a proposal or commit
// failure and returns to Idle without penalizing the proposer.
func (c *Coordinator) AbortRound() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.round != Idle {
		c.round = Idle
		c.roundNum++
	}
}

// FinalizeRound closes a committed round and starts the next one.
func (c *Coordinator) FinalizeRound() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.round == Committed {
		c.round = Idle
		c.roundNum++
	}
}

// DistributeRewards invokes each enabled strategy's reward function and
// credits the proposer once with the summed contribution.
func (c *Coordinator) DistributeRewards(block *types.Block) (amount.Amount, error) {
	c.mu.Lock()
	enabled := make([]Strategy, 0, len(c.strategies))
	for _, s := range c.strategies {
		if c.params.Weights[s.Name()] > 0 {
			enabled = append(enabled, s)
		}
	}
	c.mu.Unlock()

	total := amount.Amount(0)
	for _, s := range enabled {
		total += s.ComputeReward(block)
	}
	if total == 0 {
		return 0, nil
	}

	if err := c.state.Credit(block.Proposer, total); err != nil {
		return 0, fmt.Errorf("failed to credit block reward: %v", err)
	}
	return total, nil
}

// AdjustParameters recomputes the strategy weights from observed network
// conditions. No single adjustment moves a weight by more than the
// configured maximum step.
func (c *Coordinator) AdjustParameters(obs Observations) {
	c.mu.Lock()
	defer c.mu.Unlock()

	desired := c.desiredWeights(obs)

	for name, current := range c.params.Weights {
		target := desired[name]
		delta := target - current
		if delta > c.params.MaxAdjustmentStep {
			delta = c.params.MaxAdjustmentStep
		}
		if delta < -c.params.MaxAdjustmentStep {
			delta = -c.params.MaxAdjustmentStep
		}
		next := current + delta
		if next < 0 {
			next = 0
		}
		c.params.Weights[name] = next
	}
	normalizeWeights(c.params.Weights)
}

// desiredWeights maps observations to target weights: unstable block
// intervals favor stake, concentrated stake favors work, and a greener
// validator population favors the energy strategy.
func (c *Coordinator) desiredWeights(obs Observations) map[string]float64 {
	desired := make(map[string]float64, len(c.params.Weights))
	for name := range c.params.Weights {
		base := 1.0
		switch name {
		case "stake":
			base += obs.BlockIntervalVariance
		case "delegated":
			base += obs.BlockIntervalVariance / 2
		case "work":
			base += obs.StakeConcentration
		case "energy":
			base += obs.AggregateEnergyScore
		}
		desired[name] = base
	}
	normalizeWeights(desired)
	return desired
}

// ChooseFork resolves divergent chains by greater cumulative validated
// weight under the current strategy mix, not by length. Ties fall back to
// the longer chain, then to the lower tip hash.
func (c *Coordinator) ChooseFork(a, b []*types.Block) []*types.Block {
	wa := c.CumulativeWeight(a)
	wb := c.CumulativeWeight(b)

	switch {
	case wa > wb:
		return a
	case wb > wa:
		return b
	case len(a) != len(b):
		if len(a) > len(b) {
			return a
		}
		return b
	}

	if len(a) == 0 {
		return b
	}
	if a[len(a)-1].Hash.String() <= b[len(b)-1].Hash.String() {
		return a
	}
	return b
}

// CumulativeWeight sums per-block validated weight: the proposer's stake
// under the stake weight plus the satisfied work difficulty under the
// work weight.
func (c *Coordinator) CumulativeWeight(blocks []*types.Block) float64 {
	c.mu.Lock()
	wStake := c.params.Weights["stake"] + c.params.Weights["delegated"]
	wWork := c.params.Weights["work"]
	c.mu.Unlock()

	total := 0.0
	for _, b := range blocks {
		total += wStake * float64(c.state.GetStaked(b.Proposer))
		if b.Difficulty > 0 {
			// A lower target is harder, so invert it into a work score.
			total += wWork * (1.0 / float64(b.Difficulty) * 1e18)
		}
	}
	return total
}

func (c *Coordinator) dominantStrategyLocked() Strategy {
	best := c.strategies[0]
	for _, s := range c.strategies[1:] {
		if c.params.Weights[s.Name()] > c.params.Weights[best.Name()] {
			best = s
		}
	}
	return best
}

func (c *Coordinator) transition(to RoundState) error {
	if !c.round.canTransition(to) {
		return fmt.Errorf("invalid round transition %s -> %s", c.round, to)
	}
	c.round = to
	return nil
}

// aggregateSignatures batches the per-transaction signatures of one block
// into a single proof.
func aggregateSignatures(txs []*types.Transaction) (*aggregate.Proof, error) {
	if len(txs) == 0 {
		return nil, nil
	}
	agg := aggregate.NewAggregator()
	for _, tx := range txs {
		agg.Add(crypto.NewSignature(tx.Signature))
	}
	return agg.Aggregate()
}

func normalizeWeights(weights map[string]float64) {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		for name := range weights {
			weights[name] = 1.0 / float64(len(weights))
		}
		return
	}
	for name := range weights {
		weights[name] /= total
	}
}
