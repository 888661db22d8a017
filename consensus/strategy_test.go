package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumfuse-labs/quantumfuse/amount"
	"github.com/quantumfuse-labs/quantumfuse/chain"
	"github.com/quantumfuse-labs/quantumfuse/state"
	"github.com/quantumfuse-labs/quantumfuse/types"
)

func genesisTip(t *testing.T, st *state.Manager) *types.Block {
	t.Helper()
	l, err := chain.NewLedger(st, nil)
	require.NoError(t, err)
	return l.Tip()
}

func TestWorkProposeAndValidate(t *testing.T) {
	st := state.NewManager()
	w := NewWorkStrategy(easyTarget, 10*time.Second, 10)

	block, err := w.Propose(genesisTip(t, st), nil, "qf1miner", nil)
	require.NoError(t, err)

	assert.Equal(t, easyTarget, block.Difficulty)
	assert.NoError(t, w.Validate(block))

	// A remined nonce invalidates the declared hash.
	block.Nonce++
	assert.Error(t, w.Validate(block))
}

func TestWorkValidateRejectsEasierTarget(t *testing.T) {
	st := state.NewManager()
	lenient := NewWorkStrategy(easyTarget*4, 10*time.Second, 10)
	strict := NewWorkStrategy(easyTarget, 10*time.Second, 10)

	block, err := lenient.Propose(genesisTip(t, st), nil, "qf1miner", nil)
	require.NoError(t, err)

	// A block mined against an easier target than the network's must not
	// validate.
	assert.Error(t, strict.Validate(block))
}

func TestWorkAdjustDifficulty(t *testing.T) {
	w := NewWorkStrategy(1<<32, 10*time.Second, 10)

	// Seventeen blocks arriving one second apart: sixteen times faster
	// than the target interval, clamped to a 4x tightening.
	blocks := make([]*types.Block, difficultyWindow+1)
	for i := range blocks {
		blocks[i] = &types.Block{Index: int64(i), Timestamp: int64(i)}
	}
	w.AdjustDifficulty(blocks)
	assert.Equal(t, uint64(1<<30), w.Target())
}

func TestStakeSelectProposerEligibility(t *testing.T) {
	st := state.NewManager()
	s := NewStakeStrategy(st, 100, 10)

	candidates := []Candidate{
		{Address: "qf1whale", Stake: 500},
		{Address: "qf1minnow", Stake: 10},
	}

	// Only the whale is eligible; the draw must always land on it.
	for i := 0; i < 10; i++ {
		proposer, err := s.SelectProposer(candidates)
		require.NoError(t, err)
		assert.Equal(t, "qf1whale", proposer)
	}

	_, err := s.SelectProposer([]Candidate{{Address: "qf1minnow", Stake: 10}})
	assert.ErrorIs(t, err, ErrNoEligibleCandidate)
}

func TestStakeProposeRequiresMinimumStake(t *testing.T) {
	st := state.NewManager()
	require.NoError(t, st.Credit("qf1poor", 50))

	s := NewStakeStrategy(st, 100, 10)
	_, err := s.Propose(genesisTip(t, st), nil, "qf1poor", nil)
	assert.ErrorIs(t, err, ErrProposerIneligible)
}

func TestEnergyScoreClampedAndGated(t *testing.T) {
	e := NewEnergyStrategy(0.3, amount.Amount(100))

	e.SetScore("qf1green", 1.5)
	assert.Equal(t, 1.0, e.Score("qf1green"))
	e.SetScore("qf1dirty", -2)
	assert.Equal(t, 0.0, e.Score("qf1dirty"))

	scores, err := e.ScoreCandidates([]Candidate{
		{Address: "qf1green"},
		{Address: "qf1dirty"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, scores["qf1green"])
	// Below the threshold scores to zero regardless of the raw value.
	assert.Equal(t, 0.0, scores["qf1dirty"])
}

func TestEnergyRewardScalesWithScore(t *testing.T) {
	e := NewEnergyStrategy(0.2, amount.Amount(100))
	e.SetScore("qf1half", 0.5)

	reward := e.ComputeReward(&types.Block{Proposer: "qf1half"})
	assert.Equal(t, amount.Amount(50), reward)
}

func TestEnergySelectProposerPrefersGreener(t *testing.T) {
	e := NewEnergyStrategy(0.2, amount.Amount(100))
	e.SetScore("qf1a", 0.4)
	e.SetScore("qf1b", 0.9)

	proposer, err := e.SelectProposer([]Candidate{{Address: "qf1a"}, {Address: "qf1b"}})
	require.NoError(t, err)
	assert.Equal(t, "qf1b", proposer)

	_, err = e.SelectProposer([]Candidate{{Address: "qf1unknown"}})
	assert.ErrorIs(t, err, ErrNoEligibleCandidate)
}

func TestRoundStateTransitions(t *testing.T) {
	assert.True(t, Idle.canTransition(ProposerSelected))
	assert.True(t, ProposerSelected.canTransition(BlockProposed))
	assert.True(t, Validating.canTransition(Committed))
	assert.True(t, Validating.canTransition(Rejected))
	assert.True(t, Rejected.canTransition(Idle))

	assert.False(t, Idle.canTransition(Committed))
	assert.False(t, Committed.canTransition(Validating))
	assert.False(t, BlockProposed.canTransition(Idle))
}
