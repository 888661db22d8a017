package consensus

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/quantumfuse-labs/quantumfuse/amount"
	"github.com/quantumfuse-labs/quantumfuse/chain"
	"github.com/quantumfuse-labs/quantumfuse/crypto/aggregate"
	"github.com/quantumfuse-labs/quantumfuse/crypto/hash"
	"github.com/quantumfuse-labs/quantumfuse/types"
)

const (
	// maxNonceAttempts bounds the search so Propose always terminates.
	maxNonceAttempts = 1 << 22

	// difficultyWindow is the number of blocks between retargets.
	difficultyWindow = 16
)

// WorkStrategy admits the block whose header digest, interpreted over its
// first eight bytes, falls below the difficulty target. A lower target is
// harder.
type WorkStrategy struct {
	mu sync.Mutex

	target         uint64
	targetInterval time.Duration
	lastAdjustment time.Time
	baseReward     amount.Amount
}

func NewWorkStrategy(target uint64, targetInterval time.Duration, baseReward amount.Amount) *WorkStrategy {
	return &WorkStrategy{
		target:         target,
		targetInterval: targetInterval,
		lastAdjustment: time.Now(),
		baseReward:     baseReward,
	}
}

func (w *WorkStrategy) Name() string { return "work" }

// Target returns the current difficulty target.
func (w *WorkStrategy) Target() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.target
}

// SelectProposer picks the candidate with the highest observed work rate;
// in a live network the winner is simply whoever finds a nonce first.
func (w *WorkStrategy) SelectProposer(candidates []Candidate) (string, error) {
	scores, err := w.ScoreCandidates(candidates)
	if err != nil {
		return "", err
	}
	return bestScored(scores)
}

func (w *WorkStrategy) ScoreCandidates(candidates []Candidate) (map[string]float64, error) {
	if len(candidates) == 0 {
		return nil, ErrNoEligibleCandidate
	}
	scores := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		scores[c.Address] = c.WorkRate
	}
	return scores, nil
}

// Propose assembles a block and searches for a nonce satisfying the
// current target.
func (w *WorkStrategy) Propose(tip *types.Block, txs []*types.Transaction, proposer string, proof *aggregate.Proof) (*types.Block, error) {
	block, err := chain.NewBlock(tip.Index+1, tip.Hash, txs, proposer, proof)
	if err != nil {
		return nil, err
	}
	if err := w.Mine(block); err != nil {
		return nil, err
	}
	return block, nil
}

// Mine stamps the block with the current target and searches for a nonce
// satisfying it, recomputing the block hash as it goes. The block is left
// with the winning nonce and hash.
func (w *WorkStrategy) Mine(block *types.Block) error {
	w.mu.Lock()
	target := w.target
	w.mu.Unlock()

	block.Difficulty = target
	for nonce := uint64(0); nonce < maxNonceAttempts; nonce++ {
		block.Nonce = nonce
		if err := chain.ComputeBlockHash(block); err != nil {
			return err
		}
		if headerValue(block.Hash) < target {
			return nil
		}
	}
	return fmt.Errorf("no nonce found below target %d within budget", target)
}

// Validate recomputes the digest and checks it against the target the
// block was mined at, rejecting any block mined easier than the current
// target.
func (w *WorkStrategy) Validate(block *types.Block) error {
	if err := chain.VerifyBlockHash(block); err != nil {
		return err
	}

	w.mu.Lock()
	target := w.target
	w.mu.Unlock()

	if block.Difficulty > target {
		return fmt.Errorf("block difficulty target %d easier than required %d", block.Difficulty, target)
	}
	if headerValue(block.Hash) >= block.Difficulty {
		return fmt.Errorf("block hash does not satisfy difficulty target %d", block.Difficulty)
	}
	return nil
}

func (w *WorkStrategy) ComputeReward(block *types.Block) amount.Amount {
	return w.baseReward
}

// AdjustDifficulty retargets every difficultyWindow blocks so the mean
// block interval tracks the configured target. The step is clamped to
// [1/4, 4] per adjustment.
func (w *WorkStrategy) AdjustDifficulty(blocks []*types.Block) {
	if len(blocks) < difficultyWindow+1 {
		return
	}

	window := blocks[len(blocks)-difficultyWindow-1:]
	elapsed := time.Duration(window[len(window)-1].Timestamp-window[0].Timestamp) * time.Second
	expected := w.targetInterval * difficultyWindow

	ratio := float64(elapsed) / float64(expected)
	if ratio < 0.25 {
		ratio = 0.25
	}
	if ratio > 4.0 {
		ratio = 4.0
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	// Blocks arriving too fast shrink the target (harder); too slow
	// grows it (easier).
	w.target = uint64(float64(w.target) * ratio)
	if w.target == 0 {
		w.target = 1
	}
	w.lastAdjustment = time.Now()
}

// headerValue interprets the leading eight bytes of a block hash as the
// value compared against the difficulty target.
func headerValue(h hash.Hash) uint64 {
	return binary.BigEndian.Uint64(h[:8])
}

// bestScored returns the highest-scored address, ties broken by lowest
// address.
func bestScored(scores map[string]float64) (string, error) {
	if len(scores) == 0 {
		return "", ErrNoEligibleCandidate
	}

	addrs := make([]string, 0, len(scores))
	for addr := range scores {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	best := addrs[0]
	for _, addr := range addrs[1:] {
		if scores[addr] > scores[best] {
			best = addr
		}
	}
	return best, nil
}
