package consensus

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantumfuse-labs/quantumfuse/amount"
	"github.com/quantumfuse-labs/quantumfuse/chain"
	"github.com/quantumfuse-labs/quantumfuse/crypto/aggregate"
	"github.com/quantumfuse-labs/quantumfuse/state"
	"github.com/quantumfuse-labs/quantumfuse/types"
)

// DelegatedStrategy rotates block proposal among a bounded set of
// delegates ordered by delegated weight, and carries the governance
// sub-protocol: proposals are voted on with delegated weight.
type DelegatedStrategy struct {
	mu sync.Mutex

	state        *state.Manager
	maxDelegates int
	baseReward   amount.Amount

	// rotation is the weight-ordered round-robin cursor.
	rotation int

	proposals map[string]*Proposal
}

// Proposal is a governance item voted on by delegated weight.
type Proposal struct {
	ID          string
	Title       string
	Description string
	Submitter   string
	SubmittedAt int64

	votes   map[string]bool          // voter -> approve
	weights map[string]amount.Amount // voter -> weight at vote time
}

// Tally reports the delegated weight approving and rejecting the
// proposal.
func (p *Proposal) Tally() (approve, reject amount.Amount) {
	for voter, ok := range p.votes {
		if ok {
			approve += p.weights[voter]
		} else {
			reject += p.weights[voter]
		}
	}
	return approve, reject
}

func NewDelegatedStrategy(st *state.Manager, maxDelegates int, baseReward amount.Amount) *DelegatedStrategy {
	if maxDelegates < 1 {
		maxDelegates = 1
	}
	return &DelegatedStrategy{
		state:        st,
		maxDelegates: maxDelegates,
		baseReward:   baseReward,
		proposals:    make(map[string]*Proposal),
	}
}

func (d *DelegatedStrategy) Name() string { return "delegated" }

// Delegates returns the active delegate set: the top addresses by
// delegated weight, bounded by the configured size, ordered by weight
// (ties by lowest address).
func (d *DelegatedStrategy) Delegates() []string {
	weights := d.state.DelegatedWeight()

	addrs := make([]string, 0, len(weights))
	for addr := range weights {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		if weights[addrs[i]] != weights[addrs[j]] {
			return weights[addrs[i]] > weights[addrs[j]]
		}
		return addrs[i] < addrs[j]
	})

	if len(addrs) > d.maxDelegates {
		addrs = addrs[:d.maxDelegates]
	}
	return addrs
}

// SelectProposer rotates among the delegates by weight-ordered round
// robin.
func (d *DelegatedStrategy) SelectProposer(candidates []Candidate) (string, error) {
	delegates := d.Delegates()
	if len(delegates) == 0 {
		return "", ErrNoEligibleCandidate
	}

	// Restrict rotation to delegates present among the candidates so the
	// coordinator's eligibility filtering is honored.
	present := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		present[c.Address] = struct{}{}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for i := 0; i < len(delegates); i++ {
		pick := delegates[(d.rotation+i)%len(delegates)]
		if _, ok := present[pick]; ok {
			d.rotation = (d.rotation + i + 1) % len(delegates)
			return pick, nil
		}
	}
	return "", ErrNoEligibleCandidate
}

func (d *DelegatedStrategy) ScoreCandidates(candidates []Candidate) (map[string]float64, error) {
	if len(candidates) == 0 {
		return nil, ErrNoEligibleCandidate
	}

	delegates := d.Delegates()
	rank := make(map[string]int, len(delegates))
	for i, addr := range delegates {
		rank[addr] = i
	}

	d.mu.Lock()
	scheduled := ""
	if len(delegates) > 0 {
		scheduled = delegates[d.rotation%len(delegates)]
	}
	d.mu.Unlock()

	scores := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		if _, ok := rank[c.Address]; !ok {
			scores[c.Address] = 0
			continue
		}
		scores[c.Address] = float64(c.Delegated)
		if c.Address == scheduled {
			// The scheduled delegate wins among peers of equal weight.
			scores[c.Address] *= 1.5
		}
	}
	return scores, nil
}

func (d *DelegatedStrategy) Propose(tip *types.Block, txs []*types.Transaction, proposer string, proof *aggregate.Proof) (*types.Block, error) {
	if !d.isDelegate(proposer) {
		return nil, fmt.Errorf("%w: %s is not an active delegate", ErrProposerIneligible, proposer)
	}
	return chain.NewBlock(tip.Index+1, tip.Hash, txs, proposer, proof)
}

// Validate rejects blocks proposed by anyone outside the active delegate
// set.
func (d *DelegatedStrategy) Validate(block *types.Block) error {
	if !d.isDelegate(block.Proposer) {
		return fmt.Errorf("proposer %s is not an active delegate", block.Proposer)
	}
	return nil
}

func (d *DelegatedStrategy) ComputeReward(block *types.Block) amount.Amount {
	return d.baseReward
}

func (d *DelegatedStrategy) isDelegate(address string) bool {
	for _, addr := range d.Delegates() {
		if addr == address {
			return true
		}
	}
	return false
}

// SubmitProposal registers a governance proposal and returns its id.
func (d *DelegatedStrategy) SubmitProposal(submitter, title, description string) string {
	p := &Proposal{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Submitter:   submitter,
		SubmittedAt: time.Now().Unix(),
		votes:       make(map[string]bool),
		weights:     make(map[string]amount.Amount),
	}

	d.mu.Lock()
	d.proposals[p.ID] = p
	d.mu.Unlock()

	return p.ID
}

// Vote records a voter's approval or rejection, weighted by the stake
// delegated to them. Voters with no delegated stake fail with
// ErrInsufficientWeight. A repeat vote replaces the previous one.
func (d *DelegatedStrategy) Vote(voter, proposalID string, approve bool) error {
	weight := d.state.DelegatedWeight()[voter]
	if weight == 0 {
		return fmt.Errorf("%w: %s", ErrInsufficientWeight, voter)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.proposals[proposalID]
	if !ok {
		return fmt.Errorf("unknown proposal %s", proposalID)
	}

	p.votes[voter] = approve
	p.weights[voter] = weight
	return nil
}

// GetProposal looks up a governance proposal by id.
func (d *DelegatedStrategy) GetProposal(proposalID string) (*Proposal, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.proposals[proposalID]
	return p, ok
}
