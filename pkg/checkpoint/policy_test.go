package checkpoint_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/rewind/pkg/checkpoint"
)

func chainOf(n int) checkpoint.Chain {
	chain := checkpoint.Chain{{Name: "full", Kind: checkpoint.KindFull}}
	for i := 1; i < n; i++ {
		chain = append(chain, &checkpoint.Checkpoint{Name: "inc", Kind: checkpoint.KindIncremental})
	}

	return chain
}

func TestPolicy_SelectKind(t *testing.T) {
	t.Parallel()

	last := &checkpoint.Checkpoint{Name: "last", Kind: checkpoint.KindIncremental, Files: make([]string, 10)}

	policy := checkpoint.DefaultPolicy()
	policy.FullInterval = 5
	policy.MaxChainLength = 3

	disabled := policy
	disabled.Incremental = false

	tests := []struct {
		name   string
		policy checkpoint.Policy
		in     checkpoint.SelectionInput
		want   checkpoint.Kind
	}{
		{"no prior checkpoint", policy, checkpoint.SelectionInput{Files: 3}, checkpoint.KindFull},
		{"forced", policy, checkpoint.SelectionInput{ForceFull: true, Last: last, LastChain: chainOf(1), Changed: 1, Files: 10}, checkpoint.KindFull},
		{"incremental disabled", disabled, checkpoint.SelectionInput{Last: last, LastChain: chainOf(1), Changed: 1, Files: 10}, checkpoint.KindFull},
		{"unrestorable prior", policy, checkpoint.SelectionInput{Last: last, Changed: 1, Files: 10}, checkpoint.KindFull},
		{"small change", policy, checkpoint.SelectionInput{Last: last, LastChain: chainOf(1), Changed: 1, Files: 10}, checkpoint.KindIncremental},
		{"below chain bound", policy, checkpoint.SelectionInput{Last: last, LastChain: chainOf(3), Changed: 1, Files: 10}, checkpoint.KindIncremental},
		{"chain bound reached", policy, checkpoint.SelectionInput{Last: last, LastChain: chainOf(4), Changed: 1, Files: 10}, checkpoint.KindFull},
		{"ratio at limit", policy, checkpoint.SelectionInput{Last: last, LastChain: chainOf(1), Changed: 5, Files: 10}, checkpoint.KindIncremental},
		{"ratio exceeded", policy, checkpoint.SelectionInput{Last: last, LastChain: chainOf(1), Changed: 6, Files: 10}, checkpoint.KindFull},
		{"growth widens ratio", policy, checkpoint.SelectionInput{Last: last, LastChain: chainOf(1), Changed: 6, Files: 12}, checkpoint.KindIncremental},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, tt.policy.SelectKind(tt.in))
		})
	}
}

func TestPolicy_FullInterval(t *testing.T) {
	t.Parallel()

	policy := checkpoint.DefaultPolicy()
	policy.FullInterval = 2
	policy.MaxChainLength = 0

	last := &checkpoint.Checkpoint{Name: "last", Files: make([]string, 100)}

	in := checkpoint.SelectionInput{Last: last, LastChain: chainOf(2), Changed: 1, Files: 100}
	assert.Equal(t, checkpoint.KindIncremental, policy.SelectKind(in))
	assert.Equal(t, 1, in.IncrementalsSinceFull())

	in.LastChain = chainOf(3)
	assert.Equal(t, checkpoint.KindFull, policy.SelectKind(in))
}
