package checkpoint

import "fmt"

// Graph is an immutable name-indexed snapshot of the store. Chain
// resolution walks the snapshot, never the live directory.
type Graph struct {
	byName  map[string]*Checkpoint
	ordered []*Checkpoint
}

// NewGraph indexes checkpoints. The input is re-sorted newest first.
func NewGraph(checkpoints []*Checkpoint) *Graph {
	ordered := make([]*Checkpoint, len(checkpoints))
	copy(ordered, checkpoints)
	sortNewestFirst(ordered)

	byName := make(map[string]*Checkpoint, len(ordered))
	for _, cp := range ordered {
		byName[cp.Name] = cp
	}

	return &Graph{byName: byName, ordered: ordered}
}

// Len returns the number of checkpoints.
func (g *Graph) Len() int {
	return len(g.ordered)
}

// Checkpoints returns every checkpoint, newest first.
func (g *Graph) Checkpoints() []*Checkpoint {
	return g.ordered
}

// Latest returns the newest checkpoint or nil.
func (g *Graph) Latest() *Checkpoint {
	if len(g.ordered) == 0 {
		return nil
	}

	return g.ordered[0]
}

// Get looks up a checkpoint by name.
func (g *Graph) Get(name string) (*Checkpoint, bool) {
	cp, ok := g.byName[name]

	return cp, ok
}

// Resolve returns the restore chain of name, FULL root first.
// It fails with ErrNotFound for an unknown name and with a *ChainError when
// a base is missing or base references loop.
func (g *Graph) Resolve(name string) (Chain, error) {
	target, ok := g.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	chain := Chain{target}
	seen := map[string]bool{name: true}

	for chain[0].Kind == KindIncremental {
		baseName := chain[0].Base

		if seen[baseName] {
			return nil, &ChainError{Target: name, Missing: baseName, Cycle: true}
		}

		base, found := g.byName[baseName]
		if !found {
			return nil, &ChainError{Target: name, Missing: baseName}
		}

		seen[baseName] = true
		chain = append(Chain{base}, chain...)
	}

	return chain, nil
}

// Members returns the names on the chain of name as far as it resolves,
// including name itself. Unlike Resolve it never fails.
func (g *Graph) Members(name string) []string {
	var members []string

	seen := map[string]bool{}

	for cp, ok := g.byName[name]; ok && !seen[cp.Name]; cp, ok = g.byName[cp.Base] {
		seen[cp.Name] = true
		members = append(members, cp.Name)

		if cp.Kind != KindIncremental {
			break
		}
	}

	return members
}
