// Population registry: the canonical live set, bucketed by category so
// membership and counts are O(1), plus the staging buffer for new larvae.
package engine

import (
	"fmt"

	"github.com/talgya/malaria-world/internal/agents"
	"github.com/talgya/malaria-world/internal/world"
)

// Category partitions the live population for aggregate counts.
type Category struct {
	Kind  agents.Kind
	SEIR  agents.SEIR
	Stage agents.LifeStage
}

// CategoryOf returns the bucket a currently belongs in.
func CategoryOf(a agents.Agent) Category {
	switch v := a.(type) {
	case *agents.Human:
		return Category{Kind: agents.KindHuman, SEIR: v.SEIR}
	case *agents.Mosquito:
		return Category{Kind: agents.KindMosquito, SEIR: v.SEIR, Stage: v.Stage}
	default:
		return Category{Kind: a.Kind()}
	}
}

type staged struct {
	agent agents.Agent
	at    world.Coord
}

// Registry owns every live agent.
type Registry struct {
	all      map[agents.AgentID]agents.Agent
	list     []agents.Agent // live agents, order stable between removals
	slot     map[agents.AgentID]int
	category map[agents.AgentID]Category
	buckets  map[Category]map[agents.AgentID]agents.Agent
	kinds    [4]int

	pending []staged
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		all:      make(map[agents.AgentID]agents.Agent),
		slot:     make(map[agents.AgentID]int),
		category: make(map[agents.AgentID]Category),
		buckets:  make(map[Category]map[agents.AgentID]agents.Agent),
	}
}

// Add registers a live agent. Registering an ID twice panics.
func (r *Registry) Add(a agents.Agent) {
	id := a.ID()
	if _, ok := r.all[id]; ok {
		panic(fmt.Sprintf("engine: agent %s registered twice", id))
	}
	r.all[id] = a
	r.slot[id] = len(r.list)
	r.list = append(r.list, a)
	r.kinds[a.Kind()]++
	r.file(id, a, CategoryOf(a))
}

// Remove deregisters a. Removing an unknown agent panics.
func (r *Registry) Remove(a agents.Agent) {
	id := a.ID()
	if _, ok := r.all[id]; !ok {
		panic(fmt.Sprintf("engine: agent %s is not live", id))
	}
	r.unfile(id)
	i := r.slot[id]
	last := len(r.list) - 1
	r.list[i] = r.list[last]
	r.slot[r.list[i].ID()] = i
	r.list[last] = nil
	r.list = r.list[:last]
	delete(r.slot, id)
	delete(r.all, id)
	delete(r.category, id)
	r.kinds[a.Kind()]--
}

// Reclassify moves a to the bucket matching its current state.
func (r *Registry) Reclassify(a agents.Agent) {
	id := a.ID()
	if _, ok := r.all[id]; !ok {
		panic(fmt.Sprintf("engine: reclassify of dead agent %s", id))
	}
	cat := CategoryOf(a)
	if r.category[id] == cat {
		return
	}
	r.unfile(id)
	r.file(id, a, cat)
}

// Alive reports whether id is in the live set.
func (r *Registry) Alive(id agents.AgentID) bool {
	_, ok := r.all[id]
	return ok
}

// Get returns the live agent with id, or nil.
func (r *Registry) Get(id agents.AgentID) agents.Agent {
	return r.all[id]
}

// Len returns the size of the live set.
func (r *Registry) Len() int {
	return len(r.all)
}

// CountKind returns the number of live agents of kind k.
func (r *Registry) CountKind(k agents.Kind) int {
	return r.kinds[k]
}

// Count returns the number of live agents in cat.
func (r *Registry) Count(cat Category) int {
	return len(r.buckets[cat])
}

// Snapshot returns a copy of the live set. The order depends only on the
// history of additions and removals, so seeded runs repeat.
func (r *Registry) Snapshot() []agents.Agent {
	return append([]agents.Agent(nil), r.list...)
}

// Stage buffers an agent born mid-tick.
func (r *Registry) Stage(a agents.Agent, at world.Coord) {
	r.pending = append(r.pending, staged{agent: a, at: at})
}

// Pending returns the number of staged agents.
func (r *Registry) Pending() int {
	return len(r.pending)
}

// Flush registers every staged agent, places it on g and empties the buffer.
// It returns the number spliced in.
func (r *Registry) Flush(g *agents.Grid) int {
	n := len(r.pending)
	for _, s := range r.pending {
		r.Add(s.agent)
		g.Place(s.agent, s.at)
	}
	clear(r.pending)
	r.pending = r.pending[:0]
	return n
}

func (r *Registry) file(id agents.AgentID, a agents.Agent, cat Category) {
	b, ok := r.buckets[cat]
	if !ok {
		b = make(map[agents.AgentID]agents.Agent)
		r.buckets[cat] = b
	}
	b[id] = a
	r.category[id] = cat
}

func (r *Registry) unfile(id agents.AgentID) {
	if b, ok := r.buckets[r.category[id]]; ok {
		delete(b, id)
	}
}
