package engine

import (
	"github.com/shreyachakravarty07/AgentTrace/pkg/models"
)

// Graph is the adjacency and indegree view of a workflow, keyed over exactly
// the input agent ids.
type Graph struct {
	// Agent ids in the order the agents were supplied.
	IDs []string
	// Successor ids per agent, in edge insertion order.
	Successors map[string][]string
	// Incoming edge count per agent.
	InDegree map[string]int
}

// Build validates agents and edges and returns the graph. Agent ids must be
// non-empty and distinct, and every edge endpoint must name a supplied agent.
func Build(agents []models.Agent, edges []models.Dependency) (*Graph, error) {
	g := &Graph{
		IDs:        make([]string, 0, len(agents)),
		Successors: make(map[string][]string, len(agents)),
		InDegree:   make(map[string]int, len(agents)),
	}
	for _, a := range agents {
		if a.ID == "" {
			return nil, newValidationError(CodeEmptyAgentID, "", "agent id cannot be empty")
		}
		if _, ok := g.InDegree[a.ID]; ok {
			return nil, newValidationError(CodeDuplicateAgent, a.ID, "agent '%s' is defined more than once", a.ID)
		}
		g.IDs = append(g.IDs, a.ID)
		g.InDegree[a.ID] = 0
	}

	for _, e := range edges {
		if e.Source == e.Target {
			return nil, newValidationError(CodeSelfLoop, e.Source, "agent '%s' cannot depend on itself", e.Source)
		}
		if _, ok := g.InDegree[e.Source]; !ok {
			return nil, newValidationError(CodeUnknownAgent, e.Source,
				"dependency %s -> %s references unknown agent '%s'", e.Source, e.Target, e.Source)
		}
		if _, ok := g.InDegree[e.Target]; !ok {
			return nil, newValidationError(CodeUnknownAgent, e.Target,
				"dependency %s -> %s references unknown agent '%s'", e.Source, e.Target, e.Target)
		}
		g.Successors[e.Source] = append(g.Successors[e.Source], e.Target)
		g.InDegree[e.Target]++
	}
	return g, nil
}

// Schedule computes a topological order with Kahn's algorithm. Ready agents
// are queued FIFO, seeded in agent insertion order, so ties are broken by
// the order agents were added. The graph is not modified.
func Schedule(g *Graph) ([]string, error) {
	inDegree := make(map[string]int, len(g.InDegree))
	for id, n := range g.InDegree {
		inDegree[id] = n
	}

	queue := make([]string, 0, len(g.IDs))
	for _, id := range g.IDs {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(g.IDs))
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		order = append(order, curr)

		for _, next := range g.Successors[curr] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(g.IDs) {
		scheduled := make(map[string]struct{}, len(order))
		for _, id := range order {
			scheduled[id] = struct{}{}
		}
		var rest []string
		for _, id := range g.IDs {
			if _, ok := scheduled[id]; !ok {
				rest = append(rest, id)
			}
		}
		return nil, &CycleDetectedError{Unscheduled: rest}
	}
	return order, nil
}

// Predecessors returns, for each agent, the ids feeding it in the order the
// edges were added.
func Predecessors(edges []models.Dependency) map[string][]string {
	preds := make(map[string][]string)
	for _, e := range edges {
		preds[e.Target] = append(preds[e.Target], e.Source)
	}
	return preds
}
