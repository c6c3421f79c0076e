package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shreyachakravarty07/AgentTrace/pkg/models"
)

// Edges re-projects the workflow's dependencies for visualisation.
func Edges(wf *Workflow) []models.Dependency {
	return wf.Dependencies()
}

// DOT renders agents and edges as a Graphviz digraph.
func DOT(agents []models.Agent, edges []models.Dependency) string {
	var b strings.Builder
	b.WriteString("digraph {\n")
	for _, a := range agents {
		label := fmt.Sprintf("%s\n(Model: %s)", a.DisplayName(), a.Model)
		fmt.Fprintf(&b, "\t%s [label=%s]\n", strconv.Quote(a.ID), strconv.Quote(label))
	}
	for _, e := range edges {
		fmt.Fprintf(&b, "\t%s -> %s [label=\"feeds into\"]\n", strconv.Quote(e.Source), strconv.Quote(e.Target))
	}
	b.WriteString("}\n")
	return b.String()
}
