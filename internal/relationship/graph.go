package relationship

import (
	"sort"

	"github.com/yourbasic/graph"
)

// Order is the table-level application order for a set of proposals.
type Order struct {
	Tables  []string   `yaml:"tables" json:"tables"`
	Acyclic bool       `yaml:"acyclic" json:"acyclic"`
	Cycles  [][]string `yaml:"cycles,omitempty" json:"cycles,omitempty"`
}

// ApplyOrder computes the order in which the tables touched by the proposals
// should be altered: referenced tables before the tables that point at them,
// junction tables after both of their sides. When the references form a
// cycle, Tables falls back to first-seen order and Cycles lists each group
// of mutually referencing tables.
func ApplyOrder(proposals []Proposal) Order {
	var names []string
	index := map[string]int{}
	at := func(name string) int {
		if i, ok := index[name]; ok {
			return i
		}
		i := len(names)
		index[name] = i
		names = append(names, name)
		return i
	}

	type edge struct{ from, to int }
	var edges []edge
	addEdge := func(from, to string) {
		f, t := at(from), at(to)
		if f != t {
			edges = append(edges, edge{f, t})
		}
	}

	for _, p := range proposals {
		switch p.Kind {
		case KindForeignKey:
			addEdge(p.RefTable, p.FKTable)
		case KindJunction:
			addEdge(p.SourceTable, p.JunctionTable)
			addEdge(p.TargetTable, p.JunctionTable)
		}
	}

	if len(names) == 0 {
		return Order{Acyclic: true}
	}

	g := graph.New(len(names))
	for _, e := range edges {
		g.Add(e.from, e.to)
	}

	if order, ok := graph.TopSort(g); ok {
		tables := make([]string, len(order))
		for i, v := range order {
			tables[i] = names[v]
		}
		return Order{Tables: tables, Acyclic: true}
	}

	out := Order{Tables: names}
	for _, comp := range graph.StrongComponents(g) {
		if len(comp) < 2 {
			continue
		}
		cycle := make([]string, len(comp))
		for i, v := range comp {
			cycle[i] = names[v]
		}
		sort.Strings(cycle)
		out.Cycles = append(out.Cycles, cycle)
	}
	return out
}

// OrderProposals returns the proposals sorted by their owning table's
// position in the apply order. Proposals on the same table keep their
// relative order.
func OrderProposals(proposals []Proposal) ([]Proposal, Order) {
	ord := ApplyOrder(proposals)
	pos := make(map[string]int, len(ord.Tables))
	for i, t := range ord.Tables {
		pos[t] = i
	}

	sorted := make([]Proposal, len(proposals))
	copy(sorted, proposals)
	sort.SliceStable(sorted, func(i, j int) bool {
		return pos[owningTable(sorted[i])] < pos[owningTable(sorted[j])]
	})
	return sorted, ord
}
