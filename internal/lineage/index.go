package lineage

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/qcops/internal/dag"
	"github.com/leapstack-labs/qcops/pkg/core"
)

// RejectedEdge is an edge dropped while building the index.
type RejectedEdge struct {
	Edge   core.Edge `json:"edge"`
	Reason string    `json:"reason"`
}

// Index is a child -> parents lookup over lot ids.
type Index struct {
	graph    *dag.Graph[*core.Lot]
	rejected []RejectedEdge
}

// NewIndex builds the index in one pass over lots and edges.
// A nil logger discards rejection warnings.
func NewIndex(lots []*core.Lot, edges []core.Edge, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	g := dag.New[*core.Lot]()
	for _, lot := range lots {
		if lot == nil {
			continue
		}
		if g.Has(lot.ID) {
			return nil, fmt.Errorf("duplicate lot id %q", lot.ID)
		}
		g.AddNode(lot.ID, lot)
	}

	idx := &Index{graph: g}
	for _, e := range edges {
		if err := g.AddEdge(e.Parent, e.Child); err != nil {
			reason := rejectReason(err)
			logger.Warn("rejected lineage edge",
				"parent", e.Parent,
				"child", e.Child,
				"reason", reason)
			idx.rejected = append(idx.rejected, RejectedEdge{Edge: e, Reason: reason})
		}
	}

	if cycle := g.FindCycle(); cycle != nil {
		return nil, fmt.Errorf("lineage contains a cycle: %v", cycle)
	}

	logger.Debug("lineage index built",
		"lots", g.Len(),
		"edges", g.EdgeCount(),
		"rejected", len(idx.rejected))

	return idx, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, dag.ErrUnknownNode):
		return "unknown lot"
	case errors.Is(err, dag.ErrSelfLoop):
		return "self-loop"
	case errors.Is(err, dag.ErrDuplicateEdge):
		return "duplicate edge"
	default:
		return err.Error()
	}
}

// Lot returns the lot record for id.
func (x *Index) Lot(id string) (*core.Lot, bool) {
	return x.graph.Node(id)
}

// Len returns the number of indexed lots.
func (x *Index) Len() int {
	return x.graph.Len()
}

// Parents returns the direct parent lots of id.
func (x *Index) Parents(id string) []*core.Lot {
	return x.lots(x.graph.Parents(id))
}

// Children returns the direct child lots of id.
func (x *Index) Children(id string) []*core.Lot {
	return x.lots(x.graph.Children(id))
}

// Upstream returns every ancestor of id, ordered by id.
func (x *Index) Upstream(id string) []*core.Lot {
	return x.lots(x.graph.Ancestors(id))
}

// Downstream returns every descendant of id, ordered by id.
func (x *Index) Downstream(id string) []*core.Lot {
	return x.lots(x.graph.Descendants(id))
}

// Family returns id, its ancestors and its descendants grouped by depth.
func (x *Index) Family(id string) ([][]*core.Lot, error) {
	if !x.graph.Has(id) {
		return nil, fmt.Errorf("lot %q not found", id)
	}
	ids := append(x.graph.Ancestors(id), id)
	ids = append(ids, x.graph.Descendants(id)...)

	levels, err := x.graph.Subgraph(ids).Levels()
	if err != nil {
		return nil, err
	}
	out := make([][]*core.Lot, len(levels))
	for i, level := range levels {
		out[i] = x.lots(level)
	}
	return out, nil
}

// Rejected lists the edges dropped while building the index.
func (x *Index) Rejected() []RejectedEdge {
	return x.rejected
}

// DrugProducts returns the ids of all Drug Product lots, sorted.
func (x *Index) DrugProducts() []string {
	var ids []string
	for _, id := range x.graph.IDs() {
		if lot, _ := x.graph.Node(id); lot.Stage == core.StageDrugProduct {
			ids = append(ids, id)
		}
	}
	return ids
}

func (x *Index) lots(ids []string) []*core.Lot {
	out := make([]*core.Lot, 0, len(ids))
	for _, id := range ids {
		if lot, ok := x.graph.Node(id); ok {
			out = append(out, lot)
		}
	}
	return out
}
