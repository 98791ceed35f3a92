// Package lineage resolves lot genealogy.
//
// An Index is built once per dataset snapshot from the lot table and the
// lineage edges. Edges that reference unknown lots, point a lot at itself,
// or repeat an existing link are rejected and logged; a cycle among the
// accepted edges fails construction.
//
// A Resolver walks the Index from a Drug Product lot to its Drug Substance
// parent and from there to the antibody and oligonucleotide lots the
// substance was conjugated from:
//
//	idx, err := lineage.NewIndex(snap.Lots(), snap.Edges(), logger)
//	if err != nil {
//	    return err
//	}
//	chain, err := lineage.NewResolver(idx).Resolve("DM1-DP-400")
//	if errors.Is(err, core.ErrLineageIncomplete) {
//	    // render the fallback panel
//	}
//
// Resolution never invents an ancestor: any cardinality or role mismatch
// yields a *core.LineageIncompleteError naming the lot and the reason.
package lineage
