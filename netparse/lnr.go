package netparse

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/lnresearch/paysim/simgraph"
)

// lnrGraph mirrors the research gossip dialect: nodes plus one adjacency
// list of announced directed edges per node.
type lnrGraph struct {
	Nodes     []lnrNode   `json:"nodes"`
	Adjacency [][]lnrEdge `json:"adjacency"`
}

type lnrNode struct {
	ID    string `json:"id"`
	Alias string `json:"alias"`
}

type lnrEdge struct {
	Scid        string `json:"scid"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	FeeBaseMsat uint64 `json:"fee_base_msat"`
	FeeRatePPM  uint64 `json:"fee_proportional_millionths"`
	// The field name below carries the format's historic misspelling.
	HtlcMinimumMsat uint64 `json:"htlc_minimim_msat"`
	HtlcMaximumMsat uint64 `json:"htlc_maximum_msat"`
	CltvExpiryDelta uint64 `json:"cltv_expiry_delta"`
}

// parseLNResearch normalizes the adjacency-list dialect. The format
// announces each channel direction as a standalone edge, so the two
// directions are paired up by their endpoints here. The capacity of a
// channel is not part of the format and is taken as the smaller of the two
// directions' HTLC ceilings, matching how the snapshots were produced.
func parseLNResearch(r io.Reader) (*simgraph.Topology, error) {
	var raw lnrGraph
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding lnr graph: %w", err)
	}

	top := &simgraph.Topology{
		Nodes: make([]simgraph.TopologyNode, 0, len(raw.Nodes)),
	}
	known := make(map[string]struct{}, len(raw.Nodes))
	for _, n := range raw.Nodes {
		if n.ID == "" {
			continue
		}
		if _, ok := known[n.ID]; ok {
			continue
		}
		known[n.ID] = struct{}{}
		top.Nodes = append(top.Nodes, simgraph.TopologyNode{
			ID:    simgraph.NodeID(n.ID),
			Alias: n.Alias,
		})
	}

	// Collect announced directions, dropping edges that reference
	// unannounced nodes or carry no usable data.
	type pairKey struct {
		a, b string
	}
	unordered := func(src, dst string) pairKey {
		if src < dst {
			return pairKey{src, dst}
		}
		return pairKey{dst, src}
	}

	pending := make(map[pairKey][]lnrEdge)
	var order []pairKey
	dropped := 0
	for _, adj := range raw.Adjacency {
		for _, e := range adj {
			_, okSrc := known[e.Source]
			_, okDst := known[e.Destination]
			if !okSrc || !okDst || e.Scid == "" ||
				e.Source == e.Destination ||
				e.HtlcMaximumMsat == 0 {

				dropped++
				continue
			}

			key := unordered(e.Source, e.Destination)
			if _, ok := pending[key]; !ok {
				order = append(order, key)
			}
			pending[key] = append(pending[key], e)
		}
	}

	// Pair opposite directions into channels. A direction that never
	// finds a partner is surfaced as a channel with a single policy,
	// which the graph loader then drops and counts.
	for _, key := range order {
		edges := pending[key]
		for len(edges) > 0 {
			first := edges[0]
			edges = edges[1:]

			matched := -1
			for i, candidate := range edges {
				if candidate.Source == first.Destination {
					matched = i
					break
				}
			}

			channel := simgraph.Channel{
				ID:      first.Scid,
				Node1:   simgraph.NodeID(first.Source),
				Node2:   simgraph.NodeID(first.Destination),
				Policy1: first.policy(),
			}
			if matched >= 0 {
				partner := edges[matched]
				edges = append(edges[:matched],
					edges[matched+1:]...)

				channel.Policy2 = partner.policy()
				channel.Capacity = simgraph.MilliSatoshi(min(
					first.HtlcMaximumMsat,
					partner.HtlcMaximumMsat,
				))
				channel.Policy1.MaxHTLC = channel.Capacity
				channel.Policy2.MaxHTLC = channel.Capacity
			}

			top.Channels = append(top.Channels, channel)
		}
	}

	log.Debugf("Parsed lnr graph with %d nodes and %d channels, "+
		"dropped %d unusable edge announcements", len(top.Nodes),
		len(top.Channels), dropped)

	return top, nil
}

func (e *lnrEdge) policy() *simgraph.ChannelPolicy {
	return &simgraph.ChannelPolicy{
		FeeBaseMSat:   simgraph.MilliSatoshi(e.FeeBaseMsat),
		FeeRatePPM:    e.FeeRatePPM,
		TimeLockDelta: uint16(e.CltvExpiryDelta),
		MinHTLC:       simgraph.MilliSatoshi(e.HtlcMinimumMsat),
		MaxHTLC:       simgraph.MilliSatoshi(e.HtlcMaximumMsat),
	}
}
