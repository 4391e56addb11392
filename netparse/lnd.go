package netparse

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/lnresearch/paysim/simgraph"
)

// lndGraph mirrors the output of lnd's describegraph call.
type lndGraph struct {
	Nodes []lndNode `json:"nodes"`
	Edges []lndEdge `json:"edges"`
}

type lndNode struct {
	PubKey string `json:"pub_key"`
	Alias  string `json:"alias"`
}

type lndEdge struct {
	ChannelID   string     `json:"channel_id"`
	Node1Pub    string     `json:"node1_pub"`
	Node2Pub    string     `json:"node2_pub"`
	Capacity    flexUint64 `json:"capacity"`
	Node1Policy *lndPolicy `json:"node1_policy"`
	Node2Policy *lndPolicy `json:"node2_policy"`
}

type lndPolicy struct {
	FeeBaseMsat      flexUint64 `json:"fee_base_msat"`
	FeeRateMilliMsat flexUint64 `json:"fee_rate_milli_msat"`
	TimeLockDelta    flexUint64 `json:"time_lock_delta"`
	MinHtlc          flexUint64 `json:"min_htlc"`
	MaxHtlcMsat      flexUint64 `json:"max_htlc_msat"`
	Disabled         bool       `json:"disabled"`
}

// parseLND normalizes a describegraph snapshot. Channel capacities arrive in
// satoshis and are scaled to msat; policies keep their native msat units.
func parseLND(r io.Reader) (*simgraph.Topology, error) {
	var raw lndGraph
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding lnd graph: %w", err)
	}

	top := &simgraph.Topology{
		Nodes:    make([]simgraph.TopologyNode, 0, len(raw.Nodes)),
		Channels: make([]simgraph.Channel, 0, len(raw.Edges)),
	}
	for _, n := range raw.Nodes {
		if n.PubKey == "" {
			continue
		}
		top.Nodes = append(top.Nodes, simgraph.TopologyNode{
			ID:    simgraph.NodeID(n.PubKey),
			Alias: n.Alias,
		})
	}

	for _, e := range raw.Edges {
		capacity := simgraph.NewMSatFromSatoshis(uint64(e.Capacity))
		top.Channels = append(top.Channels, simgraph.Channel{
			ID:       e.ChannelID,
			Node1:    simgraph.NodeID(e.Node1Pub),
			Node2:    simgraph.NodeID(e.Node2Pub),
			Capacity: capacity,
			Policy1:  e.Node1Policy.normalize(capacity),
			Policy2:  e.Node2Policy.normalize(capacity),
		})
	}

	log.Debugf("Parsed lnd graph with %d nodes and %d channels",
		len(top.Nodes), len(top.Channels))

	return top, nil
}

// normalize converts an advertised policy to the simulator's policy model.
// Policies announcing no HTLC ceiling default to the channel capacity.
func (p *lndPolicy) normalize(
	capacity simgraph.MilliSatoshi) *simgraph.ChannelPolicy {

	if p == nil {
		return nil
	}

	maxHTLC := simgraph.MilliSatoshi(p.MaxHtlcMsat)
	if maxHTLC == 0 || maxHTLC > capacity {
		maxHTLC = capacity
	}

	return &simgraph.ChannelPolicy{
		FeeBaseMSat:   simgraph.MilliSatoshi(p.FeeBaseMsat),
		FeeRatePPM:    uint64(p.FeeRateMilliMsat),
		TimeLockDelta: uint16(p.TimeLockDelta),
		MinHTLC:       simgraph.MilliSatoshi(p.MinHtlc),
		MaxHTLC:       maxHTLC,
		Disabled:      p.Disabled,
	}
}
