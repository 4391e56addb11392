package netparse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lnresearch/paysim/simgraph"
)

const lndFixture = `{
  "nodes": [
    {"pub_key": "alice", "alias": "Alice"},
    {"pub_key": "bob", "alias": "Bob"}
  ],
  "edges": [
    {
      "channel_id": "714105x2146x0",
      "node1_pub": "alice",
      "node2_pub": "bob",
      "capacity": "5000000",
      "node1_policy": {
        "fee_base_msat": "1000",
        "fee_rate_milli_msat": "100",
        "time_lock_delta": 40,
        "min_htlc": "1000",
        "max_htlc_msat": "4950000000",
        "disabled": false
      },
      "node2_policy": {
        "fee_base_msat": "0",
        "fee_rate_milli_msat": "550",
        "time_lock_delta": 144,
        "min_htlc": "1",
        "max_htlc_msat": "0",
        "disabled": true
      }
    }
  ]
}`

// TestParseLND exercises the describegraph dialect, including its habit of
// rendering 64 bit values as strings and omitting HTLC ceilings.
func TestParseLND(t *testing.T) {
	t.Parallel()

	top, err := Parse(strings.NewReader(lndFixture), SourceLND)
	require.NoError(t, err)

	require.Len(t, top.Nodes, 2)
	require.Equal(t, simgraph.NodeID("alice"), top.Nodes[0].ID)
	require.Equal(t, "Alice", top.Nodes[0].Alias)

	require.Len(t, top.Channels, 1)
	c := top.Channels[0]
	require.Equal(t, "714105x2146x0", c.ID)

	// Capacity arrives in satoshis.
	require.Equal(t, simgraph.MilliSatoshi(5_000_000_000), c.Capacity)

	require.NotNil(t, c.Policy1)
	require.Equal(t, simgraph.MilliSatoshi(1000), c.Policy1.FeeBaseMSat)
	require.Equal(t, uint64(100), c.Policy1.FeeRatePPM)
	require.Equal(t, uint16(40), c.Policy1.TimeLockDelta)
	require.Equal(t, simgraph.MilliSatoshi(4_950_000_000),
		c.Policy1.MaxHTLC)
	require.False(t, c.Policy1.Disabled)

	// A zero max_htlc_msat (no advertised ceiling) defaults to the
	// channel capacity.
	require.NotNil(t, c.Policy2)
	require.Equal(t, c.Capacity, c.Policy2.MaxHTLC)
	require.True(t, c.Policy2.Disabled)
}

const lnrFixture = `{
  "nodes": [
    {"id": "random0", "alias": "MilliBit"},
    {"id": "random1", "alias": "MilliBit"},
    {"id": "random2", "alias": "MilliBit"}
  ],
  "adjacency": [
    [
      {
        "scid": "714105x2146x0/0",
        "source": "random0",
        "destination": "random1",
        "fee_base_msat": 5,
        "fee_proportional_millionths": 270,
        "htlc_minimim_msat": 1000,
        "htlc_maximum_msat": 5564111000,
        "cltv_expiry_delta": 34
      }
    ],
    [
      {
        "scid": "714105x2146x0/1",
        "source": "random1",
        "destination": "random0",
        "fee_base_msat": 0,
        "fee_proportional_millionths": 555,
        "htlc_minimim_msat": 1,
        "htlc_maximum_msat": 5545472000,
        "cltv_expiry_delta": 34
      },
      {
        "scid": "714116x477x0/0",
        "source": "random1",
        "destination": "random2",
        "fee_base_msat": 0,
        "fee_proportional_millionths": 555,
        "htlc_minimim_msat": 1,
        "htlc_maximum_msat": 5545472000,
        "cltv_expiry_delta": 34
      }
    ],
    []
  ]
}`

// TestParseLNResearch exercises the adjacency-list dialect: pairing of
// announced directions and capacity derivation from HTLC ceilings.
func TestParseLNResearch(t *testing.T) {
	t.Parallel()

	top, err := Parse(strings.NewReader(lnrFixture), SourceLNResearch)
	require.NoError(t, err)

	require.Len(t, top.Nodes, 3)
	require.Len(t, top.Channels, 2)

	// The paired channel random0<->random1 takes the smaller ceiling as
	// its capacity.
	paired := top.Channels[0]
	require.Equal(t, simgraph.NodeID("random0"), paired.Node1)
	require.Equal(t, simgraph.NodeID("random1"), paired.Node2)
	require.NotNil(t, paired.Policy1)
	require.NotNil(t, paired.Policy2)
	require.Equal(t, simgraph.MilliSatoshi(5_545_472_000),
		paired.Capacity)
	require.Equal(t, paired.Capacity, paired.Policy1.MaxHTLC)
	require.Equal(t, uint64(270), paired.Policy1.FeeRatePPM)
	require.Equal(t, uint64(555), paired.Policy2.FeeRatePPM)

	// The unpaired announcement random1->random2 surfaces without a
	// second policy so the graph loader can drop and count it.
	unpaired := top.Channels[1]
	require.Equal(t, simgraph.NodeID("random1"), unpaired.Node1)
	require.Nil(t, unpaired.Policy2)
}

// TestSourceFromString checks the CLI token mapping.
func TestSourceFromString(t *testing.T) {
	t.Parallel()

	src, err := SourceFromString("lnd")
	require.NoError(t, err)
	require.Equal(t, SourceLND, src)

	src, err = SourceFromString("lnr")
	require.NoError(t, err)
	require.Equal(t, SourceLNResearch, src)

	_, err = SourceFromString("clightning")
	require.Error(t, err)
}
