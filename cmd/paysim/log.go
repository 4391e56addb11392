package main

import (
	"github.com/btcsuite/btclog/v2"

	"github.com/lnresearch/paysim/adversary"
	"github.com/lnresearch/paysim/build"
	"github.com/lnresearch/paysim/netparse"
	"github.com/lnresearch/paysim/oracle"
	"github.com/lnresearch/paysim/payments"
	"github.com/lnresearch/paysim/routing"
	"github.com/lnresearch/paysim/sim"
	"github.com/lnresearch/paysim/simgraph"
)

// log is the logger of the binary itself.
var log btclog.Logger

// setupLogging wires a console backend into every subsystem and applies the
// requested debug level.
func setupLogging(debugLevel string) error {
	mgr := build.NewSubLoggerManager(build.NewConsoleHandler(false))

	log = mgr.GenSubLogger("PSIM")
	simgraph.UseLogger(mgr.GenSubLogger(simgraph.Subsystem))
	netparse.UseLogger(mgr.GenSubLogger(netparse.Subsystem))
	oracle.UseLogger(mgr.GenSubLogger(oracle.Subsystem))
	routing.UseLogger(mgr.GenSubLogger(routing.Subsystem))
	payments.UseLogger(mgr.GenSubLogger(payments.Subsystem))
	adversary.UseLogger(mgr.GenSubLogger(adversary.Subsystem))
	sim.UseLogger(mgr.GenSubLogger(sim.Subsystem))

	return build.ParseAndSetDebugLevels(debugLevel, mgr)
}
