package main

import (
	"github.com/decred/slog"
	"github.com/tossd/tossd/internal/agent"
	"github.com/tossd/tossd/internal/correlation"
	"github.com/tossd/tossd/internal/engine"
	"github.com/tossd/tossd/internal/store/jsonstore"
	"github.com/tossd/tossd/internal/store/mongostore"
	"github.com/tossd/tossd/internal/tosslog"
	"github.com/tossd/tossd/internal/tossparser"
	"github.com/tossd/tossd/internal/tossrpc"
	"github.com/tossd/tossd/internal/transport"
	"github.com/tossd/tossd/internal/walletprovider"
	"github.com/tossd/tossd/internal/watcher"
)

// log is tossd's own top-level logger, tagged TOSD the way dcrlnd's
// root log.go keeps an ltndLog distinct from every subsystem logger.
var log = slog.Disabled

// subsystemLoggers lists every package that registers a logger, tagged the
// way dcrlnd's log.go tags its own subsystems (four-letter codes).
var subsystemLoggers = map[string]func(slog.Logger){
	"JSTR": jsonstore.UseLogger,
	"MGST": mongostore.UseLogger,
	"WLPR": walletprovider.UseLogger,
	"WTCR": watcher.UseLogger,
	"CORR": correlation.UseLogger,
	"ENGN": engine.UseLogger,
	"RPCS": tossrpc.UseLogger,
	"AGNT": agent.UseLogger,
	"PRSR": tossparser.UseLogger,
	"XPRT": transport.UseLogger,
}

// setupLoggers registers a subsystem logger for every tossd package against
// root, and sets the daemon-wide debug level, following the
// SetupLoggers/AddSubLogger pattern in dcrlnd's log.go.
func setupLoggers(root *tosslog.RotatingLogWriter, debugLevel string) {
	log = root.SubLogger("TOSD")
	root.SetLevel(log, debugLevel)

	for tag, useLogger := range subsystemLoggers {
		logger := root.SubLogger(tag)
		root.SetLevel(logger, debugLevel)
		useLogger(logger)
	}
}
