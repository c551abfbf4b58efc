package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/tossd/tossd/internal/agent"
	"github.com/tossd/tossd/internal/chainclient"
	"github.com/tossd/tossd/internal/correlation"
	"github.com/tossd/tossd/internal/engine"
	"github.com/tossd/tossd/internal/identity"
	"github.com/tossd/tossd/internal/store"
	"github.com/tossd/tossd/internal/store/jsonstore"
	"github.com/tossd/tossd/internal/store/mongostore"
	"github.com/tossd/tossd/internal/tossauth"
	"github.com/tossd/tossd/internal/tossdconf"
	"github.com/tossd/tossd/internal/tosslog"
	"github.com/tossd/tossd/internal/tossmon"
	"github.com/tossd/tossd/internal/tossparser"
	"github.com/tossd/tossd/internal/tossrpc"
	"github.com/tossd/tossd/internal/walletprovider"
	"github.com/tossd/tossd/internal/watcher"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "tossd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := tossdconf.Load(os.Args[1:])
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	root := tosslog.NewRotatingLogWriter()
	if err := root.InitLogRotator(cfg.LogFile(), 10); err != nil {
		return fmt.Errorf("could not init log rotator: %w", err)
	}
	defer root.Close()
	setupLoggers(root, cfg.DebugLevel)

	var idKey identity.Key
	if cfg.WalletKey != "" {
		idKey, err = identity.FromHex(cfg.WalletKey)
	} else {
		idKey, err = identity.Generate()
		log.Warnf("no wallet key configured, generated an ephemeral identity %s", idKey.PublicKeyHex())
	}
	if err != nil {
		return fmt.Errorf("could not load agent identity: %w", err)
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}

	wallets := walletprovider.NewHTTPProvider(cfg.WalletProviderURL, cfg.WalletProviderKeyID, cfg.WalletProviderSecret)
	chain := chainclient.New(cfg.ChainRPCURL)
	chainWatcher := watcher.New(chain, cfg.StablecoinAddress())

	eng := engine.New(st, wallets, chainWatcher, string(cfg.NetworkEnv))
	corr := correlation.New(st, chain, eng)

	metrics, registry := tossmon.New()
	engine.UseMetrics(metrics)
	watcher.UseMetrics(metrics)
	agent.UseMetrics(metrics)

	chainWatcher.OnTransaction(func(event watcher.TransactionEvent, mw watcher.MonitoredWallet) {
		onChainTransfer(corr, eng, metrics, event)
	})
	chainWatcher.Start(time.Duration(cfg.WatcherPollInterval) * time.Second)
	defer chainWatcher.Stop()

	parser := tossparser.New(cfg.LLMProviderURL, cfg.LLMProviderKey)

	// The secure-messaging client is an opaque capability with no concrete
	// implementation in this codebase (see agent.ChatTransport and
	// transport.Streamer); a real deployment supplies one here and starts
	// it via transport.New(streamer, front.Handle).Start().
	front := agent.New(eng, corr, wallets, parser, nil, cfg.CommandPrefix, cfg.StablecoinAddress(), cfg.ChainRPCID(),
		cfg.AllowedCommands, cfg.WelcomeMessageDM, cfg.WelcomeMessageGroup)

	auth, err := tossauth.New(cfg.RPCListen)
	if err != nil {
		return fmt.Errorf("could not init admin auth: %w", err)
	}
	bootstrapId, err := tossauth.NewId()
	if err != nil {
		return fmt.Errorf("could not generate bootstrap macaroon id: %w", err)
	}
	adminMacaroon, err := auth.Bake(bootstrapId, tossauth.ActionAdmin)
	if err != nil {
		return fmt.Errorf("could not bake bootstrap macaroon: %w", err)
	}
	if err := os.WriteFile(cfg.LogFile()+".admin.macaroon", adminMacaroon, 0600); err != nil {
		log.Warnf("could not persist bootstrap macaroon: %v", err)
	}

	rpcServer := tossrpc.New(eng, wallets, chainWatcher, auth)

	var wg sync.WaitGroup
	servers := startHTTPServers(&wg, cfg.RPCListen, rpcServer, cfg.MetricsListen, tossmon.Handler(registry))

	_ = front // wired into a ChatTransport worker once the secure-messaging client is supplied

	waitForShutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range servers {
		srv.Shutdown(ctx)
	}
	wg.Wait()
	return nil
}

// openStore selects MongoDB when configured, the JSON file store otherwise,
// following the same conditional the teacher's channel.db backend selection
// used for bolt versus postgres.
func openStore(cfg *tossdconf.Config) (store.Store, error) {
	if cfg.MongoURI != "" {
		return mongostore.Dial(cfg.MongoURI, "tossd")
	}
	return jsonstore.New(cfg.DataDir, string(cfg.NetworkEnv))
}

// onChainTransfer correlates a watcher-observed transfer directly, for
// transfers the agent never saw a transaction-reference message for
// (manual sends straight to the escrow address).
func onChainTransfer(corr *correlation.Layer, eng *engine.Engine, metrics *tossmon.Metrics, event watcher.TransactionEvent) {
	result, err := corr.Correlate(correlation.Input{TxHash: event.TxHash})
	if err != nil {
		metrics.CorrelationUnresolved.Inc()
		log.Debugf("onChainTransfer: could not correlate %s: %v", event.TxHash, err)
		return
	}

	options, err := eng.Options(result.TossID)
	if err != nil {
		log.Errorf("onChainTransfer: toss %s vanished after correlation: %v", result.TossID, err)
		return
	}

	if _, err := eng.AddParticipant(result.TossID, result.Sender, options[result.Option], true); err != nil {
		log.Errorf("onChainTransfer: could not add participant %s to toss %s: %v", result.Sender, result.TossID, err)
		return
	}
	metrics.ParticipantsJoined.Inc()
}

// startHTTPServers launches the admin RPC and metrics listeners in the
// background, tracked on wg so shutdown can wait for in-flight requests to
// drain.
func startHTTPServers(wg *sync.WaitGroup, rpcAddr string, rpcHandler http.Handler, metricsAddr string, metricsHandler http.Handler) []*http.Server {
	rpcSrv := &http.Server{Addr: rpcAddr, Handler: rpcHandler}
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: metricsHandler}

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := rpcSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("rpc server: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics server: %v", err)
		}
	}()

	return []*http.Server{rpcSrv, metricsSrv}
}

// waitForShutdown blocks until the process receives an interrupt or
// termination signal.
func waitForShutdown() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}
