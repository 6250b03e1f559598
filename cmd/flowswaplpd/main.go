// Package main provides flowswaplpd - the FlowSwap LP node daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"

	"github.com/flowswap/lp-node/internal/api"
	"github.com/flowswap/lp-node/internal/chain"
	"github.com/flowswap/lp-node/internal/config"
	"github.com/flowswap/lp-node/internal/engine"
	"github.com/flowswap/lp-node/internal/inventory"
	"github.com/flowswap/lp-node/internal/model"
	"github.com/flowswap/lp-node/internal/notify"
	"github.com/flowswap/lp-node/internal/store"
	"github.com/flowswap/lp-node/internal/wallet"
	"github.com/flowswap/lp-node/internal/watcher"
	"github.com/flowswap/lp-node/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		dataDir       = flag.String("data-dir", "~/.flowswap-lp", "Data directory")
		configFile    = flag.String("config", "", "Config file path")
		apiAddr       = flag.String("api", "127.0.0.1:8090", "HTTP API address")
		logLevel      = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		testnet       = flag.Bool("testnet", false, "Use testnet chain params")
		showVersion   = flag.Bool("version", false, "Show version and exit")

		btcRPC     = flag.String("btc-rpc", "https://mempool.space/api", "BTC Esplora-compatible API base URL")
		m1RPC      = flag.String("m1-rpc", "", "M1 Esplora-compatible API base URL")
		evmRPC     = flag.String("evm-rpc", "", "EVM JSON-RPC URL")
		evmHTLC    = flag.String("evm-htlc-contract", "", "EVM HTLC contract address")
		usdcToken  = flag.String("usdc-token", "", "USDC ERC20 contract address")
		evmChainID = flag.Int64("evm-chain-id", 1, "EVM chain id, for EIP-155 tx signing")

		keystorePath = flag.String("keystore", "", "Path to the encrypted refund keystore")
		keystorePass = flag.String("keystore-password", "", "Keystore passphrase (prefer FLOWSWAP_KEYSTORE_PASSWORD env)")

		btcPayout = flag.String("btc-refund-payout", "", "BTC address refunds pay out to")
		m1Payout  = flag.String("m1-refund-payout", "", "M1 address refunds pay out to")
		evmGas    = flag.Uint64("evm-refund-gas-limit", 150000, "Gas limit for EVM refund transactions")

		btcReserveAddr = flag.String("btc-reserve-address", "", "BTC address holding this LP's spendable reserve")
		m1ReserveAddr  = flag.String("m1-reserve-address", "", "M1 address holding this LP's spendable reserve")
		evmReserveAddr = flag.String("evm-reserve-address", "", "EVM address holding this LP's USDC reserve")

		timeoutCheckInterval = flag.Duration("timeout-check-interval", 30*time.Second, "Interval between refund-timeout sweeps")
	)
	flag.Parse()

	log := logging.New(&logging.Config{Level: *logLevel, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("flowswaplpd %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	cfgPath := *configFile
	if cfgPath == "" {
		cfgPath = expandPath(*dataDir) + "/config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal("failed to load config", "error", err)
	}
	config.LoadEnv(expandPath(*dataDir) + "/.env")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.New(&store.Config{DataDir: expandPath(*dataDir), LPID: cfg.LPID})
	if err != nil {
		log.Fatal("failed to open store", "error", err)
	}
	defer st.Close()
	log.Info("store opened", "data_dir", expandPath(*dataDir))

	utxoParams := &chaincfg.MainNetParams
	if *testnet {
		utxoParams = &chaincfg.TestNet3Params
	}

	btcClient := chain.NewUTXOClient(*btcRPC)
	var m1Client *chain.UTXOClient
	if *m1RPC != "" {
		m1Client = chain.NewM1Client(*m1RPC)
	}

	var evmClient *chain.EVMClient
	var htlcContract common.Address
	if *evmRPC != "" {
		htlcContract = common.HexToAddress(*evmHTLC)
		evmClient, err = chain.DialEVM(ctx, *evmRPC, htlcContract)
		if err != nil {
			log.Fatal("failed to dial evm rpc", "error", err)
		}
		defer evmClient.Close()
	}

	clients := map[model.Chain]chain.Client{model.ChainBTC: btcClient}
	if m1Client != nil {
		clients[model.ChainM1] = m1Client
	}
	if evmClient != nil {
		clients[model.ChainEVM] = evmClient
	}

	tokenAddr := common.HexToAddress(*usdcToken)
	reserves := reserveAddresses{btc: *btcReserveAddr, m1: *m1ReserveAddr, evm: *evmReserveAddr}
	inv := inventory.New(balanceSource(clients, evmClient, tokenAddr, reserves), cfg.RateRefreshInterval)
	seedInventory(ctx, inv, log)
	go runBalanceRefresher(ctx, inv, cfg.RateRefreshInterval, log)

	e := engine.New(st, inv, cfg, clients, nil)

	notifier := notify.New(notify.DefaultConfig(), func(swapID string) {
		log.Warn("peer unreachable after retries", "swap_id", swapID)
		e.MarkPeerUnreachable(swapID)
	})
	e.SetNotifier(notifier)

	e.Resume()
	log.Info("engine resumed", "pairs", len(cfg.Pairs))

	cb := watcher.Callbacks{
		Interests: e.Interests,
		OnFundConfirmed: func(ctx context.Context, swapID string, c model.Chain, txID string, confirmations int64) error {
			return e.HandleTxConfirmed(ctx, engine.TxConfirmedEvent{
				SwapID: swapID, Chain: c, Kind: model.LegTxFund,
				TxID: txID, Confirmations: confirmations,
			})
		},
		OnClaimOrRefund: func(ctx context.Context, swapID string, c model.Chain, kind model.LegTxKind, txID string, witness [][]byte) error {
			return e.HandleTxConfirmed(ctx, engine.TxConfirmedEvent{
				SwapID: swapID, Chain: c, Kind: kind,
				TxID: txID, Confirmations: 1, Witness: witness,
			})
		},
		OnEventLog: func(ctx context.Context, swapID string, kind model.LegTxKind, txHash string, secrets *model.SecretTriple) error {
			return e.HandleEventLog(ctx, engine.EventLogEvent{SwapID: swapID, Kind: kind, TxHash: txHash, Secrets: secrets})
		},
		OnReorg: func(ctx context.Context, swapID string, c model.Chain, kind model.LegTxKind) error {
			return e.HandleReorg(ctx, engine.ReorgEvent{SwapID: swapID, Chain: c, Kind: kind})
		},
	}

	reorgDepths := cfg.ReorgDepths
	btcLoop := watcher.NewLoop(model.ChainBTC, btcClient, cb, 20*time.Second, int64(reorgDepths.BTCBlocks))
	go btcLoop.Run(ctx, watcher.ScanUTXO(model.ChainBTC, btcClient, cb))

	if m1Client != nil {
		m1Loop := watcher.NewLoop(model.ChainM1, m1Client, cb, 10*time.Second, int64(reorgDepths.M1Blocks))
		go m1Loop.Run(ctx, watcher.ScanUTXO(model.ChainM1, m1Client, cb))
	}
	if evmClient != nil {
		evmLoop := watcher.NewLoop(model.ChainEVM, evmClient, cb, 15*time.Second, int64(reorgDepths.EVMBlocks))
		go evmLoop.Run(ctx, watcher.ScanEVM(evmClient, cb))
	}
	log.Info("watchers started")

	keys, err := loadWalletKeys(*keystorePath, keystorePassword(*keystorePass))
	if err != nil {
		log.Warn("wallet keys unavailable, timed-out legs will not auto-refund or auto-claim", "error", err)
	}

	if keys != nil {
		refundDriver := buildRefundDriver(clients, utxoParams, htlcContract, *evmChainID, *evmGas, *btcPayout, *m1Payout, keys, log)
		if cfg.AutoRefundEnabled {
			go runTimeoutChecker(ctx, e, refundDriver, clients, *timeoutCheckInterval, log)
		}

		if cfg.AutoClaimEnabled {
			claimDriver := buildClaimDriver(clients, utxoParams, htlcContract, *evmChainID, *evmGas, *btcPayout, *m1Payout, keys, log)
			e.SetClaimDriver(claimDriver)
		}
	}

	srv := api.NewServer(e, *apiAddr)
	if err := srv.Start(); err != nil {
		log.Fatal("failed to start api server", "error", err)
	}

	log.Info("flowswaplpd started", "version", version, "api", *apiAddr, "lp_id", cfg.LPID)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("error stopping api server", "error", err)
	}

	log.Info("goodbye")
}

// reserveAddresses is where this LP's own spendable funds sit on each
// chain, distinct from any swap's per-leg HTLC address.
type reserveAddresses struct {
	btc, m1, evm string
}

// balanceSource builds the inventory.BalanceSource closure: BTC/M1
// balances come from the reserve address's UTXO set, USDC from the
// ERC20 token's balanceOf on the reserve EVM address.
func balanceSource(clients map[model.Chain]chain.Client, evmClient *chain.EVMClient, usdcToken common.Address, reserves reserveAddresses) inventory.BalanceSource {
	return func(ctx context.Context, asset model.Asset) (uint64, error) {
		switch asset {
		case model.AssetBTC:
			return sumUTXOBalance(ctx, clients[model.ChainBTC], reserves.btc)
		case model.AssetM1:
			client, ok := clients[model.ChainM1]
			if !ok {
				return 0, fmt.Errorf("main: no m1 client configured")
			}
			return sumUTXOBalance(ctx, client, reserves.m1)
		case model.AssetUSDC:
			if evmClient == nil {
				return 0, fmt.Errorf("main: no evm client configured")
			}
			owner := common.HexToAddress(reserves.evm)
			balance, err := evmClient.BalanceOfERC20(ctx, usdcToken, owner)
			if err != nil {
				return 0, err
			}
			return balance.Uint64(), nil
		default:
			return 0, fmt.Errorf("main: unknown asset %s", asset)
		}
	}
}

func sumUTXOBalance(ctx context.Context, client chain.Client, address string) (uint64, error) {
	utxos, err := client.GetAddressUTXOs(ctx, address)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, u := range utxos {
		total += u.Amount
	}
	return total, nil
}

// loadWalletKeys opens the encrypted keystore and derives the LP's
// refund and claim keys once, so both drivers can share a single
// decrypt. Returns an error if no keystore path or no password is
// configured; main logs it and runs claim-and-refund-free, leaving
// timed-out or claimable legs to manual intervention.
func loadWalletKeys(keystorePath, keystorePassword string) (*wallet.WalletKeys, error) {
	if keystorePath == "" {
		return nil, fmt.Errorf("no --keystore configured")
	}
	if keystorePassword == "" {
		return nil, fmt.Errorf("no keystore password supplied")
	}

	seed, err := wallet.LoadKeystore(keystorePath, keystorePassword)
	if err != nil {
		return nil, fmt.Errorf("load keystore: %w", err)
	}
	keys, err := wallet.DeriveWalletKeys(seed)
	if err != nil {
		return nil, fmt.Errorf("derive wallet keys: %w", err)
	}
	return keys, nil
}

// buildRefundDriver wires a RefundDriver from already-loaded keys.
func buildRefundDriver(
	clients map[model.Chain]chain.Client,
	utxoParams *chaincfg.Params,
	htlcContract common.Address,
	evmChainID int64,
	evmGas uint64,
	btcPayout, m1Payout string,
	keys *wallet.WalletKeys,
	log *logging.Logger,
) *wallet.RefundDriver {
	cfg := wallet.RefundDriverConfig{
		Clients: clients,
		UTXOParams: map[model.Chain]*chaincfg.Params{
			model.ChainBTC: utxoParams,
			model.ChainM1:  utxoParams,
		},
		RefundPayout: map[model.Chain]string{
			model.ChainBTC: btcPayout,
			model.ChainM1:  m1Payout,
		},
		EVMChainID:  big.NewInt(evmChainID),
		EVMContract: htlcContract,
		EVMGasLimit: evmGas,
	}
	return wallet.NewRefundDriver(cfg, keys, log.Component("wallet"))
}

// buildClaimDriver wires a ClaimDriver from the same already-loaded
// keys buildRefundDriver used, sweeping claimed legs to the same
// payout addresses a timed-out leg would refund to.
func buildClaimDriver(
	clients map[model.Chain]chain.Client,
	utxoParams *chaincfg.Params,
	htlcContract common.Address,
	evmChainID int64,
	evmGas uint64,
	btcPayout, m1Payout string,
	keys *wallet.WalletKeys,
	log *logging.Logger,
) *wallet.ClaimDriver {
	cfg := wallet.ClaimDriverConfig{
		Clients: clients,
		UTXOParams: map[model.Chain]*chaincfg.Params{
			model.ChainBTC: utxoParams,
			model.ChainM1:  utxoParams,
		},
		Payout: map[model.Chain]string{
			model.ChainBTC: btcPayout,
			model.ChainM1:  m1Payout,
		},
		EVMChainID:  big.NewInt(evmChainID),
		EVMContract: htlcContract,
		EVMGasLimit: evmGas,
	}
	return wallet.NewClaimDriver(cfg, keys, log.Component("wallet"))
}

// seedInventory reads every tracked asset's balance once at startup,
// so the first Init doesn't have to wait on a stale-cache miss to see
// a real balance.
func seedInventory(ctx context.Context, inv *inventory.Inventory, log *logging.Logger) {
	for _, asset := range []model.Asset{model.AssetBTC, model.AssetM1, model.AssetUSDC} {
		if err := inv.RefreshIfStale(ctx, asset); err != nil {
			log.Warn("initial balance read failed", "asset", asset, "error", err)
		}
	}
}

// runBalanceRefresher re-reads every tracked asset's balance on a
// cadence independent of reservation activity, satisfying the "on a
// cadence" half of the refresh requirement (Reserve's own
// RefreshIfStale call covers the "on every reservation query" half).
func runBalanceRefresher(ctx context.Context, inv *inventory.Inventory, interval time.Duration, log *logging.Logger) {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, asset := range []model.Asset{model.AssetBTC, model.AssetM1, model.AssetUSDC} {
				if err := inv.RefreshIfStale(ctx, asset); err != nil {
					log.Warn("periodic balance refresh failed", "asset", asset, "error", err)
				}
			}
		}
	}
}

func runTimeoutChecker(ctx context.Context, e *engine.Engine, driver engine.RefundDriver, clients map[model.Chain]chain.Client, interval time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			heights := map[model.Chain]int64{}
			for c, client := range clients {
				if c == model.ChainEVM {
					continue
				}
				if h, err := client.GetBlockHeight(ctx); err == nil {
					heights[c] = h
				}
			}
			e.CheckTimeouts(ctx, driver, time.Now(), heights, time.Now().Unix())
		}
	}
}

func keystorePassword(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("FLOWSWAP_KEYSTORE_PASSWORD")
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return home + path[1:]
	}
	return path
}
