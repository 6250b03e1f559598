package watcher

// M1 uses the identical Esplora-shaped REST surface as BTC (see
// internal/chain's UTXOClient), so its watcher is ScanUTXO run against
// an M1-pointed chain.Client — there is no M1-specific scan logic to
// write. main.go constructs the M1 loop as:
//
//	m1Loop := watcher.NewLoop(model.ChainM1, m1Client, cb, 10*time.Second, int64(reorgDepths.M1Blocks))
//	go m1Loop.Run(ctx, watcher.ScanUTXO(model.ChainM1, m1Client, cb))
