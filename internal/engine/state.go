package engine

import "github.com/flowswap/lp-node/internal/model"

// transitions is the full legal state-transition table for the
// forward (BTC -> USDC) direction; the reverse direction walks the
// mirror image of the same graph with the BTC and EVM legs swapped.
// It is documentation only: neither the engine nor any test calls
// isLegalTransition, and the command and event handlers check
// swap.State themselves without consulting this map, so some edges they
// take (e.g. MarkPeerUnreachable from any non-terminal state) are not
// listed here.
var transitions = map[model.State][]model.State{
	model.StateInit:              {model.StateAwaitingBTC, model.StateAwaitingUSDC},
	model.StateAwaitingBTC:       {model.StateBTCFundingSeen, model.StateFailed},
	model.StateAwaitingUSDC:      {model.StateUSDCLocked, model.StateFailed},
	model.StateBTCFundingSeen:    {model.StateBTCFunded},
	model.StateBTCFunded:         {model.StateM1Locked},
	model.StateM1Locked:          {model.StateM1LockedSeen, model.StateM1SelfClaimed, model.StateM1ClaimedFromLPIn, model.StateRefunded, model.StatePeerUnreachable},
	model.StateM1LockedSeen:      {model.StateUSDCLocked, model.StateRefunded},
	model.StateUSDCLocked:        {model.StateUSDCClaimedByUser, model.StateRefunded},
	model.StateUSDCClaimedByUser: {model.StateM1SelfClaimed, model.StateM1ClaimedFromLPIn},
	model.StateM1SelfClaimed:     {model.StateBTCClaimed, model.StateCompleted},
	model.StateM1ClaimedFromLPIn: {model.StateBTCClaimed, model.StateCompleted},
	model.StateBTCClaimed:        {model.StateCompleted, model.StatePeerUnreachable},
	model.StatePeerUnreachable:   {model.StateM1Locked, model.StateFailed},
	model.StateBTCRefundUnrecov:  {},
	model.StateCompleted:        {},
	model.StateRefunded:         {},
	model.StateFailed:           {},
}

// isLegalTransition reports whether to is a direct successor of from
// in the transition table above.
func isLegalTransition(from, to model.State) bool {
	for _, candidate := range transitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}
