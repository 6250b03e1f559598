package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flowswap/lp-node/internal/engine"
	"github.com/flowswap/lp-node/internal/model"
	"github.com/flowswap/lp-node/pkg/helpers"
)

// errorResponse is the JSON body written for any non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps an engine error to an HTTP status via its Kind, or
// 500 if it isn't a *engine.ClassifiedError.
func writeError(w http.ResponseWriter, err error) {
	var classified *engine.ClassifiedError
	status := http.StatusInternalServerError
	kind := ""
	if asClassified(err, &classified) {
		kind = classified.Kind.String()
		switch classified.Kind {
		case engine.InvariantViolation:
			status = http.StatusConflict
		case engine.PeerUnreachable, engine.ReorgRollback:
			status = http.StatusAccepted // recorded, not rejected outright
		case engine.TransientChain:
			status = http.StatusServiceUnavailable
		case engine.PermanentChain, engine.UnrecoverableRefund:
			status = http.StatusUnprocessableEntity
		}
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

func asClassified(err error, out **engine.ClassifiedError) bool {
	for err != nil {
		if ce, ok := err.(*engine.ClassifiedError); ok {
			*out = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// initRequestBody is the wire shape for POST .../init and .../init-leg.
// HUserHex is the user-supplied hashlock, hex-encoded with or without
// a 0x prefix.
type initRequestBody struct {
	Direction         model.Direction   `json:"direction"`
	RoutingMode       model.RoutingMode `json:"routing_mode,omitempty"`
	LegRole           model.LegRole     `json:"leg_role,omitempty"`
	PeerURL           string            `json:"peer_url,omitempty"`
	FromAsset         model.Asset       `json:"from_asset"`
	ToAsset           model.Asset       `json:"to_asset"`
	FromAmount        uint64            `json:"from_amount"`
	ToAmount          uint64            `json:"to_amount"`
	HUserHex          string            `json:"h_user"`
	UserRefundAddress string            `json:"user_refund_address,omitempty"`
	UserPayoutAddress string            `json:"user_payout_address,omitempty"`
}

type initResponseBody struct {
	SwapID string `json:"swap_id"`
	HLP1   string `json:"h_lp1"`
	HLP2   string `json:"h_lp2"`
}

func (s *Server) handleInit(perLeg bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body initRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
			return
		}

		hUserBytes, err := helpers.HexToBytes(body.HUserHex)
		if err != nil || len(hUserBytes) != 32 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "h_user must be 32 bytes of hex"})
			return
		}
		var hUser [32]byte
		copy(hUser[:], hUserBytes)

		routingMode := body.RoutingMode
		legRole := body.LegRole
		if perLeg {
			routingMode = model.RoutingPerLeg
			if legRole == model.LegRoleNone {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "leg_role is required for init-leg"})
				return
			}
		} else if routingMode == "" {
			routingMode = model.RoutingSingleLP
		}

		req := engine.InitRequest{
			Direction:         body.Direction,
			RoutingMode:       routingMode,
			LegRole:           legRole,
			PeerURL:           body.PeerURL,
			FromAsset:         body.FromAsset,
			ToAsset:           body.ToAsset,
			FromAmount:        body.FromAmount,
			ToAmount:          body.ToAmount,
			HUser:             hUser,
			UserRefundAddress: body.UserRefundAddress,
			UserPayoutAddress: body.UserPayoutAddress,
		}

		result, err := s.engine.Init(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, initResponseBody{
			SwapID: result.SwapID,
			HLP1:   helpers.BytesToHex(result.HLP1[:]),
			HLP2:   helpers.BytesToHex(result.HLP2[:]),
		})
	}
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	swap, ok := s.engine.GetSwap(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "swap not found"})
		return
	}
	writeJSON(w, http.StatusOK, swap)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	state := model.State(r.URL.Query().Get("state"))
	swaps := s.engine.ListSwaps(state)

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			limit = n
		}
	}
	if limit > 0 && limit < len(swaps) {
		swaps = swaps[:limit]
	}
	writeJSON(w, http.StatusOK, swaps)
}

func (s *Server) handleBTCFunded(w http.ResponseWriter, r *http.Request) {
	s.withLegBody(w, r, s.engine.BTCFunded)
}

func (s *Server) handleM1Locked(w http.ResponseWriter, r *http.Request) {
	s.withLegBody(w, r, s.engine.M1Locked)
}

func (s *Server) handleUSDCFunded(w http.ResponseWriter, r *http.Request) {
	s.withLegBody(w, r, s.engine.USDCFunded)
}

// withLegBody decodes a model.HTLCDescriptor body and hands it to one
// of the engine's per-leg command methods, which all share this shape.
func (s *Server) withLegBody(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, swapID string, leg *model.HTLCDescriptor) error) {
	id := chi.URLParam(r, "id")
	var leg model.HTLCDescriptor
	if err := json.NewDecoder(r.Body).Decode(&leg); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	if err := fn(r.Context(), id, &leg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"swap_id": id})
}

type btcClaimedBody struct {
	SUserHex  string `json:"s_user"`
	SLP1Hex   string `json:"s_lp1"`
	SLP2Hex   string `json:"s_lp2"`
	ClaimTxID string `json:"claim_txid"`
}

func (s *Server) handleBTCClaimed(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body btcClaimedBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	secrets, err := decodeSecretTriple(body.SUserHex, body.SLP1Hex, body.SLP2Hex)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if err := s.engine.BTCClaimed(r.Context(), id, secrets, body.ClaimTxID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"swap_id": id})
}

func decodeSecretTriple(sUserHex, sLP1Hex, sLP2Hex string) (model.SecretTriple, error) {
	var triple model.SecretTriple
	fields := []struct {
		hex string
		out *[32]byte
		has *bool
	}{
		{sUserHex, &triple.SUser, &triple.HasUser},
		{sLP1Hex, &triple.SLP1, &triple.HasLP1},
		{sLP2Hex, &triple.SLP2, &triple.HasLP2},
	}
	for _, f := range fields {
		b, err := helpers.HexToBytes(f.hex)
		if err != nil || len(b) != 32 {
			return triple, errInvalidSecretHex
		}
		copy(f.out[:], b)
		*f.has = true
	}
	return triple, nil
}

var errInvalidSecretHex = errors.New("secrets must each be 32 bytes of hex")

type forceFailBody struct {
	Reason string `json:"reason"`
}

func (s *Server) handleForceFail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body forceFailBody
	json.NewDecoder(r.Body).Decode(&body)

	if err := s.engine.ForceFail(r.Context(), id, body.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"swap_id": id})
}

func (s *Server) handleCleanupTerminal(w http.ResponseWriter, r *http.Request) {
	maxAgeHours := 24
	if raw := r.URL.Query().Get("max_age_hours"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			maxAgeHours = n
		}
	}

	removed, err := s.engine.CleanupTerminal(time.Duration(maxAgeHours) * time.Hour)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"removed": removed, "count": len(removed)})
}
