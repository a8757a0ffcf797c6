package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tokenswap/crypto"
	"tokenswap/native/escrow"
	obsmetrics "tokenswap/observability"
)

type escrowInitializeParams struct {
	Caller     string `json:"caller"`
	Asset      string `json:"asset"`
	Collection string `json:"collection"`
	Name       string `json:"name"`
}

type escrowStartParams struct {
	Caller      string   `json:"caller"`
	Asset       string   `json:"asset"`
	Collections []string `json:"collections"`
	Tokens      []string `json:"tokens"`
}

type escrowNamesParams struct {
	Caller      string   `json:"caller"`
	Asset       string   `json:"asset"`
	Collections []string `json:"collections"`
	Tokens      []string `json:"tokens"`
}

type escrowActorParams struct {
	Caller string `json:"caller"`
	Asset  string `json:"asset"`
}

type escrowAssetParams struct {
	Asset string `json:"asset"`
}

type escrowFlashOfferParams struct {
	Offerer string `json:"offerer"`
	Offered string `json:"offered"`
	Target  string `json:"target"`
}

type recordJSON struct {
	Asset               string   `json:"asset"`
	Status              string   `json:"status"`
	Lister              *string  `json:"lister,omitempty"`
	MatchingCollections []string `json:"matchingCollections"`
	MatchingTokens      []string `json:"matchingTokens"`
	MatchAll            bool     `json:"matchAllInCollections"`
}

func formatRecord(r *escrow.Record) recordJSON {
	out := recordJSON{
		Asset:               hex.EncodeToString(r.AssetID[:]),
		Status:              r.Status().String(),
		MatchingCollections: append([]string{}, r.MatchingCollections...),
		MatchingTokens:      append([]string{}, r.MatchingTokens...),
		MatchAll:            r.MatchAllInCollections,
	}
	if r.Listed {
		lister := crypto.NewAddress(crypto.SwapPrefix, r.Lister[:]).String()
		out.Lister = &lister
	}
	return out
}

func parseAccount(raw string) ([20]byte, error) {
	var out [20]byte
	addr, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		return out, err
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

func parseAssetID(raw string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return out, fmt.Errorf("invalid asset id: %w", err)
	}
	if len(decoded) != len(out) {
		return out, fmt.Errorf("asset id must be %d bytes", len(out))
	}
	copy(out[:], decoded)
	return out, nil
}

func decodeSingleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func (s *Server) handleEscrowInitialize(w http.ResponseWriter, req *RPCRequest) {
	var params escrowInitializeParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAccount(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	assetID, err := parseAssetID(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	start := time.Now()
	err = s.engine.Initialize(caller, assetID, params.Collection, params.Name)
	s.observe("initialize", start, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleEscrowStart(w http.ResponseWriter, req *RPCRequest) {
	var params escrowStartParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAccount(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	assetID, err := parseAssetID(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	start := time.Now()
	err = s.engine.Start(caller, assetID, nil, params.Collections, params.Tokens)
	s.observe("start", start, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleEscrowAddMatchingNames(w http.ResponseWriter, req *RPCRequest) {
	var params escrowNamesParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAccount(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	assetID, err := parseAssetID(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	start := time.Now()
	err = s.engine.AddMatchingNames(caller, assetID, params.Collections, params.Tokens)
	s.observe("add_matching_names", start, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleEscrowClearMatchingNames(w http.ResponseWriter, req *RPCRequest) {
	caller, assetID, ok := s.decodeActor(w, req)
	if !ok {
		return
	}
	start := time.Now()
	err := s.engine.ClearMatchingNames(caller, assetID)
	s.observe("clear_matching_names", start, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleEscrowSetMatchAll(w http.ResponseWriter, req *RPCRequest) {
	caller, assetID, ok := s.decodeActor(w, req)
	if !ok {
		return
	}
	start := time.Now()
	err := s.engine.SetMatchAllInCollections(caller, assetID)
	s.observe("set_match_all", start, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleEscrowClose(w http.ResponseWriter, req *RPCRequest) {
	caller, assetID, ok := s.decodeActor(w, req)
	if !ok {
		return
	}
	start := time.Now()
	err := s.engine.Close(caller, assetID)
	s.observe("close", start, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

// handleEscrowFreeze disarms the record. Capabilities never cross the RPC
// boundary, so the extracted authority is revoked on the ledger instead of
// being returned.
func (s *Server) handleEscrowFreeze(w http.ResponseWriter, req *RPCRequest) {
	caller, assetID, ok := s.decodeActor(w, req)
	if !ok {
		return
	}
	start := time.Now()
	cap, err := s.engine.Freeze(caller, assetID)
	s.observe("freeze", start, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	if err := s.ledger.RevokeCapability(cap); err != nil {
		s.logger.Warn("revoke frozen capability", "error", err)
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleEscrowIsTradable(w http.ResponseWriter, req *RPCRequest) {
	var params escrowAssetParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	assetID, err := parseAssetID(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	tradable, err := s.engine.IsTradable(assetID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, tradable)
}

func (s *Server) handleEscrowGet(w http.ResponseWriter, req *RPCRequest) {
	var params escrowAssetParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	assetID, err := parseAssetID(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	record, err := s.engine.Record(assetID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatRecord(record))
}

func (s *Server) handleEscrowFlashOffer(w http.ResponseWriter, req *RPCRequest) {
	var params escrowFlashOfferParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	offerer, err := parseAccount(params.Offerer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	offeredID, err := parseAssetID(params.Offered)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	targetID, err := parseAssetID(params.Target)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	start := time.Now()
	err = s.engine.FlashOffer(offerer, offeredID, targetID)
	s.observe("flash_offer", start, err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	obsmetrics.Escrow().ObserveSwapSettled()
	writeResult(w, req.ID, true)
}

func (s *Server) decodeActor(w http.ResponseWriter, req *RPCRequest) ([20]byte, [32]byte, bool) {
	var params escrowActorParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return [20]byte{}, [32]byte{}, false
	}
	caller, err := parseAccount(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return [20]byte{}, [32]byte{}, false
	}
	assetID, err := parseAssetID(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return [20]byte{}, [32]byte{}, false
	}
	return caller, assetID, true
}

func (s *Server) observe(operation string, start time.Time, err error) {
	code := ""
	if err != nil {
		_, code = engineErrorCode(err)
	}
	obsmetrics.Escrow().ObserveOperation(operation, start, err, code)
}
