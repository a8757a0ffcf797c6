package rpc

import (
	"encoding/hex"
	"net/http"

	"tokenswap/crypto"
	"tokenswap/native/registry"
)

type registryMintParams struct {
	Creator    string `json:"creator"`
	Collection string `json:"collection"`
	Name       string `json:"name"`
}

type registryTransferParams struct {
	Asset string `json:"asset"`
	From  string `json:"from"`
	To    string `json:"to"`
}

type registryGetParams struct {
	Asset string `json:"asset"`
}

type assetJSON struct {
	ID         string `json:"id"`
	Creator    string `json:"creator"`
	Collection string `json:"collection"`
	Name       string `json:"name"`
	Owner      string `json:"owner"`
}

func formatAsset(a *registry.Asset) assetJSON {
	return assetJSON{
		ID:         hex.EncodeToString(a.ID[:]),
		Creator:    crypto.NewAddress(crypto.SwapPrefix, a.Creator[:]).String(),
		Collection: a.Collection,
		Name:       a.Name,
		Owner:      crypto.NewAddress(crypto.SwapPrefix, a.Owner[:]).String(),
	}
}

func (s *Server) handleRegistryMint(w http.ResponseWriter, req *RPCRequest) {
	var params registryMintParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	creator, err := parseAccount(params.Creator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	asset, err := s.ledger.Mint(creator, params.Collection, params.Name)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatAsset(asset))
}

func (s *Server) handleRegistryTransfer(w http.ResponseWriter, req *RPCRequest) {
	var params registryTransferParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	assetID, err := parseAssetID(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	from, err := parseAccount(params.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	to, err := parseAccount(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.ledger.Transfer(assetID, from, to); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleRegistryGet(w http.ResponseWriter, req *RPCRequest) {
	var params registryGetParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	assetID, err := parseAssetID(params.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	asset, err := s.ledger.Get(assetID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatAsset(asset))
}
