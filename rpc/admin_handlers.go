package rpc

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dineledger/core"
	"dineledger/crypto"
	"dineledger/native/stable"
)

type AdminResult struct {
	Module string `json:"module"`
	Admin  string `json:"admin"`
	Paused *bool  `json:"paused,omitempty"`
}

func (s *Server) handleAdminInfo(w http.ResponseWriter, r *http.Request) {
	module := chi.URLParam(r, "module")
	admin, err := s.node.Admin(r.Context(), module)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := AdminResult{Module: module, Admin: crypto.FormatAddress(admin)}
	paused, err := s.node.Paused(r.Context(), module)
	switch {
	case err == nil:
		out.Paused = &paused
	case !errors.Is(err, core.ErrUnknownModule):
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePause(paused bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		module := chi.URLParam(r, "module")
		var err error
		if paused {
			err = s.node.Pause(r.Context(), caller(r), module)
		} else {
			err = s.node.Unpause(r.Context(), caller(r), module)
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.handleAdminInfo(w, r)
	}
}

func (s *Server) handleTransferAdmin(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	next, err := parseAddress(req.To, "to")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.node.TransferAdministration(r.Context(), chi.URLParam(r, "module"), caller(r), next); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.handleAdminInfo(w, r)
}

func (s *Server) handleSetFeeRecipient(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	recipient, err := parseAddress(req.Address, "address")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.node.SetFeeRecipient(r.Context(), caller(r), recipient); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.handleFeeConfig(w, r)
}

func (s *Server) handleSetPlatformFee(w http.ResponseWriter, r *http.Request) {
	var req feeRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.node.SetPlatformFee(r.Context(), caller(r), req.Bps); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.handleFeeConfig(w, r)
}

func (s *Server) handleSetAuthorizedCreator(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	creator, err := parseAddress(req.Address, "address")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.node.SetAuthorizedCreator(r.Context(), caller(r), creator); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetBaseImageURI(w http.ResponseWriter, r *http.Request) {
	var req baseURIRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.node.SetBaseImageURI(r.Context(), caller(r), req.URI); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMintStable(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := parseAddress(req.To, "to")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := stable.ParseAmount(req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.node.MintStable(r.Context(), caller(r), to, amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeBalances(w, r, to)
}

func (s *Server) handleCreditNative(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := parseAddress(req.To, "to")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseUnits(req.Amount, "amount")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.node.CreditNative(r.Context(), caller(r), to, amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeBalances(w, r, to)
}
