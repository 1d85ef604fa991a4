package rpc

import (
	"net/http"

	"dineledger/crypto"
	"dineledger/native/stable"
)

func (s *Server) handleRegisterRestaurant(w http.ResponseWriter, r *http.Request) {
	var req registerRestaurantRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	addr, err := parseAddress(req.Address, "address")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	restaurant, err := s.node.RegisterRestaurant(r.Context(), caller(r), addr, req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, restaurantResult(restaurant))
}

func (s *Server) handleRestaurantStatus(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r, "addr")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req statusRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.node.SetRestaurantStatus(r.Context(), caller(r), addr, req.Active); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeRestaurant(w, r, addr)
}

func (s *Server) handleGetRestaurant(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r, "addr")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeRestaurant(w, r, addr)
}

func (s *Server) writeRestaurant(w http.ResponseWriter, r *http.Request, addr [20]byte) {
	restaurant, ok, err := s.node.Restaurant(r.Context(), addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		writeAPIError(w, http.StatusNotFound, codeNotFound, "restaurant not registered")
		return
	}
	writeJSON(w, http.StatusOK, restaurantResult(restaurant))
}

func (s *Server) handleProcessPayment(w http.ResponseWriter, r *http.Request) {
	var req processPaymentRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	restaurant, err := parseAddress(req.Restaurant, "restaurant")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	gross, err := stable.ParseAmount(req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	payment, err := s.node.ProcessPayment(r.Context(), caller(r), restaurant, gross, req.BillDetails)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, paymentResult(payment))
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req processPaymentRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	gross, err := stable.ParseAmount(req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	quote, err := s.node.Quote(r.Context(), caller(r), gross)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, QuoteResult{
		Amount:            stable.FormatAmount(quote.Gross),
		Fee:               stable.FormatAmount(quote.Fee),
		RestaurantAmount:  stable.FormatAmount(quote.RestaurantAmount),
		SufficientBalance: quote.SufficientBalance,
		SufficientAllow:   quote.SufficientAllow,
	})
}

func (s *Server) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	payment, err := s.node.Payment(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentResult(payment))
}

func (s *Server) handlePaymentStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.node.PaymentStats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PaymentStatsResult{
		TotalPayments: stats.TotalPayments,
		TotalVolume:   stable.FormatAmount(stats.TotalVolume),
	})
}

func (s *Server) handleFeeConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.node.FeeConfig(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FeeConfigResult{Recipient: crypto.FormatAddress(cfg.Recipient), Bps: cfg.Bps})
}

func (s *Server) handleCustomerPayments(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r, "addr")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ids, err := s.node.CustomerPayments(r.Context(), addr)
	s.writeIDs(w, r, ids, err)
}

func (s *Server) handleRestaurantPayments(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r, "addr")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ids, err := s.node.RestaurantPayments(r.Context(), addr)
	s.writeIDs(w, r, ids, err)
}

func (s *Server) writeIDs(w http.ResponseWriter, r *http.Request, ids []uint64, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if ids == nil {
		ids = []uint64{}
	}
	writeJSON(w, http.StatusOK, IDsResult{IDs: ids})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	spender := s.node.LedgerIdentity()
	if req.Spender != "" {
		parsed, err := parseAddress(req.Spender, "spender")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		spender = parsed
	}
	amount, err := stable.ParseAmount(req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	owner := caller(r)
	if err := s.node.Approve(r.Context(), owner, spender, amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeBalances(w, r, owner)
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r, "addr")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeBalances(w, r, addr)
}

func (s *Server) writeBalances(w http.ResponseWriter, r *http.Request, addr [20]byte) {
	balances, err := s.node.Balances(r.Context(), addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balancesResult(addr, balances))
}
