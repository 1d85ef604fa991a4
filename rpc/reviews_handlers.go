package rpc

import (
	"net/http"

	"dineledger/native/reviews"
)

func (s *Server) handleReviewBill(w http.ResponseWriter, r *http.Request) {
	paymentID, err := uintParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req reviewBillRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	review, err := s.node.ReviewBill(r.Context(), caller(r), paymentID, req.Rating, req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reviewResult(review, review.Reviewer))
}

func (s *Server) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	var req createReviewRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	reviewer, err := parseAddress(req.Reviewer, "reviewer")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	restaurant, err := parseAddress(req.Restaurant, "restaurant")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	review, err := s.node.CreateReview(r.Context(), caller(r), reviewer, restaurant, req.BillID, req.Rating, req.Text, req.RestaurantName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reviewResult(review, review.Reviewer))
}

func (s *Server) handleGetReview(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeReview(w, r, http.StatusOK, id)
}

func (s *Server) writeReview(w http.ResponseWriter, r *http.Request, status int, id uint64) {
	review, owner, err := s.node.ReviewWithOwner(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, status, reviewResult(review, owner))
}

func (s *Server) handleReviewByBill(w http.ResponseWriter, r *http.Request) {
	billID, err := uintParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	review, ok, err := s.node.ReviewByBill(r.Context(), billID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		writeAPIError(w, http.StatusNotFound, codeNotFound, "bill has not been reviewed")
		return
	}
	s.writeReview(w, r, http.StatusOK, review.ID)
}

func (s *Server) handleReviewMetadata(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	uri, err := s.node.TokenURI(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if r.URL.Query().Get("format") == "uri" {
		writeJSON(w, http.StatusOK, map[string]string{"tokenURI": uri})
		return
	}
	meta, err := reviews.DecodeTokenURI(uri)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleTipsFrom(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tipper, err := addressParam(r, "tipper")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	total, err := s.node.TipsFrom(r.Context(), id, tipper)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"amount": bigString(total)})
}

func (s *Server) handleTipReview(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req tipRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseUnits(req.Amount, "amount")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.node.TipReview(r.Context(), caller(r), id, amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeReview(w, r, http.StatusOK, id)
}

func (s *Server) handleReportReview(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req reportRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.node.ReportReview(r.Context(), caller(r), id, req.Reason); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleDeactivateReview(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.node.DeactivateReview(r.Context(), caller(r), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeReview(w, r, http.StatusOK, id)
}

func (s *Server) handleTransferReview(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req addressRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := parseAddress(req.To, "to")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.node.TransferReview(r.Context(), caller(r), to, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeReview(w, r, http.StatusOK, id)
}

func (s *Server) handleRestaurantStats(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r, "addr")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stats, err := s.node.RestaurantStats(r.Context(), addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RestaurantStatsResult{
		TotalReviews:   stats.TotalReviews,
		TotalRatingSum: stats.TotalRatingSum,
		AverageRating:  stats.AverageScaled(),
	})
}

func (s *Server) handleRestaurantReviews(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r, "addr")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ids, err := s.node.RestaurantReviews(r.Context(), addr)
	s.writeIDs(w, r, ids, err)
}

func (s *Server) handleOwnerReviews(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r, "addr")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ids, err := s.node.OwnerReviews(r.Context(), addr)
	s.writeIDs(w, r, ids, err)
}
