package rpc

import (
	"net/http"
	"strconv"
	"strings"

	"dineledger/crypto"
	"dineledger/indexer"
)

func (s *Server) handleIndexPayments(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		writeAPIError(w, http.StatusNotFound, codeNotFound, "indexer disabled")
		return
	}
	q := r.URL.Query()
	filter := indexer.PaymentFilter{}
	var err error
	if filter.Customer, err = queryAddress(q.Get("customer"), "customer"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if filter.Restaurant, err = queryAddress(q.Get("restaurant"), "restaurant"); err != nil {
		s.writeError(w, r, err)
		return
	}
	filter.Limit, filter.Offset = pageParams(r)
	rows, err := s.index.ListPayments(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []indexer.PaymentRow{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"payments": rows})
}

func (s *Server) handleIndexReviews(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		writeAPIError(w, http.StatusNotFound, codeNotFound, "indexer disabled")
		return
	}
	q := r.URL.Query()
	filter := indexer.ReviewFilter{ActiveOnly: q.Get("active") == "true"}
	var err error
	if filter.Restaurant, err = queryAddress(q.Get("restaurant"), "restaurant"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if filter.Owner, err = queryAddress(q.Get("owner"), "owner"); err != nil {
		s.writeError(w, r, err)
		return
	}
	filter.Limit, filter.Offset = pageParams(r)
	rows, err := s.index.ListReviews(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []indexer.ReviewRow{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reviews": rows})
}

// queryAddress normalises an optional address filter to checksum form, the
// form the indexer stores.
func queryAddress(raw, field string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	addr, err := parseAddress(raw, field)
	if err != nil {
		return "", err
	}
	return crypto.FormatAddress(addr), nil
}

func pageParams(r *http.Request) (int, int) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
