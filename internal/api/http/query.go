package http

import (
	"net/http"
	"strings"

	ledgererr "github.com/ghgledger/ghgledger/internal/errors"
	"github.com/ghgledger/ghgledger/internal/query"
)

// GET /v1/emissions/trend?country=
func (h *Handler) trend(w http.ResponseWriter, r *http.Request) {
	country := strings.TrimSpace(r.URL.Query().Get("country"))
	if country == "" {
		h.fail(w, r, ledgererr.InvalidArgument("country is required"))
		return
	}

	res, err := h.cfg.Queries.Trend(r.Context(), country)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /v1/emissions/sector?country=&year=
func (h *Handler) sector(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year, err := query.ParseOptionalYear(q.Get("year"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.cfg.Queries.SectorBreakdown(r.Context(), query.SectorFilter{
		Country: strings.TrimSpace(q.Get("country")),
		Year:    year,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /v1/emissions/filter?gas=&year=&limit=&page=
func (h *Handler) filter(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year, err := query.ParseOptionalYear(q.Get("year"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := query.ParsePage(q.Get("limit"), q.Get("page"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.cfg.Queries.FilterByGas(r.Context(), query.GasFilter{
		Gas:  q.Get("gas"),
		Year: year,
		Page: page,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /v1/emissions/summary?year=&limit=&page=
func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year, err := query.ParseYear(q.Get("year"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := query.ParsePage(q.Get("limit"), q.Get("page"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.cfg.Queries.Summary(r.Context(), query.SummaryRequest{Year: &year, Page: page})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
