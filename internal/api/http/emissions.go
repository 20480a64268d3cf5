package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	ledgererr "github.com/ghgledger/ghgledger/internal/errors"
	"github.com/ghgledger/ghgledger/internal/query"
	"github.com/ghgledger/ghgledger/pkg/types"
)

// maxJSONBytes caps JSON request bodies.
const maxJSONBytes = 4 << 20

// CreateRequest is the body of POST /v1/emissions and one item of a bulk
// request. Every field is required.
type CreateRequest struct {
	CountryAlpha3    string   `json:"country_alpha3"`
	SectorSeriesCode string   `json:"sector_series_code"`
	Year             *int     `json:"year"`
	Amount           *float64 `json:"amount"`
}

func (c CreateRequest) toNew() (types.NewEmission, error) {
	switch {
	case c.CountryAlpha3 == "":
		return types.NewEmission{}, ledgererr.InvalidArgument("country_alpha3 is required")
	case c.SectorSeriesCode == "":
		return types.NewEmission{}, ledgererr.InvalidArgument("sector_series_code is required")
	case c.Year == nil:
		return types.NewEmission{}, ledgererr.InvalidArgument("year is required")
	case c.Amount == nil:
		return types.NewEmission{}, ledgererr.InvalidArgument("amount is required")
	}
	return types.NewEmission{
		CountryAlpha3:    c.CountryAlpha3,
		SectorSeriesCode: c.SectorSeriesCode,
		Year:             *c.Year,
		Amount:           *c.Amount,
	}, nil
}

// BulkRequest is the body of POST /v1/emissions/bulk.
type BulkRequest struct {
	Records []CreateRequest `json:"records"`
}

// decodeJSON decodes the request body into dst, rejecting unknown fields
// and trailing data.
func decodeJSON(r *http.Request, w http.ResponseWriter, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return ledgererr.InvalidArgument("request body is empty")
		}
		return ledgererr.InvalidArgument("invalid request body: %v", err)
	}
	if dec.More() {
		return ledgererr.InvalidArgument("invalid request body: trailing data")
	}
	return nil
}

func (h *Handler) listEmissions(w http.ResponseWriter, r *http.Request) {
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

	res, err := h.cfg.Queries.List(r.Context(), query.ListFilter{
		Country: q.Get("country"),
		Year:    year,
		Page:    page,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) getEmission(w http.ResponseWriter, r *http.Request) {
	rec, err := h.cfg.Queries.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) createEmission(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := decodeJSON(r, w, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	in, err := req.toNew()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	rec, err := h.cfg.Writes.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", location(rec.ID))
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) createEmissions(w http.ResponseWriter, r *http.Request) {
	var req BulkRequest
	if err := decodeJSON(r, w, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	items := make([]types.NewEmission, 0, len(req.Records))
	for i, rec := range req.Records {
		in, err := rec.toNew()
		if err != nil {
			var le *ledgererr.LedgerError
			errors.As(err, &le)
			h.fail(w, r, ledgererr.InvalidArgument("records[%d]: %s", i, le.Message))
			return
		}
		items = append(items, in)
	}

	res, err := h.cfg.Writes.CreateMany(r.Context(), items)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) updateEmission(w http.ResponseWriter, r *http.Request) {
	var patch types.EmissionPatch
	if err := decodeJSON(r, w, &patch); err != nil {
		h.fail(w, r, err)
		return
	}

	rec, err := h.cfg.Writes.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) deleteEmission(w http.ResponseWriter, r *http.Request) {
	rec, err := h.cfg.Writes.SoftDelete(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) restoreEmission(w http.ResponseWriter, r *http.Request) {
	rec, err := h.cfg.Writes.Restore(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// location returns the canonical URL of a record.
func location(id string) string {
	return fmt.Sprintf("/v1/emissions/%s", id)
}
