package router

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/quadra-map/internal/fieldlist"
)

func (a *API) chips(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	readOnly, _ := strconv.ParseBool(q.Get("readOnly"))
	writeJSON(w, http.StatusOK, a.Fields.Chips(r.Context(), q.Get("value"), readOnly))
}

func (a *API) removeChip(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value    string `json:"value"`
		Key      string `json:"key"`
		ReadOnly bool   `json:"readOnly"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	v, err := fieldlist.Remove(req.Value, req.Key, req.ReadOnly)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Value string `json:"value"`
	}{v})
}

func (a *API) detail(w http.ResponseWriter, r *http.Request) {
	d, err := a.Fields.Detail(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
