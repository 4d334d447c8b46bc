package http

import (
	"encoding/json"
	"net/http"

	"alex/internal/plugin"
	sharederrors "alex/internal/shared/errors"
)

// PluginHandlers exposes the admin-only /admin/plugins/* routes over a
// plugin.Host (spec §4.9).
type PluginHandlers struct {
	host *plugin.Host
}

// NewPluginHandlers builds PluginHandlers wrapping host.
func NewPluginHandlers(host *plugin.Host) *PluginHandlers {
	return &PluginHandlers{host: host}
}

// List handles GET /admin/plugins, reporting every registered plugin's
// current lifecycle state.
func (h *PluginHandlers) List(w http.ResponseWriter, r *http.Request) {
	names := h.host.Names()
	out := make([]map[string]any, len(names))
	for i, name := range names {
		out[i] = map[string]any{"name": name, "state": string(h.host.State(name))}
	}
	writeJSON(w, http.StatusOK, map[string]any{"plugins": out})
}

// Execute handles POST /admin/plugins/{name}/execute: runs the named
// plugin with the request body as its params and reports the result or a
// route-local PluginError (spec §7).
func (h *PluginHandlers) Execute(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var params map[string]any
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body", nil)
			return
		}
	}

	result, err := h.host.Execute(r.Context(), name, params)
	if err != nil {
		writePluginError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

// History handles GET /admin/plugins/{name}/history, returning the
// plugin's bounded execution history.
func (h *PluginHandlers) History(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	execs := h.host.History(name)
	out := make([]map[string]any, len(execs))
	for i, e := range execs {
		out[i] = map[string]any{
			"success": e.Success, "elapsed_ms": e.Elapsed.Milliseconds(),
			"params": e.Params, "result": e.Result, "error": e.Error, "at": e.At,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"plugin": name, "history": out})
}

// writePluginError classifies a plugin.Host.Execute error per spec §7's
// PluginError (route-local): a permanent failure (unready, bad params) is
// the caller's fault; anything else is treated as a transient execution
// fault.
func writePluginError(w http.ResponseWriter, err error) {
	if sharederrors.IsPermanent(err) {
		writeError(w, http.StatusBadRequest, "plugin_error", err.Error(), nil)
		return
	}
	writeError(w, http.StatusServiceUnavailable, "plugin_error", err.Error(), nil)
}
