package restapi

import (
	"net/http"

	"github.com/davecgh/go-spew/spew"
	"wayfinder.transitlab.org/internal/appconf"
)

// debugEngineHandler dumps the engine's observable state as plain text.
// Disabled outside development.
func (api *RestAPI) debugEngineHandler(w http.ResponseWriter, r *http.Request) {
	if api.Config.Env == appconf.Production {
		http.NotFound(w, r)
		return
	}

	type engineDebug struct {
		Agencies       any
		Ready          bool
		IndexedStops   int
		RealtimeAgeSec float64
		RealtimeSeen   bool
	}

	state := engineDebug{
		Agencies: api.Engine.Agencies(),
		Ready:    api.Engine.IsReady(),
	}
	if index := api.Engine.StopIndexSnapshot(); index != nil {
		state.IndexedStops = index.Len()
	}
	if age, ok := api.Engine.RealtimeSnapshotAge(); ok {
		state.RealtimeSeen = true
		state.RealtimeAgeSec = age.Seconds()
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(spew.Sdump(state)))
}
