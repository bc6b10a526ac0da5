package tracker

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/terrawatch/landsat-tracker/common"
)

func (t *Tracker) NewHandler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/map", t.GetMapHandler).Methods("GET")
	r.HandleFunc("/scenes", t.ListChainsHandler).Methods("GET")
	r.HandleFunc("/scene/{scene}", t.GetChainHandler).Methods("GET")
	r.HandleFunc("/scene/{scene}/track", t.TrackSceneHandler).Methods("POST")
	return r
}

type mapResponse struct {
	common.PublishedMap
	Generation uint64 `json:"generation"`
}

// GetMapHandler returns the latest ready map. The display surface polls this
// on every page view; 204 means nothing has been published yet.
func (t *Tracker) GetMapHandler(w http.ResponseWriter, req *http.Request) {
	m, generation, ok := t.store.Latest()
	if !ok {
		w.WriteHeader(204)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(mapResponse{PublishedMap: m, Generation: generation})
}

// ListChainsHandler lists the active polling chains
func (t *Tracker) ListChainsHandler(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(t.Chains())
}

// GetChainHandler retrieves the chain polling a scene
func (t *Tracker) GetChainHandler(w http.ResponseWriter, req *http.Request) {
	sceneID := mux.Vars(req)["scene"]
	state, ok := t.Chain(sceneID)
	if !ok {
		w.WriteHeader(404)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(state)
}

// TrackSceneHandler starts (or joins) a polling chain for the scene.
// 201 when a chain was started, 200 when one was already running.
func (t *Tracker) TrackSceneHandler(w http.ResponseWriter, req *http.Request) {
	sceneID := mux.Vars(req)["scene"]
	if sceneID == "" {
		w.WriteHeader(400)
		return
	}
	if t.Track(req.Context(), sceneID) {
		w.WriteHeader(201)
		return
	}
	w.WriteHeader(200)
}
