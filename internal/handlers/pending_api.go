package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/rs/zerolog"

	"qbeAdmin/internal/admin"
	"qbeAdmin/internal/metrics"
	"qbeAdmin/internal/models"
	"qbeAdmin/internal/qbe"
	"qbeAdmin/internal/services"
	"qbeAdmin/internal/utils"
)

const maxPendingBody = 1 << 20

// PendingAPI lets the query builder hand query definitions to the admin
// through the session.
type PendingAPI struct {
	site     *admin.Site
	sessions sessions.Store
	links    QBELinks
	metrics  *metrics.Metrics
}

func NewPendingAPI(site *admin.Site, store sessions.Store, links QBELinks, m *metrics.Metrics) *PendingAPI {
	return &PendingAPI{site: site, sessions: store, links: links, metrics: m}
}

// PendingResponse tells the query builder where a stored query can be saved
// and viewed.
type PendingResponse struct {
	Hash       string `json:"hash"`
	SaveURL    string `json:"save_url"`
	ResultsURL string `json:"results_url"`
}

// Register mounts the API on router.
func (api *PendingAPI) Register(router *mux.Router) {
	router.HandleFunc("/api/qbe/pending", api.HandleStore).Methods(http.MethodPost)
	router.HandleFunc("/api/qbe/pending/{hash}", api.HandleGet).Methods(http.MethodGet)
}

// HandleStore stores the posted query definition under its hash.
func (api *PendingAPI) HandleStore(w http.ResponseWriter, r *http.Request) {
	if !requireStaff(w, r) {
		return
	}

	var def models.QueryDefinition
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPendingBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&def); err != nil {
		utils.BadRequestError(w, r, "Invalid query definition")
		return
	}
	if err := services.ValidateDefinition(def); err != nil {
		utils.ValidationError(w, r, "Query definition needs at least one valid row")
		return
	}

	pending, err := qbe.LoadPending(api.sessions, r)
	if err != nil {
		utils.InternalServerError(w, r, "Session error")
		return
	}

	hash, err := pending.Put(def)
	if err != nil {
		utils.InternalServerError(w, r, "Failed to encode query definition")
		return
	}
	if err := pending.Save(r, w); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to save pending query session")
		utils.InternalServerError(w, r, "Session error")
		return
	}
	api.metrics.PendingStored.Inc()

	addURL, err := api.site.URL(admin.RouteName(qbeApp, savedQueryModel, "add"))
	if err != nil {
		utils.InternalServerError(w, r, "Failed to build save URL")
		return
	}

	utils.RespondWithJSON(w, r, http.StatusCreated, PendingResponse{
		Hash:       hash,
		SaveURL:    addURL + "?hash=" + hash,
		ResultsURL: api.links.ResultsURL(hash),
	})
}

// HandleGet returns the query definition stored under a hash.
func (api *PendingAPI) HandleGet(w http.ResponseWriter, r *http.Request) {
	if !requireStaff(w, r) {
		return
	}

	hash := mux.Vars(r)["hash"]
	v := utils.NewValidator().ValidateQueryHash(hash, "hash")
	if v.HasErrors() {
		utils.ValidationError(w, r, v.ErrorString())
		return
	}

	pending, err := qbe.LoadPending(api.sessions, r)
	if err != nil {
		utils.InternalServerError(w, r, "Session error")
		return
	}

	def, err := pending.Get(hash)
	if err != nil {
		utils.NotFoundError(w, r, "Pending query")
		return
	}

	utils.RespondWithJSON(w, r, http.StatusOK, def)
}

func requireStaff(w http.ResponseWriter, r *http.Request) bool {
	user, ok := utils.RequireAuthentication(w, r)
	if !ok {
		return false
	}
	if !user.CanAccessAdmin() {
		utils.AuthorizationError(w, r)
		return false
	}
	return true
}
