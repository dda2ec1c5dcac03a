// Package api implements the thin HTTP adapter spec.md §6 describes: it
// decodes requests, calls a sorcerer method, and translates the typed
// result into a status code from flecserr's taxonomy. No business logic
// lives here. Grounded on lazydocker's pkg/gui event-to-command dispatch
// generalized from keybindings to routes, using gorilla/mux the way the
// rest of the example pack wires an HTTP router for a daemon process.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/flecserr"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/id"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/manifest"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/sorcerer"
	"github.com/FLECS-Technologies/flecs-public-sub004/pkg/vault"
)

// Server wires the representative /v2 routes from spec.md §6 onto a
// gorilla/mux router.
type Server struct {
	log         *logrus.Entry
	instances   *sorcerer.Instances
	apps        *sorcerer.Apps
	deployments *sorcerer.Deployments
	providers   *sorcerer.Providers
	licensing   *sorcerer.Licensing
	router      *mux.Router
}

// NewServer builds a Server and registers every route.
func NewServer(log *logrus.Entry, instances *sorcerer.Instances, apps *sorcerer.Apps, deployments *sorcerer.Deployments, providers *sorcerer.Providers, licensing *sorcerer.Licensing) *Server {
	s := &Server{
		log:         log,
		instances:   instances,
		apps:        apps,
		deployments: deployments,
		providers:   providers,
		licensing:   licensing,
		router:      mux.NewRouter(),
	}
	s.routes()
	return s
}

// Handler returns the root http.Handler to serve.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	v2 := s.router.PathPrefix("/v2").Subrouter()

	v2.HandleFunc("/instances", s.listInstances).Methods(http.MethodGet)
	v2.HandleFunc("/instances/create", s.createInstance).Methods(http.MethodPost)
	v2.HandleFunc("/instances/{id}", s.getInstance).Methods(http.MethodGet)
	v2.HandleFunc("/instances/{id}", s.deleteInstance).Methods(http.MethodDelete)
	v2.HandleFunc("/instances/{id}/start", s.startInstance).Methods(http.MethodPost)
	v2.HandleFunc("/instances/{id}/stop", s.stopInstance).Methods(http.MethodPost)
	v2.HandleFunc("/instances/{id}/config/environment", s.setEnv).Methods(http.MethodPut)
	v2.HandleFunc("/instances/{id}/config/environment/{name}", s.getEnvVar).Methods(http.MethodGet)
	v2.HandleFunc("/instances/{id}/editor/{port}", s.editorRedirect).Methods(http.MethodGet)
	v2.HandleFunc("/instances/{id}/export", s.exportInstance).Methods(http.MethodGet)
	v2.HandleFunc("/instances/import", s.importInstance).Methods(http.MethodPost)

	v2.HandleFunc("/apps/install", s.installApp).Methods(http.MethodPost)
	v2.HandleFunc("/apps/uninstall", s.uninstallApp).Methods(http.MethodPost)

	v2.HandleFunc("/deployments", s.listDeployments).Methods(http.MethodGet)

	v2.HandleFunc("/device/license/activation", s.activateLicense).Methods(http.MethodPost)
	v2.HandleFunc("/console/authentication", s.storeAuthentication).Methods(http.MethodPost)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError translates err's flecserr.Kind to an HTTP status code (spec.md
// §7) and writes a small JSON envelope.
func writeError(w http.ResponseWriter, err error) {
	kind := flecserr.KindOf(err)
	writeJSON(w, kind.StatusCode(), map[string]string{"error": err.Error()})
}

func pathInstanceID(r *http.Request) (id.InstanceID, error) {
	raw := mux.Vars(r)["id"]
	return id.ParseInstanceID(raw)
}

type jobAccepted struct {
	QuestID id.QuestID `json:"questId"`
}

func (s *Server) listInstances(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	insts, err := s.instances.List(r.Context(), q.Get("app"), q.Get("version"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, insts)
}

type createInstanceRequest struct {
	App          string `json:"app"`
	Version      string `json:"version"`
	Name         string `json:"name"`
	DeploymentID string `json:"deploymentId"`
}

func (s *Server) createInstance(w http.ResponseWriter, r *http.Request) {
	var req createInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, flecserr.Because(flecserr.KindMalformedRequest, "decode create instance request", err))
		return
	}
	appKey := id.AppKey{Name: req.App, Version: req.Version}
	questID, err := s.instances.Create(r.Context(), appKey, req.Name, id.DeploymentID(req.DeploymentID))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, jobAccepted{QuestID: questID})
}

func (s *Server) getInstance(w http.ResponseWriter, r *http.Request) {
	instanceID, err := pathInstanceID(r)
	if err != nil {
		writeError(w, flecserr.Because(flecserr.KindMalformedRequest, "parse instance id", err))
		return
	}
	inst, err := s.instances.Get(r.Context(), instanceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (s *Server) deleteInstance(w http.ResponseWriter, r *http.Request) {
	instanceID, err := pathInstanceID(r)
	if err != nil {
		writeError(w, flecserr.Because(flecserr.KindMalformedRequest, "parse instance id", err))
		return
	}
	questID, err := s.instances.Delete(r.Context(), instanceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, jobAccepted{QuestID: questID})
}

func (s *Server) startInstance(w http.ResponseWriter, r *http.Request) {
	instanceID, err := pathInstanceID(r)
	if err != nil {
		writeError(w, flecserr.Because(flecserr.KindMalformedRequest, "parse instance id", err))
		return
	}
	questID, err := s.instances.Start(r.Context(), instanceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, jobAccepted{QuestID: questID})
}

func (s *Server) stopInstance(w http.ResponseWriter, r *http.Request) {
	instanceID, err := pathInstanceID(r)
	if err != nil {
		writeError(w, flecserr.Because(flecserr.KindMalformedRequest, "parse instance id", err))
		return
	}
	questID, err := s.instances.Stop(r.Context(), instanceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, jobAccepted{QuestID: questID})
}

func (s *Server) setEnv(w http.ResponseWriter, r *http.Request) {
	instanceID, err := pathInstanceID(r)
	if err != nil {
		writeError(w, flecserr.Because(flecserr.KindMalformedRequest, "parse instance id", err))
		return
	}
	var vars []manifest.EnvVar
	if err := json.NewDecoder(r.Body).Decode(&vars); err != nil {
		writeError(w, flecserr.Because(flecserr.KindMalformedRequest, "decode environment", err))
		return
	}
	questID, err := s.instances.SetEnv(r.Context(), instanceID, vars)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, jobAccepted{QuestID: questID})
}

func (s *Server) getEnvVar(w http.ResponseWriter, r *http.Request) {
	instanceID, err := pathInstanceID(r)
	if err != nil {
		writeError(w, flecserr.Because(flecserr.KindMalformedRequest, "parse instance id", err))
		return
	}
	name := mux.Vars(r)["name"]
	v, err := s.instances.GetEnvVar(r.Context(), instanceID, name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) exportInstance(w http.ResponseWriter, r *http.Request) {
	instanceID, err := pathInstanceID(r)
	if err != nil {
		writeError(w, flecserr.Because(flecserr.KindMalformedRequest, "parse instance id", err))
		return
	}
	w.Header().Set("Content-Type", "application/x-tar")
	if err := s.instances.Export(r.Context(), instanceID, w); err != nil {
		s.log.WithError(err).WithField("instance", instanceID).Error("failed to export instance")
	}
}

func (s *Server) importInstance(w http.ResponseWriter, r *http.Request) {
	deploymentID := id.DeploymentID(r.URL.Query().Get("deploymentId"))
	instanceID, err := s.instances.Import(r.Context(), r.Body, deploymentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": instanceID.String()})
}

func (s *Server) editorRedirect(w http.ResponseWriter, r *http.Request) {
	instanceID, err := pathInstanceID(r)
	if err != nil {
		writeError(w, flecserr.Because(flecserr.KindMalformedRequest, "parse instance id", err))
		return
	}
	port, err := strconv.ParseUint(mux.Vars(r)["port"], 10, 16)
	if err != nil {
		writeError(w, flecserr.Because(flecserr.KindMalformedRequest, "parse editor port", err))
		return
	}
	allocated, err := s.instances.EditorRedirect(r.Context(), instanceID, uint16(port))
	if err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, "http://localhost:"+strconv.Itoa(allocated)+"/", http.StatusFound)
}

type installAppRequest struct {
	App           string   `json:"app"`
	Version       string   `json:"version"`
	DeploymentIDs []string `json:"deploymentIds"`
}

func (s *Server) installApp(w http.ResponseWriter, r *http.Request) {
	var req installAppRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, flecserr.Because(flecserr.KindMalformedRequest, "decode install app request", err))
		return
	}
	deploymentIDs := make([]id.DeploymentID, 0, len(req.DeploymentIDs))
	for _, d := range req.DeploymentIDs {
		deploymentIDs = append(deploymentIDs, id.DeploymentID(d))
	}
	appKey := id.AppKey{Name: req.App, Version: req.Version}
	questID, err := s.apps.Install(r.Context(), appKey, deploymentIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, jobAccepted{QuestID: questID})
}

type uninstallAppRequest struct {
	App     string `json:"app"`
	Version string `json:"version"`
}

func (s *Server) uninstallApp(w http.ResponseWriter, r *http.Request) {
	var req uninstallAppRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, flecserr.Because(flecserr.KindMalformedRequest, "decode uninstall app request", err))
		return
	}
	appKey := id.AppKey{Name: req.App, Version: req.Version}
	questID, err := s.apps.Uninstall(r.Context(), appKey)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, jobAccepted{QuestID: questID})
}

func (s *Server) listDeployments(w http.ResponseWriter, r *http.Request) {
	deps, err := s.deployments.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deps)
}

type activateLicenseRequest struct {
	LicenseKey string `json:"licenseKey"`
}

func (s *Server) activateLicense(w http.ResponseWriter, r *http.Request) {
	var req activateLicenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, flecserr.Because(flecserr.KindMalformedRequest, "decode license activation request", err))
		return
	}
	if err := s.licensing.SetSession(r.Context(), vault.Secrets{LicenseKey: req.LicenseKey, Authenticated: true}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

type storeAuthRequest struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) storeAuthentication(w http.ResponseWriter, r *http.Request) {
	var req storeAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, flecserr.Because(flecserr.KindMalformedRequest, "decode console authentication request", err))
		return
	}
	if err := s.licensing.SetSession(r.Context(), vault.Secrets{SessionID: req.SessionID, Authenticated: true}); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
