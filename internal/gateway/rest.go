package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/soyeahso/outreach/internal/campaign"
	"github.com/soyeahso/outreach/internal/domain"
	"github.com/soyeahso/outreach/internal/transcript"
)

// maxBodyBytes caps REST request bodies.
const maxBodyBytes = 1 << 20

// Handler returns the HTTP router: public /health, the /ws endpoint (which
// authenticates in its own handshake) and the bearer-protected /api tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(s.log.Sub("http")))
	r.Use(chimiddleware.Recoverer)
	r.Use(corsHandler(s.cfg.Gateway.AllowedOrigins))

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.bearerAuth)

		r.Get("/health", s.restHealth)

		r.Route("/agents", func(r chi.Router) {
			r.Get("/", s.restListAgents)
			r.Post("/", s.restSpawnAgent)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.restGetAgent)
				r.Delete("/", s.restDeleteAgent)
				r.Post("/start", s.restControl(s.agents.Start))
				r.Post("/pause", s.restControl(s.agents.Pause))
				r.Post("/resume", s.restControl(s.agents.Resume))
				r.Post("/stop", s.restControl(s.agents.Stop))
				r.Get("/attempts", s.restAttempts)
			})
		})

		r.Post("/transcripts/parse", s.restParseTranscript)
		r.Get("/transcripts/search", s.restSearchTranscripts)

		r.Get("/leads", s.restListLeads)
		r.Post("/leads", s.restPutLead)
	})

	r.NotFound(handleNotFound)
	return r
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func writeInvalid(w http.ResponseWriter, msg string) {
	writeError(w, invalidParams("%s", msg))
}

func (s *Server) restHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.health())
}

func (s *Server) restListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"agents": s.agents.List()})
}

func (s *Server) restSpawnAgent(w http.ResponseWriter, r *http.Request) {
	var req campaign.SpawnRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeInvalid(w, err.Error())
		return
	}
	agent, err := s.agents.Spawn(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, agent)
}

func (s *Server) restGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.agents.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) restDeleteAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted, err := s.agents.Delete(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agentId": id, "deleted": deleted})
}

func (s *Server) restControl(op func(id string) (domain.Snapshot, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := op(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, controlError(err, snap))
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func (s *Server) restAttempts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	attempts, err := s.attempts(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agentId": id, "attempts": attempts})
}

func (s *Server) restParseTranscript(w http.ResponseWriter, r *http.Request) {
	var p struct {
		Transcript string `json:"transcript"`
	}
	if err := decodeBody(w, r, &p); err != nil {
		writeInvalid(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": transcript.Parse(p.Transcript)})
}

func (s *Server) restSearchTranscripts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeInvalid(w, "q is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	st, err := s.requireStore()
	if err != nil {
		writeError(w, err)
		return
	}
	hits, err := st.SearchTranscripts(r.Context(), q, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempts": hits})
}

func (s *Server) restListLeads(w http.ResponseWriter, r *http.Request) {
	st, err := s.requireStore()
	if err != nil {
		writeError(w, err)
		return
	}
	leads, err := st.ListLeads(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": leads})
}

func (s *Server) restPutLead(w http.ResponseWriter, r *http.Request) {
	var lead domain.Lead
	if err := decodeBody(w, r, &lead); err != nil {
		writeInvalid(w, err.Error())
		return
	}
	st, err := s.requireStore()
	if err != nil {
		writeError(w, err)
		return
	}
	if err := st.PutLead(r.Context(), lead); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}
