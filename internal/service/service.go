package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"bedwatch-backend/internal/components/assert"
	"bedwatch-backend/internal/components/telemetry"
	"bedwatch-backend/internal/refresh"
	"bedwatch-backend/internal/snapshot"
	"bedwatch-backend/lib/serviceutil"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	report_trigger_unauthorized = "trigger.unauthorized"
	report_trigger_refresh      = "trigger.refresh"
	report_write_response       = "http.write-response"
)

var ErrUnauthorized = errors.New("unauthorized")

// Refresher runs a single guarded refresh cycle, refresh.Refresher is the implementation.
//
// note: fault injection point
type Refresher interface {
	Refresh(ctx context.Context) (refresh.Summary, error)
	Refreshing() bool
}

// Service serves the trigger endpoint and the read side of the snapshot store.
type Service struct {
	refresher Refresher
	store     *snapshot.Store
	secret    string
	tel       telemetry.API
}

func NewService(refresher Refresher, store *snapshot.Store, secret string, tel telemetry.API) Service {
	assert.NotNil(refresher, "refresher")
	assert.NotNil(store, "store")
	assert.NotNil(tel, "tel")

	return Service{
		refresher: refresher,
		store:     store,
		secret:    secret,
		tel:       telemetry.NewScopedAPI("service", tel),
	}
}

func (s Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/scrape", s.trigger)
	mux.HandleFunc("GET /hospitals", s.hospitals)
	mux.HandleFunc("GET /healthz", s.health)
	return otelhttp.NewHandler(mux, "bedwatch")
}

// authorize checks the shared secret, it must run before anything touches the network.
func (s Service) authorize(r *http.Request) error {
	header := r.Header.Get("Authorization")
	if header == "" {
		return fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	}
	if !serviceutil.VerifyBearer(header, s.secret) {
		return fmt.Errorf("%w: bearer token mismatch", ErrUnauthorized)
	}
	return nil
}

type messageResponse struct {
	Message string `json:"message"`
}

type triggerResponse struct {
	Message     string                      `json:"message"`
	LastScraped string                      `json:"lastScraped"`
	Warnings    int                         `json:"warnings"`
	Data        []snapshot.HospitalDocument `json:"data"`
}

type failureResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	// Stale is true when the previously committed snapshot is still served.
	Stale bool `json:"stale"`
}

type healthResponse struct {
	Status      string `json:"status"`
	LastScraped string `json:"lastScraped,omitempty"`
	Refreshing  bool   `json:"refreshing"`
}

func (s Service) trigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		s.writeJSON(w, http.StatusMethodNotAllowed, messageResponse{Message: "Method not allowed"})
		return
	}

	err := s.authorize(r)
	if err != nil {
		s.tel.ReportWarning(report_trigger_unauthorized, err, telemetry.KV{Key: "remote", Value: r.RemoteAddr})
		s.writeJSON(w, http.StatusUnauthorized, messageResponse{Message: "Unauthorized"})
		return
	}

	// the cycle outlives the request, other readers depend on its commit
	summary, err := s.refresher.Refresh(context.WithoutCancel(r.Context()))
	if errors.Is(err, refresh.ErrBusy) {
		s.writeJSON(w, http.StatusConflict, messageResponse{Message: "Refresh already in progress"})
		return
	}
	if err != nil {
		s.tel.ReportBroken(report_trigger_refresh, err)

		stale := false
		var cycleErr *refresh.CycleError
		if errors.As(err, &cycleErr) {
			stale = cycleErr.Serving
		}
		s.writeJSON(w, http.StatusInternalServerError, failureResponse{
			Message: "Scraping failed",
			Error:   err.Error(),
			Stale:   stale,
		})
		return
	}

	doc := snapshot.NewDocument(summary.Snapshot)
	s.writeJSON(w, http.StatusOK, triggerResponse{
		Message: fmt.Sprintf(
			"Successfully scraped and saved data for %d hospitals.",
			summary.Records,
		),
		LastScraped: doc.LastScraped,
		Warnings:    summary.Warnings,
		Data:        doc.Hospitals,
	})
}

func (s Service) hospitals(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.store.Current()
	if !ok {
		s.writeJSON(w, http.StatusServiceUnavailable, messageResponse{Message: "No data yet"})
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		s.writeJSON(w, http.StatusOK, snapshot.NewDocument(snap))
		return
	}

	matches := snapshot.Search(snap, query)
	doc := snapshot.Document{
		LastScraped: snap.CapturedAt().Format(snapshot.TimeFormat),
		Hospitals:   make([]snapshot.HospitalDocument, 0, len(matches)),
	}
	for _, rec := range matches {
		doc.Hospitals = append(doc.Hospitals, snapshot.NewHospitalDocument(rec))
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s Service) health(w http.ResponseWriter, r *http.Request) {
	res := healthResponse{
		Status:     "empty",
		Refreshing: s.refresher.Refreshing(),
	}
	snap, ok := s.store.Current()
	if ok {
		res.Status = "ok"
		res.LastScraped = snap.CapturedAt().Format(snapshot.TimeFormat)
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s Service) writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.tel.ReportBroken(report_write_response, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(body)
	if err != nil {
		s.tel.ReportDebug("failed to write response", "err", err)
	}
}
