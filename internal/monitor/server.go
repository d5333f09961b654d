package monitor

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/cave.view/internal/actors"
	"github.com/banshee-data/cave.view/internal/calibration"
	"github.com/banshee-data/cave.view/internal/feed"
	"github.com/banshee-data/cave.view/internal/httputil"
	"github.com/banshee-data/cave.view/internal/timeutil"
	"github.com/banshee-data/cave.view/internal/version"
	"github.com/banshee-data/cave.view/internal/viewpoint"
)

// Pipeline is the part of viewpoint.Pipeline the monitor reads.
type Pipeline interface {
	Status() viewpoint.Status
	Healthy() bool
	HeatMap() *actors.HeatMap
}

// Options wires a Server. Pipeline and Calibrator are required; the rest
// enable their routes when set.
type Options struct {
	Pipeline   Pipeline
	Calibrator *calibration.Calibrator
	Store      *calibration.Store
	FeedStats  func() feed.Stats
	Trace      *EyeTrace
	Plotter    *TracePlotter
	Clock      timeutil.Clock
}

// Server serves the monitoring and calibration API.
type Server struct {
	opts    Options
	clock   timeutil.Clock
	started time.Time
}

// NewServer returns a Server for opts.
func NewServer(opts Options) *Server {
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Server{opts: opts, clock: clock, started: clock.Now()}
}

// ServeMux returns a mux with every route mounted.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/calibration", s.handleCalibration)
	mux.HandleFunc("/api/calibration/snapshots", s.handleSnapshots)
	mux.HandleFunc("/api/calibration/snapshots/{id}", s.handleSnapshot)
	mux.HandleFunc("/api/calibrator", s.handleCalibrator)
	mux.HandleFunc("/api/plots", s.handlePlots)
	mux.HandleFunc("/debug/charts/eye", s.handleEyeChart)
	mux.HandleFunc("/debug/charts/heatmap", s.handleHeatMapChart)
	return mux
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Version  version.Info        `json:"version"`
	Healthy  bool                `json:"healthy"`
	Uptime   string              `json:"uptime"`
	Pipeline viewpoint.Status    `json:"pipeline"`
	HeatMap  actors.HeatMapStats `json:"heat_map"`
	Flags    calibration.Flags   `json:"flags"`
	Feed     *feed.Stats         `json:"feed,omitempty"`
	Trace    *TraceStats         `json:"trace,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	resp := StatusResponse{
		Version:  version.Get(),
		Healthy:  s.opts.Pipeline.Healthy(),
		Uptime:   s.clock.Since(s.started).Round(time.Second).String(),
		Pipeline: s.opts.Pipeline.Status(),
		HeatMap:  s.opts.Pipeline.HeatMap().Stats(),
		Flags:    s.opts.Calibrator.Flags(),
	}
	if s.opts.FeedStats != nil {
		st := s.opts.FeedStats()
		resp.Feed = &st
	}
	if s.opts.Trace != nil {
		st := s.opts.Trace.Stats()
		resp.Trace = &st
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) handleCalibration(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		p, err := s.opts.Calibrator.Current(r.Context())
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, p)
	case http.MethodPut:
		body, err := httputil.ReadBody(w, r)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		p, err := calibration.Decode(body)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if err := s.opts.Calibrator.Apply(r.Context(), p); err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		current, err := s.opts.Calibrator.Current(r.Context())
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, current)
	default:
		httputil.MethodNotAllowed(w, http.MethodGet, http.MethodPut)
	}
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	if s.opts.Store == nil {
		httputil.NotFound(w, "no calibration store configured")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			httputil.BadRequest(w, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	list, err := s.opts.Store.List(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, list)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	if s.opts.Store == nil {
		httputil.NotFound(w, "no calibration store configured")
		return
	}
	id := r.PathValue("id")
	p, snap, err := s.opts.Store.Get(r.Context(), id)
	if errors.Is(err, calibration.ErrNoSnapshot) {
		httputil.NotFound(w, fmt.Sprintf("no snapshot %q", id))
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, struct {
		Snapshot calibration.Snapshot `json:"snapshot"`
		Package  calibration.Package  `json:"package"`
	}{snap, p})
}

func (s *Server) handleCalibrator(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	var msg calibration.Message
	if err := httputil.DecodeJSON(w, r, &msg); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	replies, err := s.opts.Calibrator.Handle(r.Context(), msg)
	if errors.Is(err, calibration.ErrEmptyPackage) {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if replies == nil {
		replies = []calibration.Message{}
	}
	httputil.WriteJSONOK(w, replies)
}

func (s *Server) handlePlots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	if s.opts.Plotter == nil || s.opts.Trace == nil {
		httputil.NotFound(w, "plotting is not enabled")
		return
	}
	files, err := s.opts.Plotter.Plot(s.opts.Trace.Samples(), s.clock.Now().UTC().Format("20060102T150405"))
	if errors.Is(err, ErrNoSamples) {
		httputil.WriteJSONError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string][]string{"files": files})
}

func (s *Server) handleEyeChart(w http.ResponseWriter, r *http.Request) {
	if s.opts.Trace == nil {
		httputil.NotFound(w, "no eye trace recorded")
		return
	}
	var buf bytes.Buffer
	if err := renderEyePage(&buf, s.opts.Trace.Samples()); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleHeatMapChart(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := renderHeatMap(&buf, s.opts.Pipeline.HeatMap()); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
