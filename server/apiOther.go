package server

import (
	"net/http"
	"time"

	"github.com/cyclopcam/rangefinder/pkg/nn"
	"github.com/cyclopcam/rangefinder/pkg/rangefinder"
	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

type pingJSON struct {
	Time      int64 `json:"time"`
	StartedAt int64 `json:"startedAt"`
}

func (s *Server) httpPing(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, &pingJSON{
		Time:      time.Now().Unix(),
		StartedAt: s.StartedAt.Unix(),
	})
}

type configJSON struct {
	Architecture        string                        `json:"architecture"`
	Width               int                           `json:"width"`
	Height              int                           `json:"height"`
	Predictions         int                           `json:"predictions"`
	NumClasses          int                           `json:"numClasses"`
	Suppression         nn.SuppressionParams          `json:"suppression"`
	MinSelectConfidence float32                       `json:"minSelectConfidence"`
	CalibrationMethod   rangefinder.CalibrationMethod `json:"calibrationMethod"`
	ReferenceDistance   float32                       `json:"referenceDistance"`
	ReferenceSizes      *rangefinder.ReferenceSizes   `json:"referenceSizes"`
	Scale               float32                       `json:"scale"`
}

func (s *Server) httpConfig(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	model := s.Pipeline.Model()
	www.SendJSON(w, &configJSON{
		Architecture:        model.Architecture,
		Width:               model.Width,
		Height:              model.Height,
		Predictions:         model.Predictions,
		NumClasses:          len(model.Classes),
		Suppression:         s.Pipeline.SuppressionParams(),
		MinSelectConfidence: s.Pipeline.MinSelectConfidence(),
		CalibrationMethod:   s.Config.CalibrationMethod,
		ReferenceDistance:   s.Config.ReferenceDistance,
		ReferenceSizes:      s.Pipeline.ReferenceSizes(),
		Scale:               s.Pipeline.Calibration().Scale(),
	})
}

type statsJSON struct {
	rangefinder.StatsSnapshot
	WebSocketClients int `json:"webSocketClients"`
}

func (s *Server) httpStats(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	snap := s.Pipeline.Stats.Snapshot()
	if www.QueryValue(r, "reset") == "1" {
		s.Pipeline.Stats.Reset()
	}
	www.SendJSON(w, &statsJSON{
		StatsSnapshot:    snap,
		WebSocketClients: s.Results.NumClients(),
	})
}

func (s *Server) httpResultsWebSocket(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	c, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Errorf("httpResultsWebSocket websocket upgrade failed: %v", err)
		return
	}
	s.Results.RunWebSocket(c)
}
