package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cyclopcam/rangefinder/pkg/rangefinder"
	"github.com/cyclopcam/rangefinder/server/calibdb"
	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

type completeCalibrationJSON struct {
	ManualHeightCm string `json:"manualHeightCm"` // Optional. Falls back to the reference size if not a positive number.
}

type calibrationCompletedJSON struct {
	Result rangefinder.CalibrationResult `json:"result"`
	Record *calibdb.Calibration          `json:"record,omitempty"`
}

// Convert a workflow error into the appropriate HTTP error
func checkCalibration(err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, rangefinder.ErrWrongState), errors.Is(err, rangefinder.ErrNoCalibrationFrame):
		www.Panic(http.StatusConflict, err.Error())
	case errors.Is(err, rangefinder.ErrUnknownClass),
		errors.Is(err, rangefinder.ErrZeroSpan),
		errors.Is(err, rangefinder.ErrCalibrationOutOfRange),
		errors.Is(err, rangefinder.ErrInvalidScale):
		www.Panic(http.StatusUnprocessableEntity, err.Error())
	}
	www.Check(err)
}

func (s *Server) httpCalibrationStatus(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, s.Workflow.Status())
}

func (s *Server) httpCalibrationBegin(w http.ResponseWriter, r *http.Request) {
	checkCalibration(s.Workflow.Begin())
	www.SendJSON(w, s.Workflow.Status())
}

func (s *Server) httpCalibrationCancel(w http.ResponseWriter, r *http.Request) {
	s.Workflow.Cancel()
	www.SendOK(w)
}

// The body is optional
func (s *Server) httpCalibrationComplete(w http.ResponseWriter, r *http.Request) {
	req := completeCalibrationJSON{}
	if body := www.ReadLimited(w, r, 4096); len(body) != 0 {
		www.CheckClient(json.Unmarshal(body, &req))
	}

	result, err := s.Workflow.Complete(req.ManualHeightCm)
	if err != nil && result.Scale != 0 {
		// The new scale is in effect, but it could not be saved
		s.Log.Errorf("Calibrated scale %v could not be saved: %v", result.Scale, err)
	}
	checkCalibration(err)

	resp := calibrationCompletedJSON{
		Result: result,
	}
	if rec, err := s.CalibDB.AddCalibration(result); err != nil {
		s.Log.Warnf("Failed to record calibration history: %v", err)
	} else {
		resp.Record = rec
	}
	www.SendJSON(w, &resp)
}

func (s *Server) httpCalibrationHistory(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	recs, err := s.CalibDB.RecentCalibrations(www.QueryInt(r, "limit"))
	www.Check(err)
	www.SendJSON(w, recs)
}
