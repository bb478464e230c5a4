package server

import (
	"net/http"
	"time"

	"github.com/cyclopcam/www"
	"github.com/go-chi/httprate"
	"github.com/julienschmidt/httprouter"
)

func (s *Server) setupHttpRoutes() error {
	logEveryRequest := false
	router := httprouter.New()

	// unprotected creates an HTTP handler that runs inside www's panic handler
	unprotected := func(method, route string, handle httprouter.Handle) {
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			if logEveryRequest {
				s.Log.Infof("HTTP %v %v", method, r.URL.Path)
			}
			handle(w, r, params)
		})
	}

	// ratelimited is unprotected, but with a per-IP request limit.
	// Each route gets its own limiter, so we don't need httprate.KeyByEndpoint.
	ratelimited := func(method, route string, handle func(w http.ResponseWriter, r *http.Request), requestLimit int, windowLength time.Duration) {
		limited := httprate.Limit(requestLimit, windowLength, httprate.WithKeyFuncs(httprate.KeyByIP))
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			limited(http.HandlerFunc(handle)).ServeHTTP(w, r)
		})
	}

	framesPerSecond := s.Config.FramesPerSecond
	if framesPerSecond <= 0 {
		framesPerSecond = 30
	}

	unprotected("GET", "/api/ping", s.httpPing)
	unprotected("GET", "/api/config", s.httpConfig)
	unprotected("GET", "/api/stats", s.httpStats)
	ratelimited("POST", "/api/frame", s.httpFrame, framesPerSecond, time.Second)
	unprotected("GET", "/api/calibration", s.httpCalibrationStatus)
	ratelimited("POST", "/api/calibration/begin", s.httpCalibrationBegin, 10, time.Second)
	ratelimited("POST", "/api/calibration/cancel", s.httpCalibrationCancel, 10, time.Second)
	ratelimited("POST", "/api/calibration/complete", s.httpCalibrationComplete, 10, time.Second)
	unprotected("GET", "/api/calibration/history", s.httpCalibrationHistory)
	unprotected("GET", "/api/ws/results", s.httpResultsWebSocket)

	s.httpRouter = router
	return nil
}
