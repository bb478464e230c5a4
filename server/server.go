package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/rangefinder/pkg/rangefinder"
	"github.com/cyclopcam/rangefinder/server/calibdb"
	"github.com/cyclopcam/rangefinder/server/config"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

// Maximum size of a tensor upload, in bytes. A 640x640 yolov5 model has 25200 predictions
// of 85 float32s, which is 8.5 MB.
const MaxTensorBytes = 16 * 1024 * 1024

type Server struct {
	Log         logs.Log
	Config      *config.Config
	Pipeline    *rangefinder.Pipeline
	Workflow    *rangefinder.Workflow
	CalibDB     *calibdb.CalibDB
	Results     *ResultHub
	StartedAt   time.Time
	shutdownMtx sync.Mutex
	isShutdown  bool

	signalIn   chan os.Signal
	httpServer *http.Server
	httpRouter *httprouter.Router
	wsUpgrader websocket.Upgrader
}

// Create a new server. The caller owns log, and must close it after Shutdown.
func NewServer(log logs.Log, cfg *config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	model, err := cfg.LoadModel()
	if err != nil {
		return nil, err
	}
	sizes, err := cfg.LoadReferenceSizes()
	if err != nil {
		return nil, err
	}
	db, err := calibdb.NewCalibDB(log, cfg.DB)
	if err != nil {
		return nil, err
	}

	calib, _ := rangefinder.NewCalibrationState(rangefinder.DefaultScale)
	if err := calib.Load(db); err != nil {
		log.Warnf("Failed to load scale constant. Using the default of %v: %v", rangefinder.DefaultScale, err)
	}
	log.Infof("Scale constant is %.2f", calib.Scale())

	pipeline, err := rangefinder.NewPipeline(log, rangefinder.PipelineConfig{
		Model:               model,
		Suppression:         cfg.SuppressionParams(),
		MinSelectConfidence: cfg.MinSelectConfidence,
	}, sizes, calib)
	if err != nil {
		db.Close()
		return nil, err
	}
	log.Infof("Model %v, %v x %v, %v predictions, %v classes", model.Architecture, model.Width, model.Height, model.Predictions, len(model.Classes))

	s := &Server{
		Log:       log,
		Config:    cfg,
		Pipeline:  pipeline,
		Workflow:  rangefinder.NewWorkflow(log, calib, sizes, db, cfg.CalibrationMethod, cfg.ReferenceDistance),
		CalibDB:   db,
		Results:   NewResultHub(log),
		StartedAt: time.Now(),
	}
	if err := s.setupHttpRoutes(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Handler returns the router, so that tests can serve it with httptest
func (s *Server) Handler() http.Handler {
	return s.httpRouter
}

// port example: ":8080"
func (s *Server) ListenHTTP(port string) error {
	s.Log.Infof("Listening on %v", port)
	httpServer := &http.Server{
		Addr:    port,
		Handler: s.httpRouter,
	}
	s.shutdownMtx.Lock()
	s.httpServer = httpServer
	s.shutdownMtx.Unlock()
	err := httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) ListenForKillSignals() {
	s.Log.Infof("ListenForKillSignals starting")
	s.signalIn = make(chan os.Signal, 1)
	signal.Notify(s.signalIn, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, ok := <-s.signalIn
		if ok {
			s.Log.Infof("Received OS signal '%v'. ListenForKillSignals will exit after shutdown", sig.String())
			s.Shutdown()
		} else {
			// Shutdown was called by somebody else, and it closed signalIn
			s.Log.Infof("signalIn closed. ListenForKillSignals will exit now")
		}
	}()
}

// Shutdown stops the HTTP server, disconnects websockets, saves the scale
// constant, and closes the database. It is safe to call more than once.
func (s *Server) Shutdown() {
	s.shutdownMtx.Lock()
	defer s.shutdownMtx.Unlock()
	if s.isShutdown {
		return
	}
	s.isShutdown = true
	s.Log.Infof("Shutdown")

	if s.signalIn != nil {
		signal.Stop(s.signalIn)
		close(s.signalIn)
	}

	s.Results.Close()

	if s.httpServer != nil {
		s.Log.Infof("Closing HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.Log.Warnf("HTTP server shutdown error: %v", err)
		}
	}

	if err := s.Pipeline.Calibration().Save(s.CalibDB); err != nil {
		s.Log.Errorf("Failed to save scale constant: %v", err)
	}
	s.CalibDB.Close()
	s.Log.Infof("Shutdown complete")
}
