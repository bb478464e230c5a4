package main

import (
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/coreos/go-systemd/daemon"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/rangefinder/server"
	"github.com/cyclopcam/rangefinder/server/config"
)

func main() {
	parser := argparse.NewParser("rangefinder", "Estimate the distance to the nearest object, from YOLOv5 detections")
	configFile := parser.String("c", "config", &argparse.Options{Help: "Configuration file (JSON). If omitted, the built-in yolov5s model and defaults are used", Default: ""})
	dbFile := parser.String("", "db", &argparse.Options{Help: "Calibration database file. Overrides the config file", Default: ""})
	listen := parser.String("", "listen", &argparse.Options{Help: "HTTP listen address, eg :8080. Overrides the config file", Default: ""})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	if *dbFile != "" {
		cfg.DB = *dbFile
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	srv, err := server.NewServer(logger, cfg)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	srv.ListenForKillSignals()

	// Tell systemd that we're alive.
	daemon.SdNotify(false, daemon.SdNotifyReady)

	if err := srv.ListenHTTP(cfg.Listen); err != nil {
		logger.Errorf("ListenHTTP returned: %v", err)
		srv.Shutdown()
		logger.Close()
		os.Exit(1)
	}
	// ListenHTTP returns nil once Shutdown has closed the HTTP server.
	// Shutdown may still be saving the scale constant, so wait for it.
	srv.Shutdown()
	logger.Close()
}
