package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/rangefinder/pkg/nn"
	"github.com/cyclopcam/rangefinder/pkg/rangefinder"
	"github.com/cyclopcam/rangefinder/server/config"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	parser := argparse.NewParser("predict", "Run the rangefinder pipeline on a dumped model output tensor")
	input := parser.String("i", "input", &argparse.Options{Help: "Tensor file (.f32, .u8, or .json)", Required: true})
	configFile := parser.String("c", "config", &argparse.Options{Help: "Configuration file (JSON)", Default: ""})
	scale := parser.Float("s", "scale", &argparse.Options{Help: "Scale constant k", Default: float64(rangefinder.DefaultScale)})
	width := parser.Int("", "width", &argparse.Options{Help: "Width of the image that the model ran on. Zero means the model's input width", Default: 0})
	height := parser.Int("", "height", &argparse.Options{Help: "Height of the image that the model ran on. Zero means the model's input height", Default: 0})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, _ := logs.NewLog()

	cfg, err := config.LoadConfig(*configFile)
	check(err)
	model, err := cfg.LoadModel()
	check(err)
	sizes, err := cfg.LoadReferenceSizes()
	check(err)
	calib, err := rangefinder.NewCalibrationState(float32(*scale))
	check(err)

	pipeline, err := rangefinder.NewPipeline(logger, rangefinder.PipelineConfig{
		Model:               model,
		Suppression:         cfg.SuppressionParams(),
		MinSelectConfidence: cfg.MinSelectConfidence,
	}, sizes, calib)
	check(err)

	tensor, err := nn.LoadTensorFile(*input)
	check(err)

	var result *rangefinder.FrameResult
	if tensor.Quantized != nil {
		result, err = pipeline.ProcessQuantized(tensor.Quantized, *width, *height)
	} else {
		result, err = pipeline.Process(tensor.Float, *width, *height)
	}
	check(err)

	if result.Estimate != nil {
		logger.Infof("Nearest object is a %v, %.2f meters away", result.Estimate.ClassName, result.Estimate.Distance)
	} else {
		logger.Infof("No distance: %v", result.NoDistanceReason)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	check(encoder.Encode(result))
}
