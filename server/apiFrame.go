package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/cyclopcam/rangefinder/pkg/nn"
	"github.com/cyclopcam/rangefinder/pkg/rangefinder"
	"github.com/cyclopcam/www"
)

// Body of POST /api/frame, when sent as JSON
type frameJSON struct {
	Tensor []float32 `json:"tensor"`
}

// httpFrame runs the pipeline on one output tensor.
// The body is either a raw little-endian tensor, or JSON {"tensor": [...]}.
// Query parameters:
//
//	width, height: Size of the image that the model ran on. Omit both to use the model's input size.
//	dtype: "float32" (default) or "uint8" (quantized). Only applies to raw bodies.
func (s *Server) httpFrame(w http.ResponseWriter, r *http.Request) {
	width := www.QueryInt(r, "width")
	height := www.QueryInt(r, "height")
	if !(width == 0 && height == 0) && (width <= 0 || height <= 0) {
		www.PanicBadRequestf("Invalid image size %v x %v", width, height)
	}
	dtype := www.QueryValue(r, "dtype")

	var tensor []float32
	var quantized []uint8
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		body := frameJSON{}
		www.ReadJSON(w, r, &body, MaxTensorBytes*4)
		tensor = body.Tensor
	} else {
		raw := www.ReadLimited(w, r, MaxTensorBytes)
		switch dtype {
		case "", "float32":
			var err error
			tensor, err = nn.Float32FromLE(raw)
			www.CheckClient(err)
		case "uint8":
			quantized = raw
		default:
			www.PanicBadRequestf("Unsupported dtype '%v'. Must be float32 or uint8", dtype)
		}
	}

	var result *rangefinder.FrameResult
	var err error
	if quantized != nil {
		result, err = s.Pipeline.ProcessQuantized(quantized, width, height)
	} else {
		result, err = s.Pipeline.Process(tensor, width, height)
	}
	if errors.Is(err, nn.ErrTensorSize) {
		www.PanicBadRequestf("%v", err)
	}
	www.Check(err)

	if s.Workflow.OnFrame(result) {
		s.Log.Infof("Calibration object captured from frame")
	}
	s.Results.Publish(result)
	www.SendJSON(w, result)
}
