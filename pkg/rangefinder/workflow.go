package rangefinder

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/rangefinder/pkg/nn"
)

var ErrWrongState = errors.New("Calibration is not in the right state for this action")
var ErrNoCalibrationFrame = errors.New("No calibration object has been captured")

type WorkflowState string

const (
	WorkflowIdle          WorkflowState = "idle"
	WorkflowAwaitingFrame WorkflowState = "awaitingFrame" // Waiting for a frame with a nearest object
	WorkflowAwaitingInput WorkflowState = "awaitingInput" // Object captured, waiting for the user to confirm
)

// WorkflowStatus is a snapshot of the calibration workflow
type WorkflowStatus struct {
	State    WorkflowState     `json:"state"`
	Frozen   *nn.Detection     `json:"frozen,omitempty"`
	FrozenAt time.Time         `json:"frozenAt,omitempty"`
	Scale    float32           `json:"scale"`
	Method   CalibrationMethod `json:"method"`
}

// Workflow drives a calibration session:
// Idle -> (Begin) -> AwaitingFrame -> (OnFrame with a nearest object) -> AwaitingInput -> (Complete or Cancel) -> Idle.
// The pure computation happens in Calibrate. Workflow only holds the frozen object,
// and publishes the new scale constant.
type Workflow struct {
	log               logs.Log
	calib             *CalibrationState
	sizes             *ReferenceSizes
	store             ScaleStore // May be nil
	method            CalibrationMethod
	referenceDistance float32

	lock     sync.Mutex
	state    WorkflowState
	frozen   *nn.Detection
	frozenAt time.Time
}

func NewWorkflow(log logs.Log, calib *CalibrationState, sizes *ReferenceSizes, store ScaleStore, method CalibrationMethod, referenceDistance float32) *Workflow {
	if method == "" {
		method = CalibrationMethodScan
	}
	if referenceDistance == 0 {
		referenceDistance = DefaultReferenceDistance
	}
	return &Workflow{
		log:               log,
		calib:             calib,
		sizes:             sizes,
		store:             store,
		method:            method,
		referenceDistance: referenceDistance,
		state:             WorkflowIdle,
	}
}

func (w *Workflow) Status() WorkflowStatus {
	w.lock.Lock()
	defer w.lock.Unlock()
	s := WorkflowStatus{
		State:  w.state,
		Scale:  w.calib.Scale(),
		Method: w.method,
	}
	if w.frozen != nil {
		f := *w.frozen
		s.Frozen = &f
		s.FrozenAt = w.frozenAt
	}
	return s
}

// Begin waits for the next frame with a nearest object
func (w *Workflow) Begin() error {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.state != WorkflowIdle {
		return fmt.Errorf("%w: cannot begin while %v", ErrWrongState, w.state)
	}
	w.log.Infof("Calibration started. Waiting for an object %.1f meters away", w.referenceDistance)
	w.state = WorkflowAwaitingFrame
	w.frozen = nil
	return nil
}

// OnFrame is called with every processed frame. If we're waiting for a
// calibration object, and the frame has one, then that object is frozen.
// Returns true if the object was frozen.
func (w *Workflow) OnFrame(r *FrameResult) bool {
	if r == nil || r.Nearest == nil {
		return false
	}
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.state != WorkflowAwaitingFrame {
		return false
	}
	det := r.Nearest.Detection
	w.frozen = &det
	w.frozenAt = time.Now()
	w.state = WorkflowAwaitingInput
	w.log.Infof("Calibration object captured: %v %v", det.ClassName, det.Box)
	return true
}

// Cancel abandons the calibration, leaving the scale constant unchanged
func (w *Workflow) Cancel() {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.state != WorkflowIdle {
		w.log.Infof("Calibration cancelled")
	}
	w.state = WorkflowIdle
	w.frozen = nil
}

// Complete computes the scale constant from the frozen object, and the optional
// manual height (in centimeters). On success the new constant is published
// and saved. Whether it succeeds or not, the workflow returns to Idle, unless
// no object had been frozen yet.
func (w *Workflow) Complete(manualHeightCm string) (CalibrationResult, error) {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.state == WorkflowAwaitingFrame {
		return CalibrationResult{}, ErrNoCalibrationFrame
	}
	if w.state != WorkflowAwaitingInput || w.frozen == nil {
		return CalibrationResult{}, fmt.Errorf("%w: cannot complete while %v", ErrWrongState, w.state)
	}

	in := CalibrationInput{
		Detection:         *w.frozen,
		ManualHeightCm:    manualHeightCm,
		ReferenceDistance: w.referenceDistance,
		Method:            w.method,
	}
	w.state = WorkflowIdle
	w.frozen = nil

	if manualHeightCm != "" {
		if _, ok := ParseManualHeight(manualHeightCm); !ok {
			w.log.Warnf("Manual height '%v' is not a positive number. Using the reference size of %v instead", manualHeightCm, in.Detection.ClassName)
		}
	}

	result, err := Calibrate(in, w.sizes)
	if err != nil {
		w.log.Warnf("Calibration failed: %v", err)
		return CalibrationResult{}, err
	}
	if err := w.calib.SetScale(result.Scale); err != nil {
		return CalibrationResult{}, err
	}
	w.log.Infof("Calibrated scale constant is now %.2f (raw estimate %.4f, %v)", result.Scale, result.RawEstimate, result.ClassName)
	if w.store != nil {
		if err := w.calib.Save(w.store); err != nil {
			return result, err
		}
	}
	return result, nil
}
