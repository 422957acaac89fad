// Package adaptertest provides link-agnostic conformance testing for vehicle
// links.
//
// Every link must send override frames without blocking, report missing
// capabilities as UNSUPPORTED and normalize failures to INVALID_RANGE, BUSY,
// UNAVAILABLE or INTERNAL.
package adaptertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/radio-control/rcpilot/internal/adapter"
	"github.com/radio-control/rcpilot/internal/override"
)

// SendBudget is the longest a single SendOverride call may take.
const SendBudget = 50 * time.Millisecond

// Capabilities defines the expected capabilities for conformance testing.
type Capabilities struct {
	// Params is true when GetParam is served.
	Params bool

	// Modes is true when SetMode is served.
	Modes bool

	// ParamName is read when Params is true. Defaults to FLTMODE_CH.
	ParamName string

	// Mode is requested when Modes is true. Defaults to alt_hold.
	Mode string
}

// ConformanceResult represents the result of a conformance test.
type ConformanceResult struct {
	TestName string
	Passed   bool
	Error    string
	Duration time.Duration
	Details  map[string]interface{}
}

// ConformanceReport represents the complete conformance test report.
type ConformanceReport struct {
	LinkName      string
	TotalTests    int
	PassedTests   int
	FailedTests   int
	Results       []ConformanceResult
	OverallPassed bool
	Duration      time.Duration
}

type namer interface {
	GetName() string
}

// RunConformance runs the complete conformance test suite for a link.
func RunConformance(t *testing.T, newLink func() adapter.VehicleLink, caps Capabilities) {
	startTime := time.Now()

	if caps.ParamName == "" {
		caps.ParamName = "FLTMODE_CH"
	}
	if caps.Mode == "" {
		caps.Mode = "alt_hold"
	}

	report := &ConformanceReport{
		LinkName:      "Unknown Link",
		OverallPassed: true,
	}

	probe := newLink()
	if n, ok := probe.(namer); ok {
		report.LinkName = n.GetName()
	}
	_ = probe.Close()

	runSendTests(t, newLink, caps, report)
	runParamTests(t, newLink, caps, report)
	runModeTests(t, newLink, caps, report)
	runCloseTests(t, newLink, caps, report)

	report.Duration = time.Since(startTime)

	printConformanceReport(t, report)

	if !report.OverallPassed {
		t.Fatalf("Link conformance test failed: %d/%d tests passed", report.PassedTests, report.TotalTests)
	}
}

// runSendTests checks that sends succeed and never block.
func runSendTests(t *testing.T, newLink func() adapter.VehicleLink, caps Capabilities, report *ConformanceReport) {
	link := newLink()
	defer link.Close()
	ctx := context.Background()

	result := ConformanceResult{
		TestName: "SendOverride_Basic",
		Details:  make(map[string]interface{}),
	}
	start := time.Now()
	err := link.SendOverride(ctx, override.Frame{1500, 1500, 1500, 1500, 0, 0, 0, 0})
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = fmt.Sprintf("SendOverride failed: %v", err)
	} else {
		result.Passed = true
	}
	report.addResult(result)

	// A burst may fill the queue; BUSY is acceptable, blocking is not
	result = ConformanceResult{
		TestName: "SendOverride_Burst",
		Details:  make(map[string]interface{}),
	}
	result.Passed = true
	busy := 0
	start = time.Now()
	for i := 0; i < 64; i++ {
		callStart := time.Now()
		err := link.SendOverride(ctx, override.Frame{uint16(1000 + i)})
		if elapsed := time.Since(callStart); elapsed > SendBudget {
			result.Passed = false
			result.Error = fmt.Sprintf("send %d took %v, budget %v", i, elapsed, SendBudget)
			break
		}
		if err != nil {
			if !errors.Is(err, adapter.ErrBusy) {
				result.Passed = false
				result.Error = fmt.Sprintf("send %d: expected nil or BUSY, got %v", i, err)
				break
			}
			busy++
		}
	}
	result.Duration = time.Since(start)
	result.Details["busy"] = busy
	report.addResult(result)

	result = ConformanceResult{
		TestName: "SendOverride_CancelledContext",
		Details:  make(map[string]interface{}),
	}
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	start = time.Now()
	err = link.SendOverride(cancelled, override.Frame{})
	result.Duration = time.Since(start)
	if err == nil {
		result.Error = "expected error for cancelled context"
	} else {
		result.Passed = true
	}
	report.addResult(result)
}

// runParamTests checks parameter reads or their absence.
func runParamTests(t *testing.T, newLink func() adapter.VehicleLink, caps Capabilities, report *ConformanceReport) {
	link := newLink()
	defer link.Close()

	result := ConformanceResult{
		TestName: "GetParam_" + caps.ParamName,
		Details:  make(map[string]interface{}),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	value, err := link.GetParam(ctx, caps.ParamName)
	result.Duration = time.Since(start)

	switch {
	case caps.Params && err != nil:
		result.Error = fmt.Sprintf("GetParam failed: %v", err)
	case !caps.Params && !errors.Is(err, adapter.ErrUnsupported):
		result.Error = fmt.Sprintf("expected UNSUPPORTED, got %v", err)
	default:
		result.Passed = true
		result.Details["value"] = value
	}
	report.addResult(result)
}

// runModeTests checks mode changes or their absence.
func runModeTests(t *testing.T, newLink func() adapter.VehicleLink, caps Capabilities, report *ConformanceReport) {
	link := newLink()
	defer link.Close()
	ctx := context.Background()

	result := ConformanceResult{
		TestName: "SetMode_" + caps.Mode,
		Details:  make(map[string]interface{}),
	}
	start := time.Now()
	err := link.SetMode(ctx, caps.Mode)
	result.Duration = time.Since(start)

	switch {
	case caps.Modes && err != nil:
		result.Error = fmt.Sprintf("SetMode failed: %v", err)
	case !caps.Modes && !errors.Is(err, adapter.ErrUnsupported):
		result.Error = fmt.Sprintf("expected UNSUPPORTED, got %v", err)
	default:
		result.Passed = true
	}
	report.addResult(result)

	if !caps.Modes {
		return
	}

	result = ConformanceResult{
		TestName: "SetMode_Unknown",
		Details:  make(map[string]interface{}),
	}
	start = time.Now()
	err = link.SetMode(ctx, "no_such_mode")
	result.Duration = time.Since(start)
	if !errors.Is(err, adapter.ErrInvalidRange) {
		result.Error = fmt.Sprintf("expected INVALID_RANGE, got %v", err)
	} else {
		result.Passed = true
	}
	report.addResult(result)
}

// runCloseTests checks that a closed link refuses frames with a normalized error.
func runCloseTests(t *testing.T, newLink func() adapter.VehicleLink, caps Capabilities, report *ConformanceReport) {
	link := newLink()

	result := ConformanceResult{
		TestName: "Close_RefusesFrames",
		Details:  make(map[string]interface{}),
	}
	start := time.Now()
	if err := link.Close(); err != nil {
		result.Error = fmt.Sprintf("Close failed: %v", err)
		report.addResult(result)
		return
	}

	err := link.SendOverride(context.Background(), override.Frame{})
	result.Duration = time.Since(start)
	if !isNormalizedError(err) {
		result.Error = fmt.Sprintf("expected normalized error after Close, got %v", err)
	} else {
		result.Passed = true
		result.Details["code"] = adapter.Code(err)
	}
	report.addResult(result)
}

func isNormalizedError(err error) bool {
	if err == nil {
		return false
	}
	for _, code := range []error{adapter.ErrInvalidRange, adapter.ErrBusy, adapter.ErrUnavailable, adapter.ErrInternal} {
		if errors.Is(err, code) {
			return true
		}
	}
	return false
}

func (r *ConformanceReport) addResult(result ConformanceResult) {
	r.TotalTests++
	if result.Passed {
		r.PassedTests++
	} else {
		r.FailedTests++
		r.OverallPassed = false
	}
	r.Results = append(r.Results, result)
}

func printConformanceReport(t *testing.T, report *ConformanceReport) {
	t.Logf("%s", strings.Repeat("=", 72))
	t.Logf("LINK CONFORMANCE: %s", report.LinkName)
	t.Logf("passed %d/%d in %v", report.PassedTests, report.TotalTests, report.Duration)
	t.Logf("%s", strings.Repeat("-", 72))

	for _, result := range report.Results {
		status := "PASS"
		if !result.Passed {
			status = "FAIL"
		}

		details := result.Error
		if details == "" && len(result.Details) > 0 {
			details = fmt.Sprintf("%v", result.Details)
		}
		t.Logf("%-32s %-5s %-12v %s", result.TestName, status, result.Duration.Round(time.Microsecond), details)
	}
}
