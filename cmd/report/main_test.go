package main

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/banshee-data/crowd.report/internal/scoring"
	"github.com/banshee-data/crowd.report/internal/sim"
	sqlite "github.com/banshee-data/crowd.report/internal/storage/sqlite"
)

func storedRun() *sqlite.CalibrationRun {
	return &sqlite.CalibrationRun{
		ID:              "run-1",
		ExperimentID:    "calib_20250314_092653_a1b2c3d4",
		Dataset:         "students003.csv",
		Scene:           "corridor.json",
		DurationSeconds: 1.5,
		TotalAgents:     3,
		CompletedAgents: 2,
		AverageError:    0.5,
		MaxError:        2.0,
		P95Error:        1.0,
		TimeGrowth:      2.0,
		Objective:       0.95,
		ParamsJSON:      json.RawMessage(`{"minimalDistance": 0.31}`),
		Agents: []sqlite.RunAgent{
			{AgentID: 2, TrajectoryLength: 40, MeanError: 0.25, MaxError: 0.5},
			{AgentID: 7, TrajectoryLength: 32, MeanError: 0.75, MaxError: 2.0},
		},
	}
}

func TestResultFromRun(t *testing.T) {
	res, err := resultFromRun(storedRun())
	if err != nil {
		t.Fatalf("resultFromRun failed: %v", err)
	}

	if res.ExperimentID != "calib_20250314_092653_a1b2c3d4" {
		t.Errorf("unexpected experiment id %q", res.ExperimentID)
	}
	if res.ExecutionTimeSeconds != 1.5 {
		t.Errorf("expected duration 1.5, got %v", res.ExecutionTimeSeconds)
	}
	if res.TotalAgents != 3 || res.CompletedAgents != 2 {
		t.Errorf("unexpected agent counts %d/%d", res.CompletedAgents, res.TotalAgents)
	}
	if res.AverageError != 0.5 || res.MaxError != 2.0 {
		t.Errorf("unexpected errors mean=%v max=%v", res.AverageError, res.MaxError)
	}

	if res.Parameters.MinimalDistance != 0.31 {
		t.Errorf("expected stored minimalDistance 0.31, got %v", res.Parameters.MinimalDistance)
	}
	if got := sim.BaselineParameters().RelaxationTime; res.Parameters.RelaxationTime != got {
		t.Errorf("expected unset parameters to keep baseline, got %v", res.Parameters.RelaxationTime)
	}

	if len(res.AgentErrors) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(res.AgentErrors))
	}
	first := res.AgentErrors[0]
	if first.AgentID != 2 || first.TrajectoryLength != 40 || first.MeanError != 0.25 || first.MaxError != 0.5 {
		t.Errorf("unexpected first agent %+v", first)
	}
	if first.Errors != nil {
		t.Error("expected no per-sample series on a rebuilt result")
	}
}

func TestResultFromRunNilParams(t *testing.T) {
	run := storedRun()
	run.ParamsJSON = nil

	res, err := resultFromRun(run)
	if err != nil {
		t.Fatalf("resultFromRun failed: %v", err)
	}
	if res.Parameters != sim.BaselineParameters() {
		t.Errorf("expected baseline parameters, got %+v", res.Parameters)
	}
}

func TestResultFromRunBadParams(t *testing.T) {
	run := storedRun()
	run.ParamsJSON = json.RawMessage(`{`)

	_, err := resultFromRun(run)
	if err == nil {
		t.Fatal("expected error for malformed stored parameters")
	}
	if !strings.Contains(err.Error(), "stored parameters") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestMetricsFromRun(t *testing.T) {
	m := metricsFromRun(storedRun(), scoring.DefaultWeights())

	if m.MeanError != 0.5 || m.Percentile95 != 1.0 || m.TimeGrowth != 2.0 {
		t.Errorf("unexpected raw terms %+v", m)
	}
	if m.WeightedMean != 0.25 {
		t.Errorf("expected weighted mean 0.25, got %v", m.WeightedMean)
	}
	if m.WeightedP95 != 0.3 {
		t.Errorf("expected weighted p95 0.3, got %v", m.WeightedP95)
	}
	if m.WeightedGrowth != 0.4 {
		t.Errorf("expected weighted growth 0.4, got %v", m.WeightedGrowth)
	}
	if m.Objective != 0.95 {
		t.Errorf("expected stored objective 0.95, got %v", m.Objective)
	}
}
