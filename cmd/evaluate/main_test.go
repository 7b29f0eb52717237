package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/banshee-data/crowd.report/internal/sim"
)

func writeVectors(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write vectors file: %v", err)
	}
	return path
}

func csvRow(values []float64) string {
	fields := make([]string, len(values))
	for i, v := range values {
		fields[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(fields, ",")
}

func TestLoadVectorsJSON(t *testing.T) {
	path := writeVectors(t, "vectors.json",
		`[{"minimalDistance": 0.3}, {"relaxationTime": 0.7}]`)

	vectors, err := loadVectors(path)
	if err != nil {
		t.Fatalf("loadVectors failed: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}

	baseline := sim.BaselineParameters()
	if vectors[0].MinimalDistance != 0.3 {
		t.Errorf("expected minimalDistance 0.3, got %v", vectors[0].MinimalDistance)
	}
	if vectors[0].RelaxationTime != baseline.RelaxationTime {
		t.Errorf("expected unset fields to keep baseline, got %v", vectors[0].RelaxationTime)
	}
	if vectors[1].RelaxationTime != 0.7 {
		t.Errorf("expected relaxationTime 0.7, got %v", vectors[1].RelaxationTime)
	}
}

func TestLoadVectorsJSONEmpty(t *testing.T) {
	path := writeVectors(t, "vectors.json", `[]`)

	vectors, err := loadVectors(path)
	if err != nil {
		t.Fatalf("loadVectors failed: %v", err)
	}
	if len(vectors) != 0 {
		t.Errorf("expected no vectors, got %d", len(vectors))
	}
}

func TestLoadVectorsJSONMalformed(t *testing.T) {
	path := writeVectors(t, "vectors.json", `{"minimalDistance": 0.3}`)

	if _, err := loadVectors(path); err == nil {
		t.Error("expected error for non-array JSON")
	}
}

func TestLoadVectorsCSVWithHeader(t *testing.T) {
	values := sim.BaselineParameters().ToSlice()
	values[0] = 0.33
	content := strings.Join(sim.ParamNames(), ",") + "\n" + csvRow(values) + "\n"
	path := writeVectors(t, "vectors.csv", content)

	vectors, err := loadVectors(path)
	if err != nil {
		t.Fatalf("loadVectors failed: %v", err)
	}
	if len(vectors) != 1 {
		t.Fatalf("expected 1 vector, got %d", len(vectors))
	}
	if vectors[0].MinimalDistance != 0.33 {
		t.Errorf("expected minimalDistance 0.33, got %v", vectors[0].MinimalDistance)
	}
	if got := sim.BaselineParameters().RelaxationTime; vectors[0].RelaxationTime != got {
		t.Errorf("expected relaxationTime %v, got %v", got, vectors[0].RelaxationTime)
	}
}

func TestLoadVectorsCSVNoHeader(t *testing.T) {
	first := sim.BaselineParameters().ToSlice()
	second := sim.BaselineParameters().ToSlice()
	second[1] = 0.9
	content := csvRow(first) + "\n" + csvRow(second) + "\n"
	path := writeVectors(t, "vectors.csv", content)

	vectors, err := loadVectors(path)
	if err != nil {
		t.Fatalf("loadVectors failed: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	if vectors[1].RelaxationTime != 0.9 {
		t.Errorf("expected relaxationTime 0.9, got %v", vectors[1].RelaxationTime)
	}
}

func TestLoadVectorsCSVBadWidth(t *testing.T) {
	path := writeVectors(t, "vectors.csv", "0.2,0.5,1.2\n")

	_, err := loadVectors(path)
	if err == nil {
		t.Fatal("expected error for short row")
	}
	if !strings.Contains(err.Error(), "want 18") {
		t.Errorf("expected vector length in error, got %v", err)
	}
}

func TestLoadVectorsCSVBadValue(t *testing.T) {
	fields := make([]string, sim.ParamCount)
	for i, v := range sim.BaselineParameters().ToSlice() {
		fields[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	fields[3] = "oops"
	path := writeVectors(t, "vectors.csv", strings.Join(fields, ",")+"\n")

	_, err := loadVectors(path)
	if err == nil {
		t.Fatal("expected error for non-numeric field")
	}
	if !strings.Contains(err.Error(), "column 3") {
		t.Errorf("expected column in error, got %v", err)
	}
}

func TestLoadVectorsUnknownExtension(t *testing.T) {
	path := writeVectors(t, "vectors.txt", "0.2\n")

	_, err := loadVectors(path)
	if err == nil {
		t.Fatal("expected error for unknown extension")
	}
	if !strings.Contains(err.Error(), ".json or .csv") {
		t.Errorf("expected extension hint in error, got %v", err)
	}
}

func TestLoadVectorsMissingFile(t *testing.T) {
	if _, err := loadVectors(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
