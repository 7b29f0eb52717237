package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/crowd.report/internal/scoring"
)

// CalibrationRun is one persisted evaluation of one parameter vector
// against one dataset and scene.
type CalibrationRun struct {
	ID              string          `json:"id"`
	ExperimentID    string          `json:"experiment_id"`
	Dataset         string          `json:"dataset"`
	Scene           string          `json:"scene,omitempty"`
	CreatedAtNs     int64           `json:"created_at_ns"`
	DurationSeconds float64         `json:"duration_seconds"`
	TotalAgents     int             `json:"total_agents"`
	CompletedAgents int             `json:"completed_agents"`
	AverageError    float64         `json:"average_error"`
	MaxError        float64         `json:"max_error"`
	P95Error        float64         `json:"p95_error"`
	TimeGrowth      float64         `json:"time_growth"`
	Objective       float64         `json:"objective"`
	ParamsJSON      json.RawMessage `json:"params_json,omitempty"`
	Notes           string          `json:"notes,omitempty"`

	// Agents is populated by Get and BestByObjective. ListRecent
	// leaves it nil to keep list responses compact.
	Agents []RunAgent `json:"agents,omitempty"`
}

// RunAgent is the per-agent error summary within a run.
type RunAgent struct {
	AgentID          int     `json:"agent_id"`
	TrajectoryLength int     `json:"trajectory_length"`
	MeanError        float64 `json:"mean_error"`
	MaxError         float64 `json:"max_error"`
}

// RunFromResult builds a persistable run record from a scored result
// document.
func RunFromResult(res *scoring.Result, m scoring.Metrics, dataset, scene string) (*CalibrationRun, error) {
	params, err := json.Marshal(res.Parameters)
	if err != nil {
		return nil, fmt.Errorf("marshal run parameters: %w", err)
	}

	run := &CalibrationRun{
		ExperimentID:    res.ExperimentID,
		Dataset:         dataset,
		Scene:           scene,
		DurationSeconds: res.ExecutionTimeSeconds,
		TotalAgents:     res.TotalAgents,
		CompletedAgents: res.CompletedAgents,
		AverageError:    res.AverageError,
		MaxError:        res.MaxError,
		P95Error:        m.Percentile95,
		TimeGrowth:      m.TimeGrowth,
		Objective:       m.Objective,
		ParamsJSON:      params,
		Agents:          make([]RunAgent, 0, len(res.AgentErrors)),
	}
	for _, a := range res.AgentErrors {
		run.Agents = append(run.Agents, RunAgent{
			AgentID:          a.AgentID,
			TrajectoryLength: a.TrajectoryLength,
			MeanError:        a.MeanError,
			MaxError:         a.MaxError,
		})
	}
	return run, nil
}

// RunStore provides persistence for calibration runs.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// Insert persists a run and its per-agent rows atomically. If ID is
// empty, a UUID is generated; if CreatedAtNs is zero, the current time
// is used.
func (s *RunStore) Insert(run *CalibrationRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAtNs == 0 {
		run.CreatedAtNs = time.Now().UnixNano()
	}

	var paramsStr interface{}
	if len(run.ParamsJSON) > 0 {
		paramsStr = string(run.ParamsJSON)
	}

	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin insert run tx: %w", err)
		}

		_, err = tx.Exec(`
			INSERT INTO calibration_runs (
				id, experiment_id, dataset, scene, created_at_ns,
				duration_seconds, total_agents, completed_agents,
				average_error, max_error, p95_error, time_growth,
				objective, params_json, notes
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, run.ExperimentID, run.Dataset, run.Scene, run.CreatedAtNs,
			run.DurationSeconds, run.TotalAgents, run.CompletedAgents,
			run.AverageError, run.MaxError, run.P95Error, run.TimeGrowth,
			run.Objective, paramsStr, run.Notes,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert run %s: %w", run.ID, err)
		}

		for _, a := range run.Agents {
			_, err := tx.Exec(`
				INSERT INTO run_agents (run_id, agent_id, trajectory_length, mean_error, max_error)
				VALUES (?, ?, ?, ?, ?)`,
				run.ID, a.AgentID, a.TrajectoryLength, a.MeanError, a.MaxError,
			)
			if err != nil {
				tx.Rollback()
				return fmt.Errorf("insert run agent %d: %w", a.AgentID, err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit insert run tx: %w", err)
		}
		return nil
	})
}

const runColumns = `id, experiment_id, dataset, scene, created_at_ns,
	duration_seconds, total_agents, completed_agents,
	average_error, max_error, p95_error, time_growth,
	objective, params_json, notes`

// Get returns a single run by ID with its per-agent rows.
func (s *RunStore) Get(id string) (*CalibrationRun, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM calibration_runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run %s not found", id)
		}
		return nil, fmt.Errorf("scan run %s: %w", id, err)
	}

	run.Agents, err = s.agentsFor(run.ID)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRecent returns the most recent runs, newest first. Per-agent
// rows are not loaded.
func (s *RunStore) ListRecent(limit int) ([]*CalibrationRun, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	rows, err := s.db.Query(`
		SELECT `+runColumns+`
		FROM calibration_runs
		ORDER BY created_at_ns DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*CalibrationRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// BestByObjective returns the run with the lowest objective, with its
// per-agent rows, or nil when the store is empty. Ties go to the
// earliest run.
func (s *RunStore) BestByObjective() (*CalibrationRun, error) {
	row := s.db.QueryRow(`
		SELECT ` + runColumns + `
		FROM calibration_runs
		ORDER BY objective ASC, created_at_ns ASC
		LIMIT 1`)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan best run: %w", err)
	}

	run.Agents, err = s.agentsFor(run.ID)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// Delete removes a run and its per-agent rows.
func (s *RunStore) Delete(id string) error {
	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin delete run tx: %w", err)
		}

		// Children first: foreign_keys is a per-connection pragma, so
		// the cascade is not left to the driver.
		if _, err := tx.Exec(`DELETE FROM run_agents WHERE run_id = ?`, id); err != nil {
			tx.Rollback()
			return fmt.Errorf("delete run agents: %w", err)
		}

		result, err := tx.Exec(`DELETE FROM calibration_runs WHERE id = ?`, id)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("delete run: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			tx.Rollback()
			return fmt.Errorf("run %s not found", id)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit delete run tx: %w", err)
		}
		return nil
	})
}

// agentsFor loads the per-agent rows for a run, ordered by agent id.
func (s *RunStore) agentsFor(runID string) ([]RunAgent, error) {
	rows, err := s.db.Query(`
		SELECT agent_id, trajectory_length, mean_error, max_error
		FROM run_agents
		WHERE run_id = ?
		ORDER BY agent_id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run agents: %w", err)
	}
	defer rows.Close()

	var agents []RunAgent
	for rows.Next() {
		var a RunAgent
		if err := rows.Scan(&a.AgentID, &a.TrajectoryLength, &a.MeanError, &a.MaxError); err != nil {
			return nil, fmt.Errorf("scan run agent row: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// rowScanner lets scanRun work over both sql.Row and sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanRun scans one calibration_runs row in runColumns order.
func scanRun(row rowScanner) (*CalibrationRun, error) {
	var run CalibrationRun
	var paramsStr sql.NullString
	err := row.Scan(
		&run.ID, &run.ExperimentID, &run.Dataset, &run.Scene, &run.CreatedAtNs,
		&run.DurationSeconds, &run.TotalAgents, &run.CompletedAgents,
		&run.AverageError, &run.MaxError, &run.P95Error, &run.TimeGrowth,
		&run.Objective, &paramsStr, &run.Notes,
	)
	if err != nil {
		return nil, err
	}
	if paramsStr.Valid {
		run.ParamsJSON = json.RawMessage(paramsStr.String)
	}
	return &run, nil
}
