package migrate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Status is the per-entry outcome recorded in the progress log.
type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// RunState tracks the executor's position in the apply state machine.
type RunState string

const (
	RunNotStarted RunState = "not_started"
	RunRewriting  RunState = "rewriting"
	RunCascading  RunState = "cascading"
	RunDone       RunState = "done"
	RunFailed     RunState = "failed"
)

// Progress is the resumable ledger for one apply run. It is persisted
// after every individual rewrite, so a crashed run can resume by skipping
// entries already marked done. Mapping carries the chained old-to-new
// identifiers per action: the target's from the plan, downstream actions'
// from their own pointer rewrites.
type Progress struct {
	RunID           string                       `json:"run_id"`
	Action          string                       `json:"action"`
	PlanPath        string                       `json:"plan_path,omitempty"`
	PlanFingerprint string                       `json:"plan_fingerprint"`
	State           RunState                     `json:"state"`
	Entries         map[string]Status            `json:"entries"`
	Mapping         map[string]map[string]string `json:"mapping"`
	Updated         map[string]int               `json:"updated"`
	UpdatedAt       time.Time                    `json:"updated_at"`
}

func newProgress(plan *Plan, planPath string) *Progress {
	return &Progress{
		RunID:           uuid.Must(uuid.NewV7()).String(),
		Action:          plan.Action,
		PlanPath:        planPath,
		PlanFingerprint: plan.Fingerprint(),
		State:           RunNotStarted,
		Entries:         make(map[string]Status),
		Mapping:         make(map[string]map[string]string),
		Updated:         make(map[string]int),
	}
}

// runDir is derived from the plan fingerprint, so a resumed apply of the
// same plan lands in the same directory regardless of when it runs.
func runDir(root string, plan *Plan) string {
	return filepath.Join(MigrationsDir(root), fmt.Sprintf("run_%s_%s", plan.Action, plan.Fingerprint()[:12]))
}

func progressPath(root string, plan *Plan) string {
	return filepath.Join(runDir(root, plan), "progress.json")
}

// loadProgress reads an existing progress log. A missing or unreadable
// log yields (nil, nil): the run simply starts fresh.
func loadProgress(path string) (*Progress, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load progress: %w", err)
	}
	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, nil
	}
	return &p, nil
}

// save persists the ledger atomically (write-then-rename), so a crash
// mid-save leaves the previous consistent snapshot in place.
func (p *Progress) save(path string) error {
	p.UpdatedAt = time.Now().UTC()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (p *Progress) mapping(action string) map[string]string {
	m, ok := p.Mapping[action]
	if !ok {
		m = make(map[string]string)
		p.Mapping[action] = m
	}
	return m
}
