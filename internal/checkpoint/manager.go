package checkpoint

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/renameio/v2"

	"github.com/SyncPort-ai/nps-insight-engine/internal/core"
	"github.com/SyncPort-ai/nps-insight-engine/internal/logging"
)

// FormatVersion is the current checkpoint envelope version.
const FormatVersion = 1

// Envelope is the versioned on-disk checkpoint record. Payload is the
// state JSON, gzip-compressed when Compressed is set. The format is
// plain JSON so checkpoints stay loadable across rewrites.
type Envelope struct {
	FormatVersion int        `json:"format_version"`
	CheckpointID  string     `json:"checkpoint_id"`
	WorkflowID    string     `json:"workflow_id"`
	Phase         core.Phase `json:"phase"`
	CreatedAt     time.Time  `json:"created_at"`
	Compressed    bool       `json:"compressed"`
	Payload       []byte     `json:"payload"`
}

// workflowMeta is the per-workflow metadata document, tracked apart from
// the serialized payloads so List never deserializes full state.
type workflowMeta struct {
	WorkflowID  string                  `json:"workflow_id"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
	Checkpoints []core.CheckpointRecord `json:"checkpoints"`
}

// Options configures a Manager.
type Options struct {
	Dir       string
	Compress  bool
	MaxActive int
	Retention time.Duration
	Logger    *logging.Logger
}

// Manager persists and recovers pipeline state at phase boundaries.
// Writes are atomic (write to temp, rename) so a crash mid-write never
// corrupts the active checkpoint set. The metadata index is guarded by
// a RWMutex: List readers proceed concurrently, writers are exclusive.
type Manager struct {
	dir       string
	compress  bool
	maxActive int
	retention time.Duration
	logger    *logging.Logger

	mu sync.RWMutex

	now func() time.Time
}

// NewManager creates a checkpoint manager rooted at opts.Dir.
func NewManager(opts Options) (*Manager, error) {
	if opts.Dir == "" {
		return nil, core.ErrCheckpointIO(core.CodeCheckpointWrite, "checkpoint directory is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	maxActive := opts.MaxActive
	if maxActive < 1 {
		maxActive = 10
	}
	m := &Manager{
		dir:       opts.Dir,
		compress:  opts.Compress,
		maxActive: maxActive,
		retention: opts.Retention,
		logger:    logger,
		now:       time.Now,
	}
	for _, sub := range []string{m.activeDir(""), m.archiveDir(""), m.metadataDir()} {
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return nil, core.ErrCheckpointIO(core.CodeCheckpointWrite, "creating checkpoint directories").WithCause(err)
		}
	}
	return m, nil
}

// Save serializes the state and writes a new immutable checkpoint,
// returning its ID. Retention cleanup runs after every successful save;
// cleanup failures are logged, never propagated.
func (m *Manager) Save(ctx context.Context, workflowID string, state *core.AnalysisState, phase core.Phase, nextAgent string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", core.ErrCheckpointIO(core.CodeCheckpointWrite, "context cancelled").WithCause(err)
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return "", core.ErrCheckpointIO(core.CodeCheckpointWrite, "marshaling state").WithCause(err)
	}

	now := m.now().UTC()
	checkpointID := m.checkpointID(workflowID, phase, now)

	payload := stateJSON
	var ratio *float64
	if m.compress {
		compressed, err := gzipBytes(stateJSON)
		if err != nil {
			return "", core.ErrCheckpointIO(core.CodeCheckpointWrite, "compressing state").WithCause(err)
		}
		payload = compressed
		r := 1 - float64(len(compressed))/float64(len(stateJSON))
		ratio = &r
	}

	envelope := Envelope{
		FormatVersion: FormatVersion,
		CheckpointID:  checkpointID,
		WorkflowID:    workflowID,
		Phase:         phase,
		CreatedAt:     now,
		Compressed:    m.compress,
		Payload:       payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return "", core.ErrCheckpointIO(core.CodeCheckpointWrite, "marshaling envelope").WithCause(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.checkpointPath(workflowID, checkpointID, false)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", core.ErrCheckpointIO(core.CodeCheckpointWrite, "creating workflow directory").WithCause(err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return "", core.ErrCheckpointIO(core.CodeCheckpointWrite, "writing checkpoint file").WithCause(err)
	}

	record := core.CheckpointRecord{
		CheckpointID:     checkpointID,
		Phase:            phase,
		Timestamp:        now,
		SizeBytes:        int64(len(payload)),
		CompressionRatio: ratio,
		AgentsCompleted:  append([]string(nil), state.AgentSequence...),
		NextAgent:        nextAgent,
	}
	if err := m.appendRecordLocked(workflowID, record); err != nil {
		return "", err
	}

	m.logger.Info("checkpoint saved",
		"workflow_id", workflowID,
		"checkpoint_id", checkpointID,
		"phase", phase,
		"size_bytes", record.SizeBytes,
	)

	if err := m.cleanupLocked(workflowID); err != nil {
		m.logger.Warn("checkpoint cleanup failed", "workflow_id", workflowID, "error", err)
	}

	return checkpointID, nil
}

// Load reads a checkpoint and reconstructs its state, validating that
// resuming from the recorded phase is safe. An empty checkpointID loads
// the latest non-archived checkpoint.
func (m *Manager) Load(ctx context.Context, workflowID, checkpointID string) (*core.AnalysisState, core.Phase, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", core.ErrCheckpointIO(core.CodeCheckpointRead, "context cancelled").WithCause(err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if checkpointID == "" {
		latest, err := m.latestRecordLocked(workflowID)
		if err != nil {
			return nil, "", err
		}
		checkpointID = latest.CheckpointID
	}

	path := m.checkpointPath(workflowID, checkpointID, false)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		path = m.checkpointPath(workflowID, checkpointID, true)
		data, err = os.ReadFile(path)
	}
	if os.IsNotExist(err) {
		return nil, "", core.ErrCheckpointIO(core.CodeCheckpointMissing,
			fmt.Sprintf("checkpoint %s not found for workflow %s", checkpointID, workflowID))
	}
	if err != nil {
		return nil, "", core.ErrCheckpointIO(core.CodeCheckpointRead, "reading checkpoint file").WithCause(err)
	}

	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, "", core.ErrCheckpointIO(core.CodeCheckpointRead, "unmarshaling envelope").WithCause(err)
	}
	if envelope.FormatVersion != FormatVersion {
		return nil, "", core.ErrCheckpointIO(core.CodeEnvelopeVersion,
			fmt.Sprintf("unsupported checkpoint format version %d", envelope.FormatVersion)).
			WithDetail("format_version", envelope.FormatVersion)
	}

	payload := envelope.Payload
	if envelope.Compressed {
		payload, err = gunzipBytes(payload)
		if err != nil {
			return nil, "", core.ErrCheckpointIO(core.CodeCheckpointRead, "decompressing payload").WithCause(err)
		}
	}

	var state core.AnalysisState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, "", core.ErrCheckpointIO(core.CodeCheckpointRead, "unmarshaling state").WithCause(err)
	}

	if state.WorkflowID != workflowID {
		return nil, "", core.ErrValidation(core.CodeInvalidState,
			fmt.Sprintf("checkpoint belongs to workflow %s, not %s", state.WorkflowID, workflowID)).
			WithDetail("workflow_id", state.WorkflowID)
	}
	if err := state.Validate(); err != nil {
		return nil, "", err
	}

	return &state, envelope.Phase, nil
}

// List returns the checkpoint records for a workflow, newest first,
// without touching any payload.
func (m *Manager) List(workflowID string) ([]core.CheckpointRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	meta, err := m.loadMetaLocked(workflowID)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, nil
	}
	records := append([]core.CheckpointRecord(nil), meta.Checkpoints...)
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	return records, nil
}

// Archive moves a checkpoint from the active to the archive tier.
// Records stay immutable apart from the archived marker.
func (m *Manager) Archive(workflowID, checkpointID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.archiveLocked(workflowID, checkpointID)
}

// Delete removes a checkpoint file and its record.
func (m *Manager) Delete(workflowID, checkpointID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLocked(workflowID, checkpointID)
}

func (m *Manager) archiveLocked(workflowID, checkpointID string) error {
	src := m.checkpointPath(workflowID, checkpointID, false)
	dst := m.checkpointPath(workflowID, checkpointID, true)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return core.ErrCheckpointIO(core.CodeCheckpointWrite, "creating archive directory").WithCause(err)
	}
	if err := os.Rename(src, dst); err != nil {
		return core.ErrCheckpointIO(core.CodeCheckpointWrite, "archiving checkpoint").WithCause(err)
	}

	meta, err := m.loadMetaLocked(workflowID)
	if err != nil || meta == nil {
		return err
	}
	for i := range meta.Checkpoints {
		if meta.Checkpoints[i].CheckpointID == checkpointID {
			meta.Checkpoints[i].Archived = true
			meta.Checkpoints[i].ArchivedAt = m.now().UTC()
			break
		}
	}
	return m.saveMetaLocked(workflowID, meta)
}

func (m *Manager) deleteLocked(workflowID, checkpointID string) error {
	removed := false
	for _, archived := range []bool{false, true} {
		path := m.checkpointPath(workflowID, checkpointID, archived)
		if err := os.Remove(path); err == nil {
			removed = true
		} else if !os.IsNotExist(err) {
			return core.ErrCheckpointIO(core.CodeCheckpointWrite, "deleting checkpoint").WithCause(err)
		}
	}
	if !removed {
		return core.ErrCheckpointIO(core.CodeCheckpointMissing,
			fmt.Sprintf("checkpoint %s not found for workflow %s", checkpointID, workflowID))
	}

	meta, err := m.loadMetaLocked(workflowID)
	if err != nil || meta == nil {
		return err
	}
	kept := meta.Checkpoints[:0]
	for _, rec := range meta.Checkpoints {
		if rec.CheckpointID != checkpointID {
			kept = append(kept, rec)
		}
	}
	meta.Checkpoints = kept
	return m.saveMetaLocked(workflowID, meta)
}

// cleanupLocked enforces the retention policy: the newest maxActive
// checkpoints stay active, older ones move to the archive tier, and
// archived checkpoints past the retention window are deleted.
func (m *Manager) cleanupLocked(workflowID string) error {
	meta, err := m.loadMetaLocked(workflowID)
	if err != nil || meta == nil {
		return err
	}

	var active []core.CheckpointRecord
	for _, rec := range meta.Checkpoints {
		if !rec.Archived {
			active = append(active, rec)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].Timestamp.Before(active[j].Timestamp)
	})
	if excess := len(active) - m.maxActive; excess > 0 {
		for _, rec := range active[:excess] {
			if err := m.archiveLocked(workflowID, rec.CheckpointID); err != nil {
				return err
			}
		}
	}

	if m.retention <= 0 {
		return nil
	}
	cutoff := m.now().Add(-m.retention)
	meta, err = m.loadMetaLocked(workflowID)
	if err != nil || meta == nil {
		return err
	}
	for _, rec := range meta.Checkpoints {
		if rec.Archived && rec.Timestamp.Before(cutoff) {
			if err := m.deleteLocked(workflowID, rec.CheckpointID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Manager) latestRecordLocked(workflowID string) (*core.CheckpointRecord, error) {
	meta, err := m.loadMetaLocked(workflowID)
	if err != nil {
		return nil, err
	}
	if meta == nil || len(meta.Checkpoints) == 0 {
		return nil, core.ErrCheckpointIO(core.CodeCheckpointMissing,
			fmt.Sprintf("no checkpoints found for workflow %s", workflowID))
	}
	var latest *core.CheckpointRecord
	for i := range meta.Checkpoints {
		rec := &meta.Checkpoints[i]
		if rec.Archived {
			continue
		}
		if latest == nil || rec.Timestamp.After(latest.Timestamp) {
			latest = rec
		}
	}
	if latest == nil {
		return nil, core.ErrCheckpointIO(core.CodeCheckpointMissing,
			fmt.Sprintf("no active checkpoints for workflow %s", workflowID))
	}
	return latest, nil
}

func (m *Manager) appendRecordLocked(workflowID string, record core.CheckpointRecord) error {
	meta, err := m.loadMetaLocked(workflowID)
	if err != nil {
		return err
	}
	if meta == nil {
		meta = &workflowMeta{
			WorkflowID: workflowID,
			CreatedAt:  m.now().UTC(),
		}
	}
	meta.Checkpoints = append(meta.Checkpoints, record)
	return m.saveMetaLocked(workflowID, meta)
}

func (m *Manager) loadMetaLocked(workflowID string) (*workflowMeta, error) {
	data, err := os.ReadFile(m.metadataPath(workflowID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, core.ErrCheckpointIO(core.CodeCheckpointRead, "reading checkpoint metadata").WithCause(err)
	}
	var meta workflowMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, core.ErrCheckpointIO(core.CodeCheckpointRead, "unmarshaling checkpoint metadata").WithCause(err)
	}
	return &meta, nil
}

func (m *Manager) saveMetaLocked(workflowID string, meta *workflowMeta) error {
	meta.UpdatedAt = m.now().UTC()
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return core.ErrCheckpointIO(core.CodeCheckpointWrite, "marshaling checkpoint metadata").WithCause(err)
	}
	if err := renameio.WriteFile(m.metadataPath(workflowID), data, 0o644); err != nil {
		return core.ErrCheckpointIO(core.CodeCheckpointWrite, "writing checkpoint metadata").WithCause(err)
	}
	return nil
}

// checkpointID derives a unique ID from workflow, phase and timestamp.
func (m *Manager) checkpointID(workflowID string, phase core.Phase, ts time.Time) string {
	content := fmt.Sprintf("%s_%s_%d", workflowID, phase, ts.UnixNano())
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("ckpt_%s_%s_%s", ts.Format("20060102_150405"), phase, hex.EncodeToString(sum[:4]))
}

func (m *Manager) activeDir(workflowID string) string {
	return filepath.Join(m.dir, "active", workflowID)
}

func (m *Manager) archiveDir(workflowID string) string {
	return filepath.Join(m.dir, "archive", workflowID)
}

func (m *Manager) metadataDir() string {
	return filepath.Join(m.dir, "metadata")
}

func (m *Manager) metadataPath(workflowID string) string {
	return filepath.Join(m.metadataDir(), workflowID+".json")
}

func (m *Manager) checkpointPath(workflowID, checkpointID string, archived bool) string {
	base := m.activeDir(workflowID)
	if archived {
		base = m.archiveDir(workflowID)
	}
	return filepath.Join(base, checkpointID+".json")
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzipBytes(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
