package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"taskscribe/internal/services"
)

// Stage artifact file names, one per completed pipeline stage. The export
// name matches the original product's download artifact.
const (
	TranscriptName  = "transcript.json"
	DiarizationName = "diarization.json"
	TodosName       = "todos.json"
	AssignmentsName = "assignments.json"
	ExportName      = "todos_by_person.txt"
)

// Store persists per-job, per-stage output blobs on the filesystem. Each
// job owns one namespace (directory) under the root; artifacts are
// addressed by (jobID, name) and written atomically so a registry update
// never references a partially written file.
type Store struct {
	root string
}

// NewStore creates an artifact store rooted at the given jobs directory.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// JobDir returns the namespace directory for a job.
func (s *Store) JobDir(jobID string) string {
	return filepath.Join(s.root, jobID)
}

// Ref returns the stable reference key stored on the job record for an
// artifact name. It is relative to the job namespace.
func Ref(name string) string {
	return filepath.ToSlash(filepath.Join("artifacts", name))
}

// Path resolves an artifact reference to its absolute location.
func (s *Store) Path(jobID, ref string) string {
	return filepath.Join(s.JobDir(jobID), filepath.FromSlash(ref))
}

// WriteJSON marshals payload and atomically writes it as the named
// artifact. It returns the reference key to record on the job.
func (s *Store) WriteJSON(jobID, name string, payload any) (string, error) {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal artifact %s: %w", name, err)
	}
	return s.WriteBytes(jobID, name, append(encoded, '\n'))
}

// WriteText atomically writes a plain-text artifact.
func (s *Store) WriteText(jobID, name, content string) (string, error) {
	return s.WriteBytes(jobID, name, []byte(content))
}

// WriteBytes atomically writes raw artifact bytes via a temp file rename.
func (s *Store) WriteBytes(jobID, name string, content []byte) (string, error) {
	ref := Ref(name)
	target := s.Path(jobID, ref)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("ensure artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+name+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp artifact: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("write artifact %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("close artifact %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("publish artifact %s: %w", name, err)
	}
	return ref, nil
}

// ReadJSON loads the named artifact into target.
func (s *Store) ReadJSON(jobID, name string, target any) error {
	data, err := s.ReadBytes(jobID, name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode artifact %s: %w", name, err)
	}
	return nil
}

// ReadText loads a plain-text artifact.
func (s *Store) ReadText(jobID, name string) (string, error) {
	data, err := s.ReadBytes(jobID, name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadBytes loads raw artifact bytes, mapping absence to services.ErrNotFound.
func (s *Store) ReadBytes(jobID, name string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(jobID, Ref(name)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, services.Wrap(services.ErrNotFound, "", "read artifact",
				fmt.Sprintf("artifact %s for job %s", name, jobID), nil)
		}
		return nil, fmt.Errorf("read artifact %s: %w", name, err)
	}
	return data, nil
}

// Exists reports whether the named artifact has been published.
func (s *Store) Exists(jobID, name string) bool {
	info, err := os.Stat(s.Path(jobID, Ref(name)))
	return err == nil && !info.IsDir()
}

// SaveUpload stores an uploaded recording inside the job namespace and
// returns its absolute path. The filename is sanitized to its base name.
func (s *Store) SaveUpload(jobID, filename string, content []byte) (string, error) {
	base := filepath.Base(strings.TrimSpace(filename))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "input_audio"
	}
	dir := s.JobDir(jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure job dir: %w", err)
	}
	target := filepath.Join(dir, base)
	if err := os.WriteFile(target, content, 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return target, nil
}
