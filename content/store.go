package content

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/randalmurphal/docflow"
	"github.com/randalmurphal/docflow/review"
)

// Store errors, shared with the pipeline's store contracts.
var (
	ErrVersionNotFound  = docflow.ErrVersionNotFound
	ErrArtifactNotFound = docflow.ErrArtifactNotFound
)

// StoreConfig holds configuration for the content store.
type StoreConfig struct {
	BaseDir       string // Base directory for storage (default: ".docflow")
	CompressAbove int64  // Compress payloads larger than this (default: 10KB)
}

// Store persists document versions and review artifacts under BaseDir.
type Store struct {
	baseDir       string
	compressAbove int64
}

// NewStore creates a content store with the given config.
func NewStore(cfg StoreConfig) *Store {
	if cfg.BaseDir == "" {
		cfg.BaseDir = ".docflow"
	}
	if cfg.CompressAbove == 0 {
		cfg.CompressAbove = 10 * 1024
	}
	return &Store{baseDir: cfg.BaseDir, compressAbove: cfg.CompressAbove}
}

func (s *Store) documentDir(documentID string) string {
	return filepath.Join(s.baseDir, "documents", safeSegment(documentID))
}

func (s *Store) versionPath(documentID string, version int) string {
	return filepath.Join(s.documentDir(documentID), fmt.Sprintf("v%d.json", version))
}

func (s *Store) artifactPath(a artifactKey) string {
	name := fmt.Sprintf("review-%d-%d.json", a.base, a.proposed)
	return filepath.Join(s.baseDir, "artifacts", safeSegment(a.documentID), name)
}

type artifactKey struct {
	documentID     string
	base, proposed int
}

// SaveVersion writes a document version. Versions are immutable: an
// existing version is never overwritten.
func (s *Store) SaveVersion(v *docflow.DocumentVersion) error {
	path := s.versionPath(v.DocumentID, v.Version)
	if exists(path) || exists(path+".gz") {
		return fmt.Errorf("version %d of %s already stored", v.Version, v.DocumentID)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode version: %w", err)
	}
	return s.write(path, data)
}

// LoadVersion reads a document version.
func (s *Store) LoadVersion(documentID string, version int) (*docflow.DocumentVersion, error) {
	data, err := s.read(s.versionPath(documentID, version))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s v%d", ErrVersionNotFound, documentID, version)
		}
		return nil, err
	}

	var v docflow.DocumentVersion
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode version: %w", err)
	}
	return &v, nil
}

var versionFileRe = regexp.MustCompile(`^v(\d+)\.json(\.gz)?$`)

// LatestVersion returns the highest stored version number for a
// document, or ErrVersionNotFound when none exist.
func (s *Store) LatestVersion(documentID string) (int, error) {
	entries, err := os.ReadDir(s.documentDir(documentID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrVersionNotFound, documentID)
		}
		return 0, err
	}

	var versions []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := versionFileRe.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		versions = append(versions, n)
	}
	if len(versions) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrVersionNotFound, documentID)
	}
	sort.Ints(versions)
	return versions[len(versions)-1], nil
}

// SaveArtifact writes a review artifact keyed by its version pair.
// Re-saving the same pair overwrites, so regeneration stays idempotent.
func (s *Store) SaveArtifact(a *review.Artifact) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	key := artifactKey{a.DocumentID, a.BaseVersion, a.ProposedVersion}
	return s.write(s.artifactPath(key), data)
}

// LoadArtifact reads the review artifact for a version pair.
func (s *Store) LoadArtifact(documentID string, baseVersion, proposedVersion int) (*review.Artifact, error) {
	key := artifactKey{documentID, baseVersion, proposedVersion}
	data, err := s.read(s.artifactPath(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s v%d-v%d", ErrArtifactNotFound, documentID, baseVersion, proposedVersion)
		}
		return nil, err
	}

	var a review.Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	return &a, nil
}

// ===== storage plumbing =====

func (s *Store) write(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	if int64(len(data)) > s.compressAbove {
		os.Remove(path)
		return writeCompressed(path+".gz", data)
	}
	os.Remove(path + ".gz")
	return os.WriteFile(path, data, 0644)
}

func (s *Store) read(path string) ([]byte, error) {
	if data, err := readCompressed(path + ".gz"); err == nil {
		return data, nil
	}
	return os.ReadFile(path)
}

func writeCompressed(path string, data []byte) error {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

func readCompressed(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// safeSegment keeps document IDs from escaping the store directory.
func safeSegment(id string) string {
	repl := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	return repl.Replace(id)
}
