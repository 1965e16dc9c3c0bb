package content

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/randalmurphal/docflow"
	"github.com/randalmurphal/docflow/review"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(StoreConfig{BaseDir: t.TempDir()})
}

func sampleVersion(documentID string, number int, text string) *docflow.DocumentVersion {
	return &docflow.DocumentVersion{
		DocumentID:  documentID,
		Version:     number,
		Text:        text,
		Format:      "markdown",
		GeneratedBy: docflow.AuthorAI,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}
}

func TestSaveLoadVersion(t *testing.T) {
	s := newTestStore(t)

	in := sampleVersion("doc-1", 3, "# Guide\n\nbody")
	if err := s.SaveVersion(in); err != nil {
		t.Fatalf("SaveVersion: %v", err)
	}

	out, err := s.LoadVersion("doc-1", 3)
	if err != nil {
		t.Fatalf("LoadVersion: %v", err)
	}
	if out.Text != in.Text || out.GeneratedBy != docflow.AuthorAI {
		t.Errorf("got %+v", out)
	}
}

func TestSaveVersionIsImmutable(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveVersion(sampleVersion("doc-1", 1, "first")); err != nil {
		t.Fatalf("SaveVersion: %v", err)
	}
	if err := s.SaveVersion(sampleVersion("doc-1", 1, "second")); err == nil {
		t.Fatal("overwriting a stored version should fail")
	}

	out, err := s.LoadVersion("doc-1", 1)
	if err != nil {
		t.Fatalf("LoadVersion: %v", err)
	}
	if out.Text != "first" {
		t.Errorf("Text = %q, want original content", out.Text)
	}
}

func TestLoadVersionMissing(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.LoadVersion("doc-9", 1); !errors.Is(err, ErrVersionNotFound) {
		t.Errorf("LoadVersion = %v, want ErrVersionNotFound", err)
	}
}

func TestLatestVersion(t *testing.T) {
	s := newTestStore(t)
	for _, n := range []int{1, 3, 2} {
		if err := s.SaveVersion(sampleVersion("doc-1", n, "v")); err != nil {
			t.Fatalf("SaveVersion v%d: %v", n, err)
		}
	}

	latest, err := s.LatestVersion("doc-1")
	if err != nil {
		t.Fatalf("LatestVersion: %v", err)
	}
	if latest != 3 {
		t.Errorf("LatestVersion = %d, want 3", latest)
	}

	if _, err := s.LatestVersion("doc-none"); !errors.Is(err, ErrVersionNotFound) {
		t.Errorf("missing document: got %v", err)
	}
}

func TestVersionCompressionRoundTrip(t *testing.T) {
	s := NewStore(StoreConfig{BaseDir: t.TempDir(), CompressAbove: 64})

	big := strings.Repeat("line of documentation text\n", 100)
	if err := s.SaveVersion(sampleVersion("doc-big", 1, big)); err != nil {
		t.Fatalf("SaveVersion: %v", err)
	}

	out, err := s.LoadVersion("doc-big", 1)
	if err != nil {
		t.Fatalf("LoadVersion: %v", err)
	}
	if out.Text != big {
		t.Error("compressed round trip lost content")
	}
}

func TestSaveLoadArtifact(t *testing.T) {
	s := newTestStore(t)

	in := &review.Artifact{
		DocumentID:      "doc-1",
		BaseVersion:     2,
		ProposedVersion: 3,
		Additions:       4,
		Deletions:       1,
		CreatedAt:       time.Now().UTC().Truncate(time.Second),
	}
	if err := s.SaveArtifact(in); err != nil {
		t.Fatalf("SaveArtifact: %v", err)
	}

	out, err := s.LoadArtifact("doc-1", 2, 3)
	if err != nil {
		t.Fatalf("LoadArtifact: %v", err)
	}
	if out.Additions != 4 || out.Deletions != 1 {
		t.Errorf("got %+v", out)
	}

	if _, err := s.LoadArtifact("doc-1", 1, 2); !errors.Is(err, ErrArtifactNotFound) {
		t.Errorf("missing artifact: got %v", err)
	}
}

func TestDocumentIDCannotEscapeBaseDir(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveVersion(sampleVersion("../../etc/doc", 1, "x")); err != nil {
		t.Fatalf("SaveVersion: %v", err)
	}
	if _, err := s.LoadVersion("../../etc/doc", 1); err != nil {
		t.Fatalf("LoadVersion: %v", err)
	}
}

// ===== signed links =====

var linkSecret = []byte(strings.Repeat("s", 32))

func TestSignAndVerifyArtifactLink(t *testing.T) {
	cfg := LinkConfig{Secret: linkSecret, BaseURL: "https://docs.example.com"}

	key := review.VersionPairKey("doc-1", 2, 3)
	link, err := SignArtifactLink(cfg, key)
	if err != nil {
		t.Fatalf("SignArtifactLink: %v", err)
	}
	if !strings.HasPrefix(link, "https://docs.example.com/artifacts?token=") {
		t.Errorf("link = %q", link)
	}

	token := strings.TrimPrefix(link, "https://docs.example.com/artifacts?token=")
	got, err := VerifyArtifactLink(cfg, token)
	if err != nil {
		t.Fatalf("VerifyArtifactLink: %v", err)
	}
	if got != key {
		t.Errorf("subject = %q, want %q", got, key)
	}
}

func TestVerifyArtifactLinkExpired(t *testing.T) {
	cfg := LinkConfig{Secret: linkSecret, BaseURL: "https://x", TTL: -time.Minute}

	link, err := SignArtifactLink(cfg, "doc-1@1-2")
	if err != nil {
		t.Fatalf("SignArtifactLink: %v", err)
	}
	token := strings.TrimPrefix(link, "https://x/artifacts?token=")

	if _, err := VerifyArtifactLink(cfg, token); !errors.Is(err, ErrLinkExpired) {
		t.Errorf("VerifyArtifactLink = %v, want ErrLinkExpired", err)
	}
}

func TestVerifyArtifactLinkWrongSecret(t *testing.T) {
	link, err := SignArtifactLink(LinkConfig{Secret: linkSecret, BaseURL: "https://x"}, "doc-1@1-2")
	if err != nil {
		t.Fatalf("SignArtifactLink: %v", err)
	}
	token := strings.TrimPrefix(link, "https://x/artifacts?token=")

	other := LinkConfig{Secret: []byte(strings.Repeat("z", 32))}
	if _, err := VerifyArtifactLink(other, token); !errors.Is(err, ErrLinkInvalid) {
		t.Errorf("VerifyArtifactLink = %v, want ErrLinkInvalid", err)
	}
}

func TestSignArtifactLinkShortSecret(t *testing.T) {
	if _, err := SignArtifactLink(LinkConfig{Secret: []byte("short")}, "k"); !errors.Is(err, ErrSecretTooShort) {
		t.Errorf("got %v, want ErrSecretTooShort", err)
	}
}
