package downloadstate

import (
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/modeldepot/depot/pkg/depot/identifier"
)

func testIdentifier() identifier.Identifier {
	return identifier.Identifier{Registry: "hf", Publisher: "acme", ModelName: "widget", ArtifactName: "base"}
}

func TestSaveThenLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := New(fs, "/models")
	id := testIdentifier()

	rec := Record{
		ModelID:             id.String(),
		TargetDirectory:     "/models/text-generation/acme/widget",
		DownloadingFileName: "model.safetensors",
		TotalSize:           1000,
		DownloadedBytes:     500,
		StartedAt:           time.Unix(1700000000, 0).UTC(),
	}

	if err := store.Save(id, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, ok, err := store.Load(id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ok {
		t.Fatal("expected record to be present")
	}
	if got.DownloadedBytes != 500 || got.TotalSize != 1000 {
		t.Fatalf("unexpected record: %+v", got)
	}

	// No leftover temp file.
	if exists, _ := afero.Exists(fs, store.pathFor(id)+".tmp"); exists {
		t.Fatal("expected temp file to be renamed away, not left behind")
	}
}

func TestLoadAbsentReturnsFalse(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := New(fs, "/models")
	_, ok, err := store.Load(testIdentifier())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected no record to be found")
	}
}

func TestLoadTruncatedFileTreatedAsAbsent(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := New(fs, "/models")
	id := testIdentifier()

	if err := afero.WriteFile(fs, store.pathFor(id), []byte(`{"modelId": "truncat`), 0o644); err != nil {
		t.Fatalf("seeding truncated file: %v", err)
	}

	_, ok, err := store.Load(id)
	if err != nil {
		t.Fatalf("expected no hard error for a truncated file, got: %v", err)
	}
	if ok {
		t.Fatal("expected a truncated file to be treated as absent")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := New(fs, "/models")
	id := testIdentifier()

	if err := store.Delete(id); err != nil {
		t.Fatalf("deleting an absent record should not error: %v", err)
	}

	if err := store.Save(id, Record{ModelID: id.String()}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Delete(id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := store.Load(id); ok {
		t.Fatal("expected record to be gone after Delete")
	}
}

func TestListEnumeratesRecords(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := New(fs, "/models")

	idA := identifier.Identifier{Registry: "hf", Publisher: "acme", ModelName: "a", ArtifactName: "base"}
	idB := identifier.Identifier{Registry: "hf", Publisher: "acme", ModelName: "b", ArtifactName: "base"}

	if err := store.Save(idA, Record{ModelID: idA.String()}); err != nil {
		t.Fatalf("Save A: %v", err)
	}
	if err := store.Save(idB, Record{ModelID: idB.String()}); err != nil {
		t.Fatalf("Save B: %v", err)
	}

	records, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
}

func TestListOnMissingDirectoryReturnsEmpty(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := New(fs, "/models")
	records, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}
