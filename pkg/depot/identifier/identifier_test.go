package identifier

import (
	"testing"

	"github.com/modeldepot/depot/pkg/depot/apperrors"
)

func TestParseCanonical(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Identifier
		wantErr bool
	}{
		{
			name: "canonical with gguf suffix stripped",
			raw:  "hf:TheBloke/Llama-2-7B-GGUF/llama-2-7b.Q4_K_M.gguf",
			want: Identifier{Registry: "hf", Publisher: "TheBloke", ModelName: "Llama-2-7B-GGUF", ArtifactName: "llama-2-7b.Q4_K_M"},
		},
		{
			name: "canonical without extension",
			raw:  "local:acme/widget/base",
			want: Identifier{Registry: "local", Publisher: "acme", ModelName: "widget", ArtifactName: "base"},
		},
		{
			name:    "canonical with empty segment",
			raw:     "hf:acme//artifact",
			wantErr: true,
		},
		{
			name:    "empty string",
			raw:     "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) expected error, got nil", tt.raw)
				}
				if kind, ok := apperrors.ErrorKind(err); !ok || kind != apperrors.KindInvalidIdentifier {
					t.Fatalf("Parse(%q) expected KindInvalidIdentifier, got %v", tt.raw, kind)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("Parse(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseLegacy(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Identifier
	}{
		{
			name: "legacy with filename",
			raw:  "TheBloke/Llama-2-7B-GGUF:llama-2-7b.Q4_K_M.gguf",
			want: Identifier{Registry: "hf", Publisher: "TheBloke", ModelName: "Llama-2-7B-GGUF", ArtifactName: "llama-2-7b.Q4_K_M"},
		},
		{
			name: "legacy without filename defaults artifact to model name",
			raw:  "acme/widget",
			want: Identifier{Registry: "hf", Publisher: "acme", ModelName: "widget", ArtifactName: "widget"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw)
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("Parse(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestStringRoundTrip(t *testing.T) {
	id, err := Parse("acme/widget:file.bin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := id.String(), "hf:acme/widget/file"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestRemoveGgufExtensionIdempotent(t *testing.T) {
	once := RemoveGgufExtension("model.gguf")
	twice := RemoveGgufExtension(once)
	if once != "model" || twice != "model" {
		t.Fatalf("expected idempotent stripping, got once=%q twice=%q", once, twice)
	}
}

func TestEnsureGgufExtensionIdempotent(t *testing.T) {
	once := EnsureGgufExtension("model")
	twice := EnsureGgufExtension(once)
	if once != "model.gguf" || twice != "model.gguf" {
		t.Fatalf("expected idempotent appending, got once=%q twice=%q", once, twice)
	}
	if got := EnsureGgufExtension("model.bin"); got != "model.bin" {
		t.Fatalf("expected existing weight extension left alone, got %q", got)
	}
}

func TestDeriveLayoutDoesNotAutoAppendModelsSegment(t *testing.T) {
	id := Identifier{Registry: "hf", Publisher: "acme", ModelName: "widget", ArtifactName: "base"}
	layout := DeriveLayout("/srv/depot-data", TextGeneration, id)

	wantDir := "/srv/depot-data/text-generation/acme/widget"
	if layout.ModelDir != wantDir {
		t.Fatalf("ModelDir = %q, want %q (models root must be treated as literal root)", layout.ModelDir, wantDir)
	}
	wantMeta := wantDir + "/base.json"
	if layout.MetadataPath != wantMeta {
		t.Fatalf("MetadataPath = %q, want %q", layout.MetadataPath, wantMeta)
	}
}

func TestDeriveLayoutEmbeddingDirName(t *testing.T) {
	id := Identifier{Registry: "hf", Publisher: "acme", ModelName: "embedder", ArtifactName: "base"}
	layout := DeriveLayout("/srv/depot-data", Embedding, id)
	if want := "/srv/depot-data/embedding/acme/embedder"; layout.ModelDir != want {
		t.Fatalf("ModelDir = %q, want %q", layout.ModelDir, want)
	}
}

func TestDownloadStatePathIsURLEncoded(t *testing.T) {
	id := Identifier{Registry: "hf", Publisher: "acme", ModelName: "widget", ArtifactName: "base"}
	got := DownloadStatePath("/srv/depot-data", id)
	want := "/srv/depot-data/.downloads/hf%3Aacme%2Fwidget%2Fbase.download"
	if got != want {
		t.Fatalf("DownloadStatePath = %q, want %q", got, want)
	}
}
