package roster

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spachava753/peerlab/internal/models"
)

const twoPersonas = `
[[personas]]
name = "Ann"
age = 30
occupation = "Baker"
background = "Runs a bakery."
values = "craft"

[[personas]]
name = "Bo"
age = 61
occupation = "Pilot"
values = "safety"
`

func TestDefault(t *testing.T) {
	personas := Default()
	if len(personas) != 10 {
		t.Fatalf("expected 10 personas, got %d", len(personas))
	}
	for _, p := range personas {
		if p.Age <= 0 || p.Occupation == "" || p.Values == "" {
			t.Errorf("persona %q is incomplete: %+v", p.Name, p)
		}
	}
	if _, err := Find(personas, "Keiko Yoshida"); err != nil {
		t.Errorf("Find: %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.toml")
	if err := os.WriteFile(path, []byte(twoPersonas), 0644); err != nil {
		t.Fatalf("writing test roster: %v", err)
	}

	personas, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if len(personas) != 2 {
		t.Fatalf("expected 2 personas, got %d", len(personas))
	}
	if personas[1].Name != "Bo" || personas[1].Age != 61 {
		t.Errorf("unexpected second persona %+v", personas[1])
	}
}

func TestLoadFromPath_NotFound(t *testing.T) {
	if _, err := LoadFromPath("/nonexistent/path/roster.toml"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "empty", body: "", wantErr: "no personas"},
		{name: "missing name", body: "[[personas]]\nage = 3\n", wantErr: "name is required"},
		{name: "duplicate", body: "[[personas]]\nname = \"x\"\n[[personas]]\nname = \"x\"\n", wantErr: "duplicate"},
		{name: "unknown key", body: "[[personas]]\nname = \"x\"\nshoe_size = 9\n", wantErr: "unknown roster keys"},
		{name: "bad toml", body: "[[personas]\n", wantErr: "parsing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Parse error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/roster.toml" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(twoPersonas))
	}))
	defer server.Close()

	personas, err := LoadFromURL(context.Background(), server.URL+"/roster.toml")
	if err != nil {
		t.Fatalf("LoadFromURL: %v", err)
	}
	if len(personas) != 2 {
		t.Errorf("expected 2 personas, got %d", len(personas))
	}

	if _, err := LoadFromURL(context.Background(), server.URL+"/missing"); err == nil {
		t.Error("expected error for 404")
	}
}

func TestLoad(t *testing.T) {
	personas, err := Load(context.Background(), models.PanelConfig{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(personas) != len(Default()) {
		t.Errorf("expected default roster, got %d personas", len(personas))
	}
}

func TestFindMissing(t *testing.T) {
	if _, err := Find(Default(), "Nobody"); err == nil {
		t.Error("expected error for unknown persona")
	}
}
