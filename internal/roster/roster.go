// Package roster loads the citizen personas that make up the evaluator panel.
package roster

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/spachava753/peerlab/internal/models"
)

//go:embed default.toml
var defaultRoster []byte

// File is the on-disk shape of a roster.
type File struct {
	Personas []models.Persona `toml:"personas"`
}

// Default returns the built-in ten-persona roster.
func Default() []models.Persona {
	personas, err := Parse(defaultRoster)
	if err != nil {
		panic(fmt.Sprintf("embedded roster is invalid: %v", err))
	}
	return personas
}

// Parse decodes and validates a TOML roster.
func Parse(data []byte) ([]models.Persona, error) {
	var f File
	md, err := toml.Decode(string(data), &f)
	if err != nil {
		return nil, fmt.Errorf("parsing roster TOML: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown roster keys: %v", undecoded)
	}
	if err := Validate(f.Personas); err != nil {
		return nil, err
	}
	return f.Personas, nil
}

// Validate checks that a roster is non-empty and its names are unique.
func Validate(personas []models.Persona) error {
	if len(personas) == 0 {
		return fmt.Errorf("roster has no personas")
	}
	seen := make(map[string]bool, len(personas))
	for i, p := range personas {
		if p.Name == "" {
			return fmt.Errorf("persona %d: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("persona %q: duplicate name", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// LoadFromPath loads a roster from a local TOML file.
func LoadFromPath(path string) ([]models.Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading roster file: %w", err)
	}
	return Parse(data)
}

// LoadFromURL loads a roster from a remote URL.
func LoadFromURL(ctx context.Context, url string) ([]models.Persona, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching roster: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching roster: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return Parse(data)
}

// Load resolves the roster from a path, a URL, or the built-in default, in
// that order.
func Load(ctx context.Context, cfg models.PanelConfig) ([]models.Persona, error) {
	switch {
	case cfg.RosterPath != "":
		return LoadFromPath(cfg.RosterPath)
	case cfg.RosterURL != "":
		return LoadFromURL(ctx, cfg.RosterURL)
	default:
		return Default(), nil
	}
}

// Find returns the persona with the given name.
func Find(personas []models.Persona, name string) (*models.Persona, error) {
	for i := range personas {
		if personas[i].Name == name {
			return &personas[i], nil
		}
	}
	return nil, fmt.Errorf("persona %q not found in roster", name)
}
