// Package loader discovers script resources on disk. Each resource is a
// directory holding a resource.json manifest next to its entry script.
package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/phuhao00/scriptbridge/server/internal/api"
	"github.com/phuhao00/scriptbridge/server/internal/script"
	"github.com/phuhao00/scriptbridge/server/internal/script/luascript"
	"github.com/phuhao00/scriptbridge/server/internal/utils"
)

const (
	ManifestFile = "resource.json"
	DefaultMain  = "main.lua"
)

var ErrUnsupportedScript = errors.New("loader: unsupported script type")

// Manifest describes one resource directory.
type Manifest struct {
	Name        string
	Main        string
	Description string
	Version     string
	Enabled     bool
	Dir         string
}

// MainPath is the absolute path of the entry script.
func (m Manifest) MainPath() string {
	return filepath.Join(m.Dir, m.Main)
}

// ReadManifest parses dir/resource.json. Name defaults to the directory name,
// main to main.lua and enabled to true.
func ReadManifest(dir string) (Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return Manifest{}, err
	}
	if !gjson.ValidBytes(data) {
		return Manifest{}, fmt.Errorf("%s: invalid JSON", filepath.Join(dir, ManifestFile))
	}
	doc := gjson.ParseBytes(data)

	m := Manifest{
		Name:        strings.TrimSpace(doc.Get("name").String()),
		Main:        doc.Get("main").String(),
		Description: doc.Get("description").String(),
		Version:     doc.Get("version").String(),
		Enabled:     true,
		Dir:         dir,
	}
	if m.Name == "" {
		m.Name = filepath.Base(dir)
	}
	if m.Main == "" {
		m.Main = DefaultMain
	}
	if enabled := doc.Get("enabled"); enabled.Exists() {
		m.Enabled = enabled.Bool()
	}
	if filepath.IsAbs(m.Main) || strings.HasPrefix(filepath.Clean(m.Main), "..") {
		return Manifest{}, fmt.Errorf("%s: main %q must stay inside the resource directory", m.Name, m.Main)
	}
	return m, nil
}

// Discover reads every manifest directly under root, sorted by name.
// Directories without a manifest are ignored; broken manifests are logged and
// skipped.
func Discover(root string) ([]Manifest, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read resource directory: %w", err)
	}
	var manifests []Manifest
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		m, err := ReadManifest(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			utils.LogWarnf("[Loader] Skipping %s: %v", dir, err)
			continue
		}
		manifests = append(manifests, m)
	}
	sort.Slice(manifests, func(i, j int) bool { return manifests[i].Name < manifests[j].Name })
	return manifests, nil
}

// NewScript picks the host for the manifest's entry script.
func NewScript(m Manifest) (script.Script, error) {
	switch strings.ToLower(filepath.Ext(m.Main)) {
	case ".lua":
		return luascript.FromFile(m.Name, m.MainPath()), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScript, m.Main)
	}
}

// StartAll starts every enabled resource under root and adds it to registry.
// A resource that cannot be created is logged and skipped.
func StartAll(root string, services *api.Services, registry *script.Registry, opts script.Options) ([]*script.Resource, error) {
	manifests, err := Discover(root)
	if err != nil {
		return nil, err
	}
	var started []*script.Resource
	for _, m := range manifests {
		if !m.Enabled {
			utils.LogInfof("[Loader] %s is disabled", m.Name)
			continue
		}
		s, err := NewScript(m)
		if err != nil {
			utils.LogWarnf("[Loader] Skipping %s: %v", m.Name, err)
			continue
		}
		if _, exists := registry.Get(m.Name); exists {
			utils.LogWarnf("[Loader] Skipping %s: a resource with that name is already running", m.Name)
			continue
		}
		r := script.New(m.Name, s, services, opts)
		if err := registry.Add(r); err != nil {
			r.Stop()
			utils.LogWarnf("[Loader] Skipping %s: %v", m.Name, err)
			continue
		}
		started = append(started, r)
	}
	utils.LogInfof("[Loader] Started %d of %d resource(s) from %s", len(started), len(manifests), root)
	return started, nil
}
