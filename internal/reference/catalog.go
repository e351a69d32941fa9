// Package reference loads enum catalogs that feed select options.
package reference

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"resourcekit/internal/field"
)

// Catalog maps enum names to their directories.
type Catalog map[string]EnumDirectory

// LoadEnumCatalog reads every *.yaml / *.yml file in dir. The enum name is
// the file's name key, or the file name without extension.
func LoadEnumCatalog(dir string) (Catalog, error) {
	result := make(Catalog)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var enumDir EnumDirectory
		if err := yaml.Unmarshal(data, &enumDir); err != nil {
			return nil, fmt.Errorf("reference: %s: %w", path, err)
		}
		name := enumDir.Name
		if name == "" {
			name = strings.TrimSuffix(entry.Name(), ext)
		}
		result[name] = enumDir
	}
	return result, nil
}

// Options turns the named enum into select options, keeping only items
// valid at the given moment.
func (c Catalog) Options(name string, at time.Time) ([]field.Option, error) {
	dir, ok := c[name]
	if !ok {
		return nil, fmt.Errorf("reference: unknown enum %q", name)
	}
	day := at.Format("2006-01-02")
	var out []field.Option
	for _, it := range dir.Sorted() {
		if it.ValidFrom != "" && day < it.ValidFrom {
			continue
		}
		if it.ValidTo != "" && day > it.ValidTo {
			continue
		}
		label := it.Name
		if label == "" {
			label = it.Code
		}
		out = append(out, field.Option{Value: it.Code, Label: label})
	}
	return out, nil
}
