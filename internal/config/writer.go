package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"devfleet/pkg/logging"

	"gopkg.in/yaml.v3"
)

// settableKeys are the scalar keys accepted by Set, besides the
// open-ended vars.* namespace.
var settableKeys = map[string]bool{
	"hostname":        true,
	"protocol":        true,
	"portRange.min":   true,
	"portRange.max":   true,
	"httpsCert":       true,
	"httpsKey":        true,
	"refreshOnChange": true,
}

// Set persists a single key into the global config file, creating the
// file if necessary. The rest of the file is preserved verbatim as a
// YAML document; this deliberately does not go through viper so that
// environment or project-level overrides never leak into the file.
func Set(key, value string) error {
	path, err := GlobalConfigPath()
	if err != nil {
		return err
	}
	return SetIn(path, key, value)
}

// SetIn is Set against an explicit file path.
func SetIn(path, key, value string) error {
	if !settableKeys[key] && !strings.HasPrefix(key, VarsKeyPrefix) {
		return fmt.Errorf("unknown config key %q", key)
	}

	doc := map[string]interface{}{}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("error parsing %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	setPath(doc, strings.Split(key, "."), value)

	out, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(path, out); err != nil {
		return err
	}

	logging.Info("Config", "Set %s in %s", key, path)
	return nil
}

// setPath walks/creates nested maps for a dotted key path and sets the
// leaf. Port range bounds are stored as integers so the file stays
// readable by strict parsers.
func setPath(doc map[string]interface{}, path []string, value string) {
	for len(path) > 1 {
		child, ok := doc[path[0]].(map[string]interface{})
		if !ok {
			child = map[string]interface{}{}
			doc[path[0]] = child
		}
		doc = child
		path = path[1:]
	}

	var leaf interface{} = value
	var asInt int
	if _, err := fmt.Sscanf(value, "%d", &asInt); err == nil && fmt.Sprintf("%d", asInt) == value {
		leaf = asInt
	}
	doc[path[0]] = leaf
}

// writeFileAtomic writes via a temp file in the same directory followed
// by rename, so concurrent readers never observe a partial document.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
