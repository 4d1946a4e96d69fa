package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// RootEnv selects the data directory. It is the only environment variable
// the engine reads.
const RootEnv = "AOF_ROOT"

// ChannelFile holds the optional update-channel state, relative to the data
// directory. The engine preserves it as an opaque blob; channel management
// itself lives outside the core.
const ChannelFile = ".aof/channel.json"

// Root resolves the data directory: AOF_ROOT if set, else the current
// working directory.
func Root() string {
	if root := os.Getenv(RootEnv); root != "" {
		return root
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

// Project bundles the loaded manifest and roster for one data directory.
type Project struct {
	Root     string
	Manifest *Manifest
	Org      *OrgChart
}

// LoadProject loads and validates both manifests under root.
func LoadProject(root string) (*Project, error) {
	m, err := LoadManifest(root)
	if err != nil {
		return nil, err
	}
	o, err := LoadOrgChart(root)
	if err != nil {
		return nil, err
	}
	return &Project{Root: root, Manifest: m, Org: o}, nil
}

// ChannelState is the opaque update-channel blob.
type ChannelState map[string]any

// LoadChannelState reads .aof/channel.json. Missing file yields nil.
func LoadChannelState(root string) (ChannelState, error) {
	data, err := os.ReadFile(filepath.Join(root, ChannelFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read channel state: %w", err)
	}
	var st ChannelState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse channel state: %w", err)
	}
	return st, nil
}

// SaveChannelState atomically writes .aof/channel.json.
func SaveChannelState(root string, st ChannelState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal channel state: %w", err)
	}
	path := filepath.Join(root, ChannelFile)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create .aof directory: %w", err)
	}
	return atomicWrite(path, data)
}

// atomicWrite writes data to a temp file in the target's directory and
// renames it into place, so readers see either the old or the new content.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
