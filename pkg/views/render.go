package views

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Format selects how a projection is rendered.
type Format string

const (
	FormatCLI   Format = "cli"
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
)

// ParseFormat validates a format flag value.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatCLI:
		return FormatCLI, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatJSONL:
		return FormatJSONL, nil
	default:
		return "", fmt.Errorf("unknown view format %q (want cli, json, or jsonl)", s)
	}
}

// View is satisfied by Board and Mailbox.
type View interface {
	renderCLI() string
	cards() []Card
}

// Render serializes a projection in the given format.
func Render(v View, format Format) ([]byte, error) {
	switch format {
	case FormatCLI:
		return []byte(v.renderCLI()), nil
	case FormatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to render view: %w", err)
		}
		return append(data, '\n'), nil
	case FormatJSONL:
		var sb strings.Builder
		for _, c := range v.cards() {
			line, err := json.Marshal(c)
			if err != nil {
				return nil, fmt.Errorf("failed to render view: %w", err)
			}
			sb.Write(line)
			sb.WriteByte('\n')
		}
		return []byte(sb.String()), nil
	default:
		return nil, fmt.Errorf("unknown view format %q", format)
	}
}

// WriteFile renders the projection into <root>/views/<name>. The write is
// atomic so a reader tailing the file never sees a half-written projection.
func WriteFile(root, name string, v View, format Format) (string, error) {
	data, err := Render(v, format)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(root, ViewsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create views dir: %w", err)
	}

	path := filepath.Join(dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write view: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("failed to write view: %w", err)
	}
	return path, nil
}
