package store

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/aof/pkg/types"
)

const frontmatterFence = "---"

// MarshalRecord serializes a task as a frontmatter record: a YAML metadata
// header between --- fences followed by the free-form body.
func MarshalRecord(t *types.Task) ([]byte, error) {
	meta, err := yaml.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task %s: %w", t.ID, err)
	}

	var buf bytes.Buffer
	buf.WriteString(frontmatterFence)
	buf.WriteByte('\n')
	buf.Write(meta)
	buf.WriteString(frontmatterFence)
	buf.WriteByte('\n')
	if t.Body != "" {
		buf.WriteByte('\n')
		buf.WriteString(t.Body)
		if !strings.HasSuffix(t.Body, "\n") {
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalRecord parses a frontmatter record. Unknown frontmatter keys land
// in the task's Extra bag and survive the next marshal.
func UnmarshalRecord(data []byte) (*types.Task, error) {
	header, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	var t types.Task
	if err := yaml.Unmarshal(header, &t); err != nil {
		return nil, ValidationError("record", fmt.Sprintf("malformed frontmatter: %v", err))
	}
	t.Body = body

	if t.ID == "" {
		return nil, ValidationError("record", "missing id")
	}
	if !t.Status.Valid() {
		return nil, ValidationError(t.ID, fmt.Sprintf("unknown status %q", t.Status))
	}
	return &t, nil
}

// splitFrontmatter separates the YAML header from the body. The record must
// open with a --- fence on the first line.
func splitFrontmatter(data []byte) (header []byte, body string, err error) {
	text := string(data)
	if !strings.HasPrefix(text, frontmatterFence+"\n") {
		return nil, "", ValidationError("record", "missing frontmatter fence")
	}
	rest := text[len(frontmatterFence)+1:]
	idx := strings.Index(rest, "\n"+frontmatterFence+"\n")
	if idx < 0 {
		if strings.HasSuffix(rest, "\n"+frontmatterFence) {
			return []byte(rest[:len(rest)-len(frontmatterFence)]), "", nil
		}
		return nil, "", ValidationError("record", "unterminated frontmatter")
	}
	header = []byte(rest[:idx+1])

	after := rest[idx+1+len(frontmatterFence)+1:]
	after = strings.TrimPrefix(after, "\n")
	return header, after, nil
}
