package assembler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrUnresolvable signals that a resolver does not handle a ref; the chain
// moves on to the next resolver.
var ErrUnresolvable = errors.New("ref not resolvable")

// Resolver turns a context ref path into text. Implementations return
// ErrUnresolvable for refs outside their scheme.
type Resolver interface {
	Resolve(baseDir, refPath string) (string, error)
}

// FileResolver reads refs from the task's inputs directory. Glob patterns
// expand to every match, concatenated in name order.
type FileResolver struct{}

func (r *FileResolver) Resolve(baseDir, refPath string) (string, error) {
	if strings.Contains(refPath, "://") {
		return "", ErrUnresolvable
	}
	clean := filepath.Clean(refPath)
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("ref escapes inputs dir: %s", refPath)
	}

	if !strings.ContainsAny(clean, "*?[{") {
		data, err := os.ReadFile(filepath.Join(baseDir, clean))
		if err != nil {
			return "", fmt.Errorf("failed to read ref: %w", err)
		}
		return string(data), nil
	}

	matches, err := doublestar.Glob(os.DirFS(baseDir), filepath.ToSlash(clean))
	if err != nil {
		return "", fmt.Errorf("failed to expand glob: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("glob matched nothing: %s", refPath)
	}
	sort.Strings(matches)

	var sb strings.Builder
	for i, m := range matches {
		data, err := os.ReadFile(filepath.Join(baseDir, filepath.FromSlash(m)))
		if err != nil {
			return "", fmt.Errorf("failed to read glob match: %w", err)
		}
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("### " + m + "\n\n")
		sb.Write(data)
		if !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}
