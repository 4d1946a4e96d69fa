package assembler

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cuemby/aof/pkg/log"
	"github.com/cuemby/aof/pkg/store"
	"github.com/cuemby/aof/pkg/types"
)

// Layer names, in inclusion order.
const (
	LayerSeed     = "seed"
	LayerOptional = "optional"
	LayerDeep     = "deep"
)

// ManifestFile is the optional per-task layer declaration, relative to the
// task's inputs directory.
const ManifestFile = "context-manifest.json"

// TruncationNotice is appended to a section cut short by the budget.
const TruncationNotice = "[Content truncated due to character budget]"

// minTruncationChars is the smallest remaining budget worth a partial
// section; below it the ref is skipped instead.
const minTruncationChars = 100

// Ref names one piece of context to pull into the bundle.
type Ref struct {
	Path  string `json:"path"`
	Title string `json:"title,omitempty"`
}

// Manifest declares which refs belong to which layer.
type Manifest struct {
	Seed     []Ref `json:"seed,omitempty"`
	Optional []Ref `json:"optional,omitempty"`
	Deep     []Ref `json:"deep,omitempty"`
}

// Source records one resolved ref that made it into the bundle.
type Source struct {
	Layer     string `json:"layer"`
	Path      string `json:"path"`
	Chars     int    `json:"chars"`
	Truncated bool   `json:"truncated,omitempty"`
}

// Bundle is the assembled context for one agent session.
type Bundle struct {
	Summary    string   `json:"summary"`
	Manifest   Manifest `json:"manifest"`
	TotalChars int      `json:"totalChars"`
	Sources    []Source `json:"sources"`
}

// Options control one assembly run.
type Options struct {
	// MaxChars caps the bundle size. Zero means unlimited.
	MaxChars int
	// IncludeDeep pulls in the deep layer, which is otherwise skipped.
	IncludeDeep bool
}

// Assembler builds context bundles from a task store.
type Assembler struct {
	store     *store.Store
	resolvers []Resolver
	logger    zerolog.Logger
}

// New creates an assembler over the given store. Extra resolvers run after
// the built-in filesystem resolver.
func New(st *store.Store, extra ...Resolver) *Assembler {
	return &Assembler{
		store:     st,
		resolvers: append([]Resolver{&FileResolver{}}, extra...),
		logger:    log.WithComponent("assembler"),
	}
}

// Assemble builds the bundle for a task. The task card always leads; layer
// refs follow in seed, optional, deep order until the budget runs out.
func (a *Assembler) Assemble(taskID string, opts Options) (*Bundle, error) {
	task, err := a.store.Get(taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}

	inputsDir, err := a.store.WorkspacePath(taskID, store.InputsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve inputs dir: %w", err)
	}

	manifest, err := a.loadManifest(inputsDir)
	if err != nil {
		return nil, err
	}

	b := &Bundle{Manifest: *manifest}
	var sb strings.Builder

	card, err := a.taskCard(task)
	if err != nil {
		return nil, err
	}
	a.appendSection(&sb, b, "task", task.ID, card, opts.MaxChars)

	layers := []struct {
		name string
		refs []Ref
	}{
		{LayerSeed, manifest.Seed},
		{LayerOptional, manifest.Optional},
		{LayerDeep, manifest.Deep},
	}
	for _, layer := range layers {
		if layer.name == LayerDeep && !opts.IncludeDeep {
			continue
		}
		for _, ref := range layer.refs {
			if opts.MaxChars > 0 && b.TotalChars >= opts.MaxChars {
				break
			}
			content, ok := a.resolve(inputsDir, ref)
			if !ok {
				continue
			}
			section := formatSection(ref, content)
			a.appendSection(&sb, b, layer.name, ref.Path, section, opts.MaxChars)
		}
	}

	b.Summary = sb.String()
	return b, nil
}

// appendSection adds text to the bundle, truncating to the remaining budget
// when at least minTruncationChars would survive.
func (a *Assembler) appendSection(sb *strings.Builder, b *Bundle, layer, path, section string, maxChars int) {
	chars := len(section)
	truncated := false
	if maxChars > 0 && b.TotalChars+chars > maxChars {
		remain := maxChars - b.TotalChars - len(TruncationNotice) - 1
		if remain < minTruncationChars {
			a.logger.Debug().Str("path", path).Msg("Skipping ref, budget exhausted")
			return
		}
		section = section[:remain] + "\n" + TruncationNotice
		chars = len(section)
		truncated = true
	}
	sb.WriteString(section)
	b.TotalChars += chars
	b.Sources = append(b.Sources, Source{Layer: layer, Path: path, Chars: chars, Truncated: truncated})
}

func (a *Assembler) resolve(inputsDir string, ref Ref) (string, bool) {
	for _, r := range a.resolvers {
		content, err := r.Resolve(inputsDir, ref.Path)
		if err == nil {
			return content, true
		}
		if !errors.Is(err, ErrUnresolvable) {
			a.logger.Warn().Err(err).Str("path", ref.Path).Msg("Failed to resolve context ref")
			return "", false
		}
	}
	a.logger.Warn().Str("path", ref.Path).Msg("No resolver for context ref")
	return "", false
}

// loadManifest reads inputs/context-manifest.json, falling back to a default
// manifest that seeds every file in inputs/.
func (a *Assembler) loadManifest(inputsDir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(inputsDir, ManifestFile))
	if err == nil {
		var m Manifest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse context manifest: %w", err)
		}
		return &m, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read context manifest: %w", err)
	}

	m := &Manifest{}
	entries, err := os.ReadDir(inputsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("failed to list inputs: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || e.Name() == ManifestFile {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for _, n := range names {
		m.Seed = append(m.Seed, Ref{Path: n})
	}
	return m, nil
}

// taskCard renders the full record, frontmatter and body, as the bundle's
// opening section.
func (a *Assembler) taskCard(task *types.Task) (string, error) {
	data, err := a.store.RecordBytes(task.ID)
	if err != nil {
		return "", fmt.Errorf("failed to read task record: %w", err)
	}
	var sb strings.Builder
	sb.WriteString("# Task: " + task.ID + "\n\n")
	sb.Write(data)
	if !strings.HasSuffix(sb.String(), "\n") {
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	return sb.String(), nil
}

func formatSection(ref Ref, content string) string {
	title := ref.Title
	if title == "" {
		title = ref.Path
	}
	var sb strings.Builder
	sb.WriteString("## " + title + "\n\n")
	sb.WriteString(content)
	if !strings.HasSuffix(content, "\n") {
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	return sb.String()
}
