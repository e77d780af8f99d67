// Package manifest discovers managed strategies by scanning sibling
// skill directories for SKILL.md manifests.
package manifest

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/example/automaton/internal/ports/secondary"
)

// Registry implements secondary.StrategyRegistry over a skills directory.
type Registry struct {
	skillsDir string
}

// NewRegistry creates a registry scanning the given directory's children.
func NewRegistry(skillsDir string) *Registry {
	return &Registry{skillsDir: skillsDir}
}

// frontmatter is the subset of SKILL.md metadata the registry reads.
// The automaton block may sit at metadata.automaton or nested under
// metadata.clawdbot.automaton; both layouts exist in the wild.
type frontmatter struct {
	Metadata map[string]any `yaml:"metadata"`
}

type automatonMeta struct {
	Managed    bool
	Entrypoint string
}

// Discover scans child directories for SKILL.md manifests with a managed
// automaton block and a valid entrypoint. Results are sorted by
// directory name; that order is the stable discovery order the bandit's
// unplayed tie-break depends on. Malformed manifests produce warnings,
// never errors.
func (r *Registry) Discover(ctx context.Context) ([]secondary.StrategyManifest, []string, error) {
	entries, err := os.ReadDir(r.skillsDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read skills directory %s: %w", r.skillsDir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var manifests []secondary.StrategyManifest
	var warnings []string
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		dir := filepath.Join(r.skillsDir, name)
		skillMD := filepath.Join(dir, "SKILL.md")
		data, err := os.ReadFile(skillMD)
		if err != nil {
			continue // not a skill directory
		}

		meta, err := parseAutomatonMeta(data)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		if meta == nil || !meta.Managed {
			continue
		}
		if meta.Entrypoint == "" {
			warnings = append(warnings, fmt.Sprintf("%s: managed but missing entrypoint", name))
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, meta.Entrypoint)); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: entrypoint %s not found", name, meta.Entrypoint))
			continue
		}

		tag := findSourceTag(dir)
		if tag == "" {
			tag = "sdk:" + name
		}

		manifests = append(manifests, secondary.StrategyManifest{
			ID:         name,
			SourceTag:  tag,
			Entrypoint: meta.Entrypoint,
			Dir:        dir,
		})
	}

	return manifests, warnings, nil
}

// parseAutomatonMeta extracts the automaton block from SKILL.md YAML
// frontmatter. Returns (nil, nil) when the file has no automaton block.
func parseAutomatonMeta(data []byte) (*automatonMeta, error) {
	body := string(data)
	if !strings.HasPrefix(body, "---") {
		return nil, nil
	}
	end := strings.Index(body[3:], "---")
	if end == -1 {
		return nil, fmt.Errorf("unterminated frontmatter")
	}
	block := body[3 : 3+end]

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		return nil, fmt.Errorf("frontmatter parse error: %v", err)
	}
	if fm.Metadata == nil {
		return nil, nil
	}

	raw := lookupAutomaton(fm.Metadata)
	if raw == nil {
		return nil, nil
	}

	meta := &automatonMeta{}
	if v, ok := raw["managed"].(bool); ok {
		meta.Managed = v
	}
	if v, ok := raw["entrypoint"].(string); ok {
		meta.Entrypoint = v
	}
	return meta, nil
}

func lookupAutomaton(metadata map[string]any) map[string]any {
	if m := asMap(metadata["automaton"]); m != nil {
		return m
	}
	if wrapper := asMap(metadata["clawdbot"]); wrapper != nil {
		return asMap(wrapper["automaton"])
	}
	return nil
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// findSourceTag scans the strategy's Python files for a TRADE_SOURCE
// assignment of the form `TRADE_SOURCE = "sdk:..."`.
func findSourceTag(dir string) string {
	paths, err := filepath.Glob(filepath.Join(dir, "*.py"))
	if err != nil {
		return ""
	}
	sort.Strings(paths)
	for _, path := range paths {
		if tag := sourceTagInFile(path); tag != "" {
			return tag
		}
	}
	return ""
}

func sourceTagInFile(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "TRADE_SOURCE") || !strings.Contains(line, "=") {
			continue
		}
		_, value, _ := strings.Cut(line, "=")
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if strings.HasPrefix(value, "sdk:") {
			return value
		}
	}
	return ""
}

// Ensure Registry implements the interface
var _ secondary.StrategyRegistry = (*Registry)(nil)
