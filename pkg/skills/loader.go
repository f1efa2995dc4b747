package skills

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Metadata is the YAML frontmatter of a SKILL.md file.
type Metadata struct {
	Description string `yaml:"description"`
	Tinyclaw    struct {
		Always   bool `yaml:"always"`
		Requires struct {
			Bins []string `yaml:"bins"`
			Env  []string `yaml:"env"`
		} `yaml:"requires"`
	} `yaml:"tinyclaw"`
}

// Skill is a loaded skill.
type Skill struct {
	Name        string
	Path        string
	Description string
	Available   bool
	Missing     []string
	Content     string
	Always      bool
}

// Loader discovers skills under <workspace>/skills/<name>/SKILL.md.
type Loader struct {
	Workspace string
	SkillsDir string
}

// NewLoader creates a skills loader.
func NewLoader(workspace string) *Loader {
	return &Loader{
		Workspace: workspace,
		SkillsDir: filepath.Join(workspace, "skills"),
	}
}

// ListSkills returns all skills in name order. A missing skills directory
// yields an empty list.
func (l *Loader) ListSkills() ([]Skill, error) {
	entries, err := os.ReadDir(l.SkillsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var skills []Skill
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		skillPath := filepath.Join(l.SkillsDir, name, "SKILL.md")
		if _, err := os.Stat(skillPath); err != nil {
			continue
		}
		skill, err := l.loadSkill(name, skillPath)
		if err != nil {
			continue
		}
		skills = append(skills, skill)
	}

	sort.Slice(skills, func(i, j int) bool { return skills[i].Name < skills[j].Name })
	return skills, nil
}

func (l *Loader) loadSkill(name, path string) (Skill, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Skill{}, err
	}

	meta, _ := parseFrontmatter(content)
	missing := checkRequirements(meta.Tinyclaw.Requires.Bins, meta.Tinyclaw.Requires.Env)

	desc := meta.Description
	if desc == "" {
		desc = name
	}

	return Skill{
		Name:        name,
		Path:        path,
		Description: desc,
		Available:   len(missing) == 0,
		Missing:     missing,
		Content:     string(content),
		Always:      meta.Tinyclaw.Always,
	}, nil
}

// LoadSkillsForContext returns the bodies of the named skills, frontmatter
// stripped and {baseDir} expanded, joined for the system prompt.
func (l *Loader) LoadSkillsForContext(names []string) string {
	var parts []string
	for _, name := range names {
		path := filepath.Join(l.SkillsDir, name, "SKILL.md")
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		body := stripFrontmatter(content)
		absDir, _ := filepath.Abs(filepath.Join(l.SkillsDir, name))
		body = strings.ReplaceAll(body, "{baseDir}", absDir)
		parts = append(parts, fmt.Sprintf("### Skill: %s\n\n%s", name, body))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// BuildSkillsSummary builds the availability listing for progressive loading.
func (l *Loader) BuildSkillsSummary() string {
	skills, err := l.ListSkills()
	if err != nil {
		return ""
	}

	var sb strings.Builder
	for _, s := range skills {
		status := "Available"
		if !s.Available {
			status = fmt.Sprintf("Unavailable (Missing: %s)", strings.Join(s.Missing, ", "))
		}
		sb.WriteString(fmt.Sprintf("- **%s** (%s)\n", s.Name, status))
		sb.WriteString(fmt.Sprintf("  Description: %s\n", s.Description))
		sb.WriteString(fmt.Sprintf("  Instruction File: %s\n\n", s.Path))
	}
	return sb.String()
}

// AlwaysSkills returns the names of available skills marked always-load.
func (l *Loader) AlwaysSkills() []string {
	skills, _ := l.ListSkills()
	var names []string
	for _, s := range skills {
		if s.Always && s.Available {
			names = append(names, s.Name)
		}
	}
	return names
}

func parseFrontmatter(content []byte) (Metadata, error) {
	var meta Metadata
	s := string(content)
	if strings.HasPrefix(s, "---") {
		parts := strings.SplitN(s, "---", 3)
		if len(parts) >= 3 {
			err := yaml.Unmarshal([]byte(parts[1]), &meta)
			return meta, err
		}
	}
	return meta, nil
}

func stripFrontmatter(content []byte) string {
	s := string(content)
	if strings.HasPrefix(s, "---") {
		parts := strings.SplitN(s, "---", 3)
		if len(parts) >= 3 {
			return strings.TrimSpace(parts[2])
		}
	}
	return s
}

func checkRequirements(bins, envs []string) []string {
	var missing []string
	for _, bin := range bins {
		if _, err := exec.LookPath(bin); err != nil {
			missing = append(missing, fmt.Sprintf("CLI: %s", bin))
		}
	}
	for _, env := range envs {
		if os.Getenv(env) == "" {
			missing = append(missing, fmt.Sprintf("ENV: %s", env))
		}
	}
	return missing
}
