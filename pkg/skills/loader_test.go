package skills

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSkill(t *testing.T, workspace, name, content string) {
	t.Helper()
	dir := filepath.Join(workspace, "skills", name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(content), 0644))
}

func TestListSkillsMissingDir(t *testing.T) {
	l := NewLoader(t.TempDir())
	skills, err := l.ListSkills()
	require.NoError(t, err)
	assert.Empty(t, skills)
}

func TestListSkillsSortedWithMetadata(t *testing.T) {
	workspace := t.TempDir()
	writeSkill(t, workspace, "zeta", "---\ndescription: last skill\n---\nbody z")
	writeSkill(t, workspace, "alpha", "---\ndescription: first skill\n---\nbody a")

	l := NewLoader(workspace)
	skills, err := l.ListSkills()
	require.NoError(t, err)
	require.Len(t, skills, 2)

	assert.Equal(t, "alpha", skills[0].Name)
	assert.Equal(t, "first skill", skills[0].Description)
	assert.True(t, skills[0].Available)
	assert.Equal(t, "zeta", skills[1].Name)
}

func TestSkillMissingRequirements(t *testing.T) {
	workspace := t.TempDir()
	writeSkill(t, workspace, "needy", `---
description: needs things
tinyclaw:
  requires:
    bins: [definitely-not-a-real-binary-xyz]
    env: [TINYCLAW_TEST_UNSET_ENV]
---
body`)

	l := NewLoader(workspace)
	skills, err := l.ListSkills()
	require.NoError(t, err)
	require.Len(t, skills, 1)

	assert.False(t, skills[0].Available)
	assert.Contains(t, skills[0].Missing, "CLI: definitely-not-a-real-binary-xyz")
	assert.Contains(t, skills[0].Missing, "ENV: TINYCLAW_TEST_UNSET_ENV")

	// Unavailable skills are listed in the summary but never always-loaded.
	summary := l.BuildSkillsSummary()
	assert.Contains(t, summary, "needy")
	assert.Contains(t, summary, "Unavailable")
}

func TestAlwaysSkills(t *testing.T) {
	workspace := t.TempDir()
	writeSkill(t, workspace, "core", "---\ndescription: always on\ntinyclaw:\n  always: true\n---\ncore body")
	writeSkill(t, workspace, "lazy", "---\ndescription: on demand\n---\nlazy body")

	l := NewLoader(workspace)
	assert.Equal(t, []string{"core"}, l.AlwaysSkills())
}

func TestLoadSkillsForContextStripsFrontmatterAndExpandsBaseDir(t *testing.T) {
	workspace := t.TempDir()
	writeSkill(t, workspace, "tooling", "---\ndescription: d\n---\nrun {baseDir}/run.sh")

	l := NewLoader(workspace)
	content := l.LoadSkillsForContext([]string{"tooling"})

	assert.Contains(t, content, "### Skill: tooling")
	assert.NotContains(t, content, "description:")
	assert.NotContains(t, content, "{baseDir}")

	absDir, _ := filepath.Abs(filepath.Join(workspace, "skills", "tooling"))
	assert.Contains(t, content, absDir+"/run.sh")
}
