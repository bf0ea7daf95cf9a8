package site

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, "Zach Kordas-Potter", c.Name)
	assert.NotEmpty(t, c.About)
	assert.Len(t, c.Experience, 2)
	assert.Len(t, c.Education, 2)
	assert.Equal(t, "Target", c.Experience[0].Organization)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "content.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
name = "Ada Lovelace"
role = "Analyst"
skills = ["Engines"]

[[experience]]
role = "Translator"
organization = "Menabrea"
bullets = ["Notes A through G"]
`), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", c.Name)
	assert.Equal(t, []string{"Engines"}, c.Skills)
	require.Len(t, c.Experience, 1)
	assert.Equal(t, []string{"Notes A through G"}, c.Experience[0].Bullets)

	c, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Name, c.Name)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "missing.toml"))
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	unknown := filepath.Join(dir, "unknown.toml")
	require.NoError(t, os.WriteFile(unknown, []byte("name = \"x\"\nfavourite = \"y\"\n"), 0o600))
	_, err = Load(unknown)
	assert.Error(t, err)

	noName := filepath.Join(dir, "noname.toml")
	require.NoError(t, os.WriteFile(noName, []byte("role = \"x\"\n"), 0o600))
	_, err = Load(noName)
	assert.ErrorContains(t, err, "name is required")
}

func TestResume(t *testing.T) {
	c := Content{Name: "Zach  Kordas-Potter"}
	assert.Equal(t, "Zach_Kordas-Potter_Resume.pdf", c.ResumeName("pdf"))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "resume.pdf"), []byte("%PDF"), 0o600))
	formats := []string{"pdf", "docx"}

	path, err := ResumeFile(dir, "PDF", formats)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "resume.pdf"), path)

	_, err = ResumeFile(dir, "exe", formats)
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = ResumeFile(dir, "../resume.pdf", formats)
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = ResumeFile(dir, "docx", formats)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}
