package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, StoreSQLite, cfg.Docstore)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.Contact.RevertDelay)
	assert.Empty(t, cfg.Contact.Endpoint)
	assert.Equal(t, []string{"pdf", "docx"}, cfg.ResumeFormats)
	assert.Equal(t, "smtp.gmail.com", cfg.SMTP.Host)
	assert.True(t, cfg.Privacy.Tracking)
	assert.Equal(t, 365*24*time.Hour, cfg.Privacy.Retention)
	assert.Equal(t, 5, cfg.Admin.LoginPerMinute)
	assert.Empty(t, cfg.SMTP.To)
}

func TestLoad_DotenvDoesNotOverrideEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("DOCSTORE=memory\nCONTACT_REVERT_DELAY=2s\n"), 0o600))
	t.Setenv("CONTACT_REVERT_DELAY", "7s")
	t.Cleanup(func() { os.Unsetenv("DOCSTORE") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.Docstore)
	assert.Equal(t, 7*time.Second, cfg.Contact.RevertDelay)
}

func TestLoad_ParseError(t *testing.T) {
	t.Setenv("DOCSTORE_POLL_INTERVAL", "soon")
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestValidate(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	bad := cfg
	bad.Docstore = "firebase"
	bad.Contact.RevertDelay = 0
	err = bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DOCSTORE")
	assert.Contains(t, err.Error(), "CONTACT_REVERT_DELAY")

	bad = cfg
	bad.Docstore = StoreFile
	bad.DocstoreFile = " "
	assert.ErrorContains(t, bad.Validate(), "DOCSTORE_FILE")

	bad = cfg
	bad.SMTP.User = "me@example.com"
	bad.SMTP.Pass = "app-password"
	assert.ErrorContains(t, bad.Validate(), "TO_EMAIL")
	bad.SMTP.To = "inbox@example.com"
	assert.NoError(t, bad.Validate())

	bad = cfg
	bad.Contact.RatePerMinute = 0
	assert.NoError(t, bad.Validate(), "contact throttling may be off")
	bad.Admin.LoginPerMinute = 0
	assert.ErrorContains(t, bad.Validate(), "ADMIN_LOGIN_RATE_PER_MINUTE")
}
