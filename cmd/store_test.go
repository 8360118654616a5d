package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-lending/recon-cli/internal/config"
)

func TestInitStore_SQLite(t *testing.T) {
	tmpDir := t.TempDir()
	dsn := filepath.Join(tmpDir, "test.db")

	cfg = &config.Config{
		Store: config.StoreConfig{
			Driver: "sqlite",
			DSN:    dsn,
		},
	}

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck
}

func TestInitStore_SQLiteDefaultDSN(t *testing.T) {
	// When DSN is empty, initStore should default to "recon.db". Run in a
	// temp dir so we don't create files in the project root.
	tmpDir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(origDir) //nolint:errcheck

	cfg = &config.Config{
		Store: config.StoreConfig{
			Driver: "sqlite",
			DSN:    "",
		},
	}

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck

	_, statErr := os.Stat(filepath.Join(tmpDir, "recon.db"))
	assert.NoError(t, statErr)
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	cfg = &config.Config{
		Store: config.StoreConfig{
			Driver: "mysql",
		},
	}

	st, err := initStore(context.Background())
	assert.Nil(t, st)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitLoanSystem_BadKeyPath(t *testing.T) {
	cfg = &config.Config{
		LoanSystem: config.LoanSystemConfig{
			ClientID: "test-client-id",
			KeyPath:  "/nonexistent/path/to/key.pem",
		},
	}

	svc, err := initLoanSystem()
	assert.Nil(t, svc)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "read loan system JWT private key")
}

func TestInitLoanSystem_InvalidPEM(t *testing.T) {
	// A readable but malformed PEM must fail the session bootstrap.
	tmpDir := t.TempDir()
	badPEM := filepath.Join(tmpDir, "bad.pem")
	require.NoError(t, os.WriteFile(badPEM, []byte("not a valid pem"), 0o600))

	cfg = &config.Config{
		LoanSystem: config.LoanSystemConfig{
			ClientID: "test-client-id",
			KeyPath:  badPEM,
			Username: "recon@lender.test",
			LoginURL: "https://login.lender.test",
		},
	}

	svc, err := initLoanSystem()
	assert.Nil(t, svc)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "init loan system session")
}
