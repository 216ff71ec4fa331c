package services

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-bstore/internal/types"
	"github.com/deploymenttheory/go-bstore/internal/verify"
)

// writeEmptyDatabase writes a structurally valid database file holding
// only a descriptor page with an empty tree.
func writeEmptyDatabase(t *testing.T, cfg *verify.Config) string {
	t.Helper()

	data := make([]byte, cfg.AllocSize)
	data[0] = types.PageDescriptor
	data[1] = types.NoLevel

	le := binary.LittleEndian
	body := data[types.PageHeaderSize:]
	le.PutUint32(body[0:4], types.BstoreMagic)
	le.PutUint16(body[4:6], types.MajorVersion)
	le.PutUint16(body[6:8], types.MinorVersion)
	le.PutUint32(body[8:12], cfg.IntlMin)
	le.PutUint32(body[12:16], cfg.IntlMax)
	le.PutUint32(body[16:20], cfg.LeafMin)
	le.PutUint32(body[20:24], cfg.LeafMax)
	le.PutUint32(body[32:36], cfg.FixedLen)
	le.PutUint32(body[36:40], cfg.Flags)

	path := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestVerifyFileEmptyDatabase(t *testing.T) {
	cfg := verify.DefaultConfig()
	path := writeEmptyDatabase(t, cfg)

	report, err := VerifyFile(context.Background(), VerifyOptions{
		Path:   path,
		Config: cfg,
	})
	require.NoError(t, err)
	assert.True(t, report.Valid())
	assert.Empty(t, report.Problems)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, int64(cfg.AllocSize), report.FileSize)
}

func TestVerifyFileBadMagic(t *testing.T) {
	cfg := verify.DefaultConfig()
	path := writeEmptyDatabase(t, cfg)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[types.PageHeaderSize] = 0x00
	data[types.PageHeaderSize+1] = 0x00
	data[types.PageHeaderSize+2] = 0x00
	data[types.PageHeaderSize+3] = 0x00
	require.NoError(t, os.WriteFile(path, data, 0o644))

	report, err := VerifyFile(context.Background(), VerifyOptions{
		Path:   path,
		Config: cfg,
	})
	require.NoError(t, err)
	assert.False(t, report.Valid())
	require.NotEmpty(t, report.Problems)
	assert.Contains(t, report.Problems[0], "magic number")
}

func TestVerifyFileMissing(t *testing.T) {
	_, err := VerifyFile(context.Background(), VerifyOptions{
		Path: filepath.Join(t.TempDir(), "absent.db"),
	})
	assert.Error(t, err)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	defaults := verify.DefaultConfig()
	assert.Equal(t, defaults.AllocSize, cfg.AllocSize)
	assert.Equal(t, defaults.IntlMin, cfg.IntlMin)
	assert.Equal(t, defaults.IntlMax, cfg.IntlMax)
	assert.Equal(t, defaults.LeafMin, cfg.LeafMin)
	assert.Equal(t, defaults.LeafMax, cfg.LeafMax)
	assert.Zero(t, cfg.FixedLen)
	assert.Zero(t, cfg.Flags)
}
