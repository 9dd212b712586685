package util

import (
	"hash/crc32"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileHelpers(t *testing.T) {
	dir, err := ioutil.TempDir("", "util")
	require.Nil(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "a.vcf")
	data := []byte("#CHROM\tPOS\n")
	require.Nil(t, ioutil.WriteFile(path, data, 0644))

	assert.True(t, DirExists(dir))
	assert.False(t, DirExists(path))
	assert.False(t, DirExists(filepath.Join(dir, "missing")))

	sum, err := CalcCRC32(path)
	require.Nil(t, err)
	assert.Equal(t, crc32.ChecksumIEEE(data), sum)
	_, err = CalcCRC32(filepath.Join(dir, "missing"))
	assert.NotNil(t, err)
}
