package main

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVCF = `##fileformat=VCFv4.2
#CHROM	POS	ID	REF	ALT	QUAL	FILTER	INFO	FORMAT	s1	s2	s3
1	100	.	A	C	.	PASS	.	GT	0/0	0/1	1/1
1	200	.	G	T	.	PASS	.	GT	0/1	./.	0/0
2	50	.	C	G	.	PASS	.	GT	1/1	1/1	0/1
`

func setupDir(t *testing.T) (dir, conf, vcf string) {
	dir, err := ioutil.TempDir("", "gtkv")
	require.Nil(t, err)
	conf = filepath.Join(dir, "gtkv.toml")
	content := fmt.Sprintf(`log-level = "error"
status-addr = ""
table = "variants"

[engine]
name = "leveldb"
db-path = %q
sync-write = false

[lock]
timeout = "50ms"
min-backoff = "1ms"
max-backoff = "10ms"
`, filepath.Join(dir, "db"))
	require.Nil(t, ioutil.WriteFile(conf, []byte(content), 0644))
	vcf = filepath.Join(dir, "in.vcf")
	require.Nil(t, ioutil.WriteFile(vcf, []byte(testVCF), 0644))
	return dir, conf, vcf
}

func run(args ...string) (string, error) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOutput(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func lines(s string) []string {
	return strings.Split(strings.TrimSpace(s), "\n")
}

func TestLoadAndRead(t *testing.T) {
	dir, conf, vcf := setupDir(t)
	defer os.RemoveAll(dir)

	out, err := run("--config", conf, "load", "--study-id", "1", "--study-name", "cohort", "--workers", "3", vcf)
	require.Nil(t, err, out)
	assert.Equal(t, "variants: 3, rows: 3\n", out)

	_, err = run("--config", conf, "load", "--study-id", "1", vcf)
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "already loaded")

	// Loading again reuses the registration.
	out, err = run("--config", conf, "load", "--study-id", "1", "--force", vcf)
	require.Nil(t, err, out)

	out, err = run("--config", conf, "rows", "--study-id", "1")
	require.Nil(t, err, out)
	rows := lines(out)
	require.Len(t, rows, 3)
	assert.Contains(t, rows[0], "1_1:100:A:C")
	assert.Contains(t, rows[0], "hr: 1;")
	assert.Contains(t, rows[0], "0/1: [1];")
	assert.Contains(t, rows[0], "1/1: [2];")
	assert.Contains(t, rows[2], "1_2:50:C:G")

	out, err = run("--config", conf, "rows", "--chrom", "1", "--start", "150")
	require.Nil(t, err, out)
	rows = lines(out)
	require.Len(t, rows, 1)
	assert.Contains(t, rows[0], "1_1:200:G:T")

	out, err = run("--config", conf, "rows", "--study-id", "2")
	require.Nil(t, err, out)
	assert.Equal(t, "", out)

	out, err = run("--config", conf, "study", "list")
	require.Nil(t, err, out)
	assert.Equal(t, "1\tcohort\n", out)

	out, err = run("--config", conf, "study", "get", "cohort")
	require.Nil(t, err, out)
	assert.Contains(t, out, `"studyName": "cohort"`)
	assert.Equal(t, 2, strings.Count(out, `"status": "READY"`))
	assert.NotContains(t, out, "RUNNING")

	out, err = run("--config", conf, "study", "get", "--study-id", "1")
	require.Nil(t, err, out)
	assert.Contains(t, out, `"s3": 2`)

	out, err = run("--config", conf, "study", "get", "-o", "yaml", "cohort")
	require.Nil(t, err, out)
	assert.Contains(t, out, "studyName: cohort\n")
	assert.Contains(t, out, "  s3: 2\n")

	out, err = run("--config", conf, "rows", "--study-id", "1", "--chrom", "1", "--summary")
	require.Nil(t, err, out)
	assert.Contains(t, out, `"rows": 2`)

	_, err = run("--config", conf, "rows", "--start", "5")
	assert.NotNil(t, err)

	_, err = run("--config", conf, "study", "get", "missing")
	assert.NotNil(t, err)
}

func TestLoadRequiresName(t *testing.T) {
	dir, conf, vcf := setupDir(t)
	defer os.RemoveAll(dir)

	_, err := run("--config", conf, "load", "--study-id", "7", vcf)
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "--study-name is required")

	out, err := run("--config", conf, "load", "--study-id", "7", "--study-name", "a", vcf)
	require.Nil(t, err, out)
	_, err = run("--config", conf, "load", "--study-id", "7", "--study-name", "b", "--force", vcf)
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "registered as a")
}

func TestLockCommands(t *testing.T) {
	dir, conf, _ := setupDir(t)
	defer os.RemoveAll(dir)

	out, err := run("--config", conf, "lock", "--study-id", "3")
	require.Nil(t, err, out)
	token := strings.TrimSpace(out)
	_, err = uuid.Parse(token)
	require.Nil(t, err)

	// Held by the token above until it expires.
	_, err = run("--config", conf, "lock", "--study-id", "3")
	require.NotNil(t, err)

	_, err = run("--config", conf, "unlock", "--study-id", "3", "--token", uuid.New().String())
	require.NotNil(t, err)

	_, err = run("--config", conf, "unlock", "--study-id", "3", "--token", token)
	require.Nil(t, err)

	out, err = run("--config", conf, "lock", "--study-id", "3")
	require.Nil(t, err, out)
}

func TestInvalidSettings(t *testing.T) {
	_, err := run("--engine", "nope", "study", "list")
	require.NotNil(t, err)
	_, err = run("--engine", "mem", "study", "list")
	require.Nil(t, err)
	_, err = run("--engine", "mem", "--status-addr", "", "serve")
	require.NotNil(t, err)

	dir, conf, vcf := setupDir(t)
	defer os.RemoveAll(dir)
	_, err = run("--config", conf, "load", "--study-id", "1", "--study-name", "x", "--workers", "0", vcf)
	require.NotNil(t, err)
}
