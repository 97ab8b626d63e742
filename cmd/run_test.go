package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/cottand/hmerge/program/progfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const smallProgram = `
classes:
  - name: p.A
  - name: p.B
    interfaces: [p.I]
  - name: p.I
    flags: interface abstract
`

func TestWriteProgram(t *testing.T) {
	prog, _ := progfile.MustParse(smallProgram)

	var stdout bytes.Buffer
	require.NoError(t, writeProgram(&stdout, "", prog))
	fromStdout, _, err := progfile.Parse(stdout.Bytes())
	require.NoError(t, err)
	assert.Equal(t, prog.Types(), fromStdout.Types())

	path := filepath.Join(t.TempDir(), "merged.yaml")
	stdout.Reset()
	require.NoError(t, writeProgram(&stdout, path, prog))
	assert.Zero(t, stdout.Len(), "nothing goes to stdout when writing to a file")
	fromFile, _, err := progfile.Load(path)
	require.NoError(t, err)
	assert.Equal(t, prog.Types(), fromFile.Types())

	err = writeProgram(&stdout, filepath.Join(t.TempDir(), "missing", "merged.yaml"), prog)
	assert.ErrorContains(t, err, "could not create output file")
}
