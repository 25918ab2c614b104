package testutil

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/tools/txtar"
)

func ParseTxtarFile(filename string) (*Archive, error) {
	src, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseTxtar(src, filename), nil
}

func ParseTxtar(src []byte, filename string) *Archive {
	tar := txtar.Parse(src)

	ar := &Archive{}
	ar.Filename = filename
	ar.Tar = tar

	line := countLines(tar.Comment)
	for _, f := range tar.Files {
		line++ // file header line
		ar.Lines = append(ar.Lines, line)
		line += countLines(f.Data)
	}
	return ar
}

//----------

type Archive struct {
	Tar      *txtar.Archive
	Filename string // for errors
	Lines    []int  // Tar.Files[] line position in src
}

func (ar *Archive) Error(err error, i int) error {
	return fmt.Errorf("%s:%d: %w", ar.Filename, ar.Lines[i]+1, err)
}

//----------

// Runs fn for every "name.in" file that has a matching "name.out".
func RunArchive2(t *testing.T, ar *Archive,
	fn func(t2 *testing.T, name string, input, output []byte) error,
) {
	fm := map[string]txtar.File{}
	for _, file := range ar.Tar.Files {
		if _, ok := fm[file.Name]; ok {
			t.Fatalf("file already defined: %v", file.Name)
		}
		fm[file.Name] = file
	}

	for fi, file := range ar.Tar.Files {
		if filepath.Ext(file.Name) != ".in" {
			continue
		}
		outName := replaceExt(file.Name, ".out")
		out, ok := fm[outName]
		if !ok {
			t.Logf("warning: missing %q for %v", ".out", file.Name)
			continue
		}

		name := replaceExt(filepath.Base(file.Name), "")
		ok2 := t.Run(name, func(t2 *testing.T) {
			err := fn(t2, name, file.Data, out.Data)
			if err != nil {
				t2.Fatal(ar.Error(err, fi))
			}
		})
		if !ok2 {
			break // stop on first failed test
		}
	}
}

//----------

func countLines(b []byte) int {
	return bytes.Count(b, []byte("\n"))
}

func replaceExt(filename, ext string) string {
	ext2 := filepath.Ext(filename)
	return filename[:len(filename)-len(ext2)] + ext
}
