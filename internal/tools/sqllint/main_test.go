package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLintSource(t *testing.T) {
	src := "package history\n\n" +
		"const qGood = `--sql history.get\nSELECT 1;\n`\n\n" +
		"const qBad = `\nSELECT id FROM translation_jobs;\n`\n\n" +
		"const qUUID = `--sql 4f55a9b7-4e9f-4e45-a3b3-5a532d21d9db\nDELETE FROM t;\n`\n\n" +
		"const prompt = \"Please select the best wording and update tone.\"\n"

	vs, err := lintSource("queries.go", src)
	if err != nil {
		t.Fatalf("lintSource: %v", err)
	}
	if len(vs) != 2 {
		t.Fatalf("violations = %+v, want 2", vs)
	}
	if vs[0].name != "qBad" || vs[1].name != "qUUID" {
		t.Fatalf("violations = %+v", vs)
	}
}

func TestLintSourceHistoryQueries(t *testing.T) {
	vs, err := lintSource("../../history/queries.go", nil)
	if err != nil {
		t.Fatalf("lintFile: %v", err)
	}
	if len(vs) != 0 {
		t.Fatalf("violations = %+v", vs)
	}
}

func TestRunExitCodes(t *testing.T) {
	var stderr bytes.Buffer
	if code := run([]string{"../../history"}, &stderr); code != 0 {
		t.Fatalf("history exit = %d, stderr = %s", code, stderr.String())
	}

	dir := t.TempDir()
	src := "package x\n\nconst q = \"DELETE FROM t\"\n"
	if err := os.WriteFile(filepath.Join(dir, "x.go"), []byte(src), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	stderr.Reset()
	if code := run([]string{dir}, &stderr); code != 1 {
		t.Fatalf("exit = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "x.go:3 q:") {
		t.Fatalf("stderr = %s", stderr.String())
	}
}
