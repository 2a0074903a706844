package jobs

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not available on windows")
	}
	path := filepath.Join(t.TempDir(), "sanitise.sh")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestExecRunnerSuccess(t *testing.T) {
	bin := writeScript(t, "exit 0")
	runner := &ExecRunner{BinPath: bin, Logger: log.New(os.Stderr, "", 0)}

	if err := runner.Run(context.Background(), "in.pdf", "out.pdf"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestExecRunnerFailureUsesStderr(t *testing.T) {
	bin := writeScript(t, "echo '入力PDFにページがありません。' >&2\nexit 1")
	runner := &ExecRunner{BinPath: bin}

	err := runner.Run(context.Background(), "in.pdf", "out.pdf")
	if err == nil {
		t.Fatal("Run() succeeded, want error")
	}
	if got := KindOfRunError(err); got != RunFailed {
		t.Errorf("kind = %d, want RunFailed", got)
	}
	runErr := err.(*RunError)
	if runErr.Message != "入力PDFにページがありません。" {
		t.Errorf("message = %q, want stderr content", runErr.Message)
	}
}

func TestExecRunnerCrash(t *testing.T) {
	bin := writeScript(t, "kill -9 $$")
	runner := &ExecRunner{BinPath: bin}

	err := runner.Run(context.Background(), "in.pdf", "out.pdf")
	if err == nil {
		t.Fatal("Run() succeeded, want error")
	}
	if got := KindOfRunError(err); got != RunCrashed {
		t.Errorf("kind = %d, want RunCrashed", got)
	}
}

func TestExecRunnerSpawnFailure(t *testing.T) {
	runner := &ExecRunner{BinPath: filepath.Join(t.TempDir(), "does-not-exist")}

	err := runner.Run(context.Background(), "in.pdf", "out.pdf")
	if err == nil {
		t.Fatal("Run() succeeded, want error")
	}
	if got := KindOfRunError(err); got != RunSpawnFailed {
		t.Errorf("kind = %d, want RunSpawnFailed", got)
	}
}

func TestExecRunnerPassesTuningFlags(t *testing.T) {
	out := filepath.Join(t.TempDir(), "args.txt")
	bin := writeScript(t, `echo "$@" > `+out)
	runner := &ExecRunner{BinPath: bin, DPI: 150, BatchSize: 3, Quality: 80}

	if err := runner.Run(context.Background(), "in.pdf", "out.pdf"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	args, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	want := "in.pdf -o out.pdf --dpi 150 --batch-size 3 --quality 80\n"
	if string(args) != want {
		t.Errorf("args = %q, want %q", args, want)
	}
}
