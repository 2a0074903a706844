package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"strings"
)

// RunErrorKind は隔離実行の失敗の種別です。
type RunErrorKind int

const (
	// RunFailed は再生成処理そのものの失敗（正常な異常終了）です。
	RunFailed RunErrorKind = iota
	// RunCrashed は実行プロセスのクラッシュ（シグナルによる強制終了）です。
	RunCrashed
	// RunSpawnFailed はプロセスの起動自体の失敗です。
	RunSpawnFailed
)

// RunError は隔離実行の失敗を種別付きで表します。
type RunError struct {
	Kind    RunErrorKind
	Message string
	Err     error
}

func (e *RunError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// KindOfRunError はエラーからRunErrorKindを取り出します。
// RunErrorでない場合はRunFailedを返します。
func KindOfRunError(err error) RunErrorKind {
	var runErr *RunError
	if errors.As(err, &runErr) {
		return runErr.Kind
	}
	return RunFailed
}

// Runner は1件の再生成を実行する能力を表します。
type Runner interface {
	Run(ctx context.Context, inputPath, outputPath string) error
}

// ExecRunner は再生成を別プロセスのCLIとして実行するRunnerです。
// ラスタライザーはスレッドセーフでないため、ワーカーgoroutineから
// 直接は呼ばず、ジョブごとに独立したプロセスへ隔離します。
// プロセスが落ちてもワーカープール本体は巻き込まれません。
type ExecRunner struct {
	BinPath   string
	DPI       float64
	BatchSize int
	Quality   int
	Logger    *log.Logger
}

// Run はCLIを起動して完了を待ちます。
func (r *ExecRunner) Run(ctx context.Context, inputPath, outputPath string) error {
	args := []string{inputPath, "-o", outputPath}
	if r.DPI > 0 {
		args = append(args, "--dpi", strconv.FormatFloat(r.DPI, 'f', -1, 64))
	}
	if r.BatchSize > 0 {
		args = append(args, "--batch-size", strconv.Itoa(r.BatchSize))
	}
	if r.Quality > 0 {
		args = append(args, "--quality", strconv.Itoa(r.Quality))
	}

	cmd := exec.CommandContext(ctx, r.BinPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if r.Logger != nil {
		r.Logger.Printf("spawning sanitiser process. bin=%s input=%s", r.BinPath, inputPath)
	}

	err := cmd.Run()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return &RunError{
			Kind:    RunSpawnFailed,
			Message: "サニタイズプロセスを起動できませんでした。",
			Err:     err,
		}
	}
	// ExitCodeが-1ならシグナルによる強制終了
	if exitErr.ExitCode() == -1 {
		return &RunError{
			Kind:    RunCrashed,
			Message: "サニタイズプロセスがクラッシュしました。",
			Err:     err,
		}
	}

	message := strings.TrimSpace(stderr.String())
	if message == "" {
		message = "PDFの再生成に失敗しました。"
	}
	return &RunError{
		Kind:    RunFailed,
		Message: message,
		Err:     err,
	}
}
