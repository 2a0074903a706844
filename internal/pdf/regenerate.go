package pdf

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	// DefaultDPI はラスタライズの既定解像度です。
	DefaultDPI = 300.0
	// DefaultBatchSize は1バッチで処理する既定ページ数です。
	DefaultBatchSize = 5
	// DefaultJPEGQuality は既定のJPEG品質です。
	DefaultJPEGQuality = 70
)

// Options は再生成処理の調整パラメータを保持します。
// ゼロ値のフィールドには既定値が適用されます。
type Options struct {
	DPI         float64
	BatchSize   int
	JPEGQuality int
	// TempDir は一時アーティファクトの置き場です。空ならOSの一時ディレクトリを使います。
	TempDir string
	// OpenRenderer はテスト用の差し替えポイントです。nilならMuPDFを使います。
	OpenRenderer func(path string) (Renderer, error)
}

// Service はPDFの破壊的再生成を行います。
// 入力の全ページをラスタライズして画像だけのPDFに組み直すため、
// 埋め込みスクリプトや添付ファイルなどの能動的コンテンツは残りません。
type Service struct {
	opts   Options
	logger *log.Logger
}

// NewService はオプションに既定値を適用してServiceを作成します。
func NewService(opts Options, logger *log.Logger) *Service {
	if opts.DPI <= 0 {
		opts.DPI = DefaultDPI
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = DefaultJPEGQuality
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.OpenRenderer == nil {
		opts.OpenRenderer = func(path string) (Renderer, error) {
			return OpenFitzRenderer(path)
		}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{opts: opts, logger: logger}
}

// Regenerate は inputPath のPDFを再生成し outputPath に書き出します。
// 一時アーティファクトは成否にかかわらず削除されます。
func (s *Service) Regenerate(inputPath, outputPath string) error {
	renderer, err := s.opts.OpenRenderer(inputPath)
	if err != nil {
		return newError(CodeInvalidInput, fmt.Sprintf("入力PDFを開けませんでした: %s", inputPath), err)
	}
	defer renderer.Close()

	total := renderer.PageCount()
	if total == 0 {
		return newError(CodeEmptyInput, "入力PDFにページがありません。", nil)
	}

	stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	token := uuid.NewString()[:8]

	accumulator := &batchAccumulator{
		renderer:  renderer,
		encoder:   JPEGEncoder{Quality: s.opts.JPEGQuality},
		dpi:       s.opts.DPI,
		batchSize: s.opts.BatchSize,
		tempDir:   s.opts.TempDir,
		stem:      stem,
		token:     token,
		logger:    s.logger,
	}

	s.logger.Printf("regeneration started. input=%s pages=%d batch_size=%d dpi=%g", inputPath, total, s.opts.BatchSize, s.opts.DPI)

	artifacts, err := accumulator.writeArtifacts()
	defer s.cleanupArtifacts(artifacts)
	if err != nil {
		return err
	}

	if err := MergeFiles(artifacts, outputPath); err != nil {
		return err
	}

	s.logger.Printf("regeneration finished. output=%s artifacts=%d", outputPath, len(artifacts))
	return nil
}

// cleanupArtifacts は一時アーティファクトを削除します。削除失敗はログに残すだけです。
func (s *Service) cleanupArtifacts(paths []string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Printf("could not delete temp artifact. path=%s error=%v", path, err)
		}
	}
}
