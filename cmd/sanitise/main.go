// Package main はPDFを1件サニタイズするCLIのエントリーポイントです。
// ワーカープールはジョブごとにこのCLIを別プロセスとして起動します。
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourusername/sanitisium/internal/pdf"
)

func main() {
	var (
		outputPath string
		dpi        float64
		batchSize  int
		quality    int
	)

	rootCmd := &cobra.Command{
		Use:   "sanitise <input.pdf>",
		Short: "PDFを全ページラスタライズして安全なPDFに再生成します",
		Long: `sanitise は入力PDFの全ページを画像化し、画像だけから成るPDFを
組み立て直します。元のPDFに含まれるスクリプトや添付ファイルなどの
能動的コンテンツは出力に残りません。`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputPath := args[0]
			if outputPath == "" {
				outputPath = defaultOutputPath(inputPath)
			}

			logger := log.New(os.Stderr, "", log.LstdFlags)
			service := pdf.NewService(pdf.Options{
				DPI:         dpi,
				BatchSize:   batchSize,
				JPEGQuality: quality,
			}, logger)

			started := time.Now()
			if err := service.Regenerate(inputPath, outputPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "completed in %s: %s\n", time.Since(started).Round(time.Millisecond), outputPath)
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "出力PDFのパス（省略時は regenerated_<入力名>.pdf）")
	rootCmd.Flags().Float64Var(&dpi, "dpi", pdf.DefaultDPI, "ラスタライズ解像度")
	rootCmd.Flags().IntVar(&batchSize, "batch-size", pdf.DefaultBatchSize, "1バッチで処理するページ数")
	rootCmd.Flags().IntVar(&quality, "quality", pdf.DefaultJPEGQuality, "JPEG品質（1-100）")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// defaultOutputPath は入力と同じディレクトリに regenerated_ 付きの
// 出力パスを組み立てます。
func defaultOutputPath(inputPath string) string {
	dir := filepath.Dir(inputPath)
	base := filepath.Base(inputPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if ext == "" {
		ext = ".pdf"
	}
	return filepath.Join(dir, "regenerated_"+stem+ext)
}
