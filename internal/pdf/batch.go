package pdf

import (
	"fmt"
	"log"
	"path/filepath"
)

// batchAccumulator はページをバッチ単位でラスタライズし、
// バッチごとに独立した部分PDF（一時アーティファクト）を書き出します。
// 同時にメモリへ載るのは1バッチ分のページ画像だけです。
type batchAccumulator struct {
	renderer  Renderer
	encoder   ImageEncoder
	dpi       float64
	batchSize int
	tempDir   string
	stem      string
	token     string
	logger    *log.Logger
}

// writeArtifacts は全ページをバッチ処理してアーティファクトのパス一覧を返します。
// 途中で失敗した場合も、それまでに書き出したアーティファクトの一覧を
// 返すので、呼び出し側はクリーンアップに使えます。
func (a *batchAccumulator) writeArtifacts() ([]string, error) {
	total := a.renderer.PageCount()
	if total == 0 {
		return nil, newError(CodeEmptyInput, "入力PDFにページがありません。", nil)
	}

	var artifacts []string
	for start := 0; start < total; start += a.batchSize {
		end := start + a.batchSize
		if end > total {
			end = total
		}

		builder := NewDocumentBuilder("Clean PDF Document")
		page := &pageBuilder{renderer: a.renderer, encoder: a.encoder, dpi: a.dpi}
		for index := start; index < end; index++ {
			if err := page.buildPage(builder, index); err != nil {
				return artifacts, err
			}
		}

		name := fmt.Sprintf("%s_temp_%s_%d.pdf", a.stem, a.token, len(artifacts))
		path := filepath.Join(a.tempDir, name)
		if err := builder.WriteFile(path); err != nil {
			return artifacts, newError(CodeFileError, fmt.Sprintf("一時ファイルを書き込めませんでした: %s", path), err)
		}
		artifacts = append(artifacts, path)

		a.logger.Printf("batch artifact written. path=%s pages=%d-%d", path, start, end-1)
	}
	return artifacts, nil
}
