package pdf

import (
	"bytes"
	"fmt"
	"image"
	"math"
)

// pageBuilder は1ページ分のラスタライズと部分ドキュメントへの追加を行います。
// bitmap は同一寸法のページが続く間だけ使い回されるコンテナで、
// 寸法が変わったときのみ再確保されます。これが大きなドキュメントでも
// ラスタライズのメモリコストをほぼ一定に保つ仕組みです。
type pageBuilder struct {
	renderer Renderer
	encoder  ImageEncoder
	dpi      float64
	bitmap   *image.RGBA
}

// buildPage は指定ページをラスタライズ・エンコードし、
// out に全面画像ページとして追加します。
func (p *pageBuilder) buildPage(out *DocumentBuilder, index int) error {
	widthPts, heightPts, err := p.renderer.PageSize(index)
	if err != nil {
		return newError(CodePageAccess, fmt.Sprintf("ページ %d を取得できませんでした。", index), err)
	}

	// 目標DPIに対するピクセル寸法
	targetWidth := int(math.Round(widthPts * p.dpi / 72.0))
	targetHeight := int(math.Round(heightPts * p.dpi / 72.0))

	if p.bitmap == nil ||
		p.bitmap.Bounds().Dx() != targetWidth ||
		p.bitmap.Bounds().Dy() != targetHeight {
		p.bitmap = image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))
	}

	// コンテナを取り出し、使い終わったら必ず戻す
	bitmap := p.bitmap
	p.bitmap = nil
	if bitmap == nil {
		return newError(CodeInvalidImageContainer, "ビットマップコンテナが空です。", nil)
	}

	if err := p.renderer.RenderInto(index, bitmap); err != nil {
		return newError(CodeRenderFailed, fmt.Sprintf("ページ %d のラスタライズに失敗しました。", index), err)
	}

	var encoded bytes.Buffer
	if err := p.encoder.Encode(&encoded, bitmap); err != nil {
		return newError(CodeEncodeFailed, fmt.Sprintf("ページ %d の画像エンコードに失敗しました。", index), err)
	}
	p.bitmap = bitmap

	imageID := out.AddImage(encoded.Bytes(), targetWidth, targetHeight)
	out.AddImagePage(widthPts*mmPerInch/72.0, heightPts*mmPerInch/72.0, imageID)
	return nil
}
