package pdf

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"io"

	"github.com/gen2brain/go-fitz"
)

// Renderer は入力PDFをページ単位でビットマップ化する外部ラスタライザーの
// 能力を表します。実装はスレッドセーフである必要はありません。
// 1つのRendererを複数goroutineから同時に使ってはいけません。
type Renderer interface {
	// PageCount はページ数を返します。
	PageCount() int
	// PageSize はページの寸法をポイント単位で返します。
	PageSize(index int) (widthPts, heightPts float64, err error)
	// RenderInto はページを bmp の寸法どおりにラスタライズして書き込みます。
	RenderInto(index int, bmp *image.RGBA) error
	// Close はラスタライザーのリソースを解放します。
	Close() error
}

// FitzRenderer はMuPDF（go-fitz）によるRenderer実装です。
type FitzRenderer struct {
	doc *fitz.Document
}

// OpenFitzRenderer はファイルを開いてFitzRendererを作成します。
func OpenFitzRenderer(path string) (*FitzRenderer, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	return &FitzRenderer{doc: doc}, nil
}

// PageCount はページ数を返します。
func (r *FitzRenderer) PageCount() int {
	return r.doc.NumPage()
}

// PageSize はページの寸法をポイント単位で返します。
func (r *FitzRenderer) PageSize(index int) (float64, float64, error) {
	bound, err := r.doc.Bound(index)
	if err != nil {
		return 0, 0, err
	}
	return float64(bound.Dx()), float64(bound.Dy()), nil
}

// RenderInto はページをラスタライズしてbmpへ書き込みます。
// 要求解像度はbmpの寸法から逆算したDPIでMuPDFに渡します。
func (r *FitzRenderer) RenderInto(index int, bmp *image.RGBA) error {
	widthPts, _, err := r.PageSize(index)
	if err != nil {
		return err
	}
	if widthPts <= 0 {
		return fmt.Errorf("page %d has non-positive width", index)
	}

	dpi := float64(bmp.Bounds().Dx()) * 72.0 / widthPts
	img, err := r.doc.ImageDPI(index, dpi)
	if err != nil {
		return err
	}
	blit(bmp, img)
	return nil
}

// blit は img を bmp の左上起点でコピーします。MuPDF側の丸めで
// 寸法が1ピクセルずれることがあるため、食い違う場合は前ページの画素が
// 縁に残らないよう先に全面を白で塗りつぶします。
func blit(bmp *image.RGBA, img image.Image) {
	if !img.Bounds().Size().Eq(bmp.Bounds().Size()) {
		draw.Draw(bmp, bmp.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	}
	draw.Draw(bmp, bmp.Bounds(), img, img.Bounds().Min, draw.Src)
}

// Close はドキュメントを閉じます。
func (r *FitzRenderer) Close() error {
	return r.doc.Close()
}

// ImageEncoder はビットマップを圧縮画像へ変換する外部コーデックの能力です。
type ImageEncoder interface {
	Encode(w io.Writer, img image.Image) error
}

// JPEGEncoder は固定品質のJPEGコーデックです。
type JPEGEncoder struct {
	Quality int
}

// Encode は画像をJPEGとして書き出します。
func (e JPEGEncoder) Encode(w io.Writer, img image.Image) error {
	quality := e.Quality
	if quality <= 0 {
		quality = DefaultJPEGQuality
	}
	return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
}
