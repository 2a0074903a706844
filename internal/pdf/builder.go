package pdf

import (
	"fmt"
	"io"
	"os"
)

const mmPerInch = 25.4

// DocumentBuilder は単一画像ページのみから成るPDFを組み立てます。
// バッチ書き出しが各バッチの部分ドキュメントを生成するのに使います。
type DocumentBuilder struct {
	doc       *Document
	catalogID ObjectID
	pagesID   ObjectID
	kids      Array
}

// NewDocumentBuilder はタイトル付きの空ドキュメントを作成します。
func NewDocumentBuilder(title string) *DocumentBuilder {
	doc := NewDocument()

	pagesID := doc.Add(Dict{"Type": Name("Pages")})
	catalogID := doc.Add(Dict{
		"Type":  Name("Catalog"),
		"Pages": Reference(pagesID),
	})
	infoID := doc.Add(Dict{
		"Title":    String(title),
		"Producer": String("sanitisium"),
	})
	doc.Trailer["Root"] = Reference(catalogID)
	doc.Trailer["Info"] = Reference(infoID)

	return &DocumentBuilder{
		doc:       doc,
		catalogID: catalogID,
		pagesID:   pagesID,
	}
}

// AddImage はJPEGデータを画像XObjectとして登録し、そのIDを返します。
func (b *DocumentBuilder) AddImage(jpegData []byte, widthPx, heightPx int) ObjectID {
	return b.doc.Add(&Stream{
		Dict: Dict{
			"Type":             Name("XObject"),
			"Subtype":          Name("Image"),
			"Width":            Integer(widthPx),
			"Height":           Integer(heightPx),
			"ColorSpace":       Name("DeviceRGB"),
			"BitsPerComponent": Integer(8),
			"Filter":           Name("DCTDecode"),
		},
		Data: jpegData,
	})
}

// AddImagePage は指定画像をページ全面に配置したページを追加します。
// ページサイズはミリメートル単位で受け取り、MediaBoxはポイントに換算されます。
func (b *DocumentBuilder) AddImagePage(widthMM, heightMM float64, imageID ObjectID) {
	widthPts := widthMM * 72 / mmPerInch
	heightPts := heightMM * 72 / mmPerInch

	content := fmt.Sprintf("q\n%s 0 0 %s 0 0 cm\n/Im0 Do\nQ",
		formatReal(widthPts), formatReal(heightPts))
	contentID := b.doc.Add(&Stream{Dict: Dict{}, Data: []byte(content)})

	pageID := b.doc.Add(Dict{
		"Type":     Name("Page"),
		"Parent":   Reference(b.pagesID),
		"MediaBox": Array{Integer(0), Integer(0), Real(widthPts), Real(heightPts)},
		"Resources": Dict{
			"XObject": Dict{"Im0": Reference(imageID)},
		},
		"Contents": Reference(contentID),
	})
	b.kids = append(b.kids, Reference(pageID))
}

// PageCount は追加済みページ数を返します。
func (b *DocumentBuilder) PageCount() int {
	return len(b.kids)
}

// Save はページツリーを確定してPDFを書き出します。
func (b *DocumentBuilder) Save(w io.Writer) error {
	pages := dictOf(b.doc.Objects[b.pagesID])
	pages.Set("Kids", b.kids)
	pages.Set("Count", Integer(len(b.kids)))
	return b.doc.Save(w)
}

// WriteFile はPDFをファイルに書き出します。
func (b *DocumentBuilder) WriteFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := b.Save(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
