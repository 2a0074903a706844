package pdf

import (
	"fmt"
	"path/filepath"
	"testing"
)

// writeArtifact は指定枚数の画像ページを持つ部分PDFを書き出します。
// 各ページのMediaBox幅をページ通し番号にして、結合後の順序検証に使います。
func writeArtifact(t *testing.T, dir string, index, pages int, firstSeq *int) string {
	t.Helper()
	builder := NewDocumentBuilder("Clean PDF Document")
	for i := 0; i < pages; i++ {
		imageID := builder.AddImage([]byte{0xFF, 0xD8, 0xFF, 0xD9}, 10, 10)
		builder.AddImagePage(float64(*firstSeq)*mmPerInch/72, 297, imageID)
		*firstSeq++
	}
	path := filepath.Join(dir, fmt.Sprintf("artifact_%d.pdf", index))
	if err := builder.WriteFile(path); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestMergeFilesPreservesPageOrder(t *testing.T) {
	dir := t.TempDir()
	seq := 1
	paths := []string{
		writeArtifact(t, dir, 0, 5, &seq),
		writeArtifact(t, dir, 1, 5, &seq),
		writeArtifact(t, dir, 2, 2, &seq),
	}
	output := filepath.Join(dir, "merged.pdf")

	if err := MergeFiles(paths, output); err != nil {
		t.Fatalf("MergeFiles() error = %v", err)
	}

	doc, err := LoadFile(output)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	pageIDs, err := doc.PageIDs()
	if err != nil {
		t.Fatalf("PageIDs() error = %v", err)
	}
	if len(pageIDs) != 12 {
		t.Fatalf("merged page count = %d, want 12", len(pageIDs))
	}

	for i, id := range pageIDs {
		page := dictOf(doc.Objects[id])
		if page == nil {
			t.Fatalf("page %d is not a dictionary", i)
		}
		mediaBox, ok := page.ArrayValue("MediaBox")
		if !ok || len(mediaBox) != 4 {
			t.Fatalf("page %d MediaBox has %d entries, want 4", i, len(mediaBox))
		}
		var width float64
		switch v := mediaBox[2].(type) {
		case Integer:
			width = float64(v)
		case Real:
			width = float64(v)
		default:
			t.Fatalf("page %d MediaBox width is %T", i, mediaBox[2])
		}
		if got := int(width + 0.5); got != i+1 {
			t.Errorf("page %d has sequence width %d, want %d", i, got, i+1)
		}
	}
}

func TestMergeFilesStructuralInvariants(t *testing.T) {
	dir := t.TempDir()
	seq := 1
	paths := []string{
		writeArtifact(t, dir, 0, 3, &seq),
		writeArtifact(t, dir, 1, 3, &seq),
	}
	output := filepath.Join(dir, "merged.pdf")

	if err := MergeFiles(paths, output); err != nil {
		t.Fatalf("MergeFiles() error = %v", err)
	}
	doc, err := LoadFile(output)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	// CatalogとPagesルートは1つずつしか残らないこと
	catalogs, pagesRoots := 0, 0
	for _, obj := range doc.Objects {
		switch structuralKind(obj) {
		case KindCatalog:
			catalogs++
		case KindPagesRoot:
			pagesRoots++
		}
	}
	if catalogs != 1 {
		t.Errorf("catalog count = %d, want 1", catalogs)
	}
	if pagesRoots != 1 {
		t.Errorf("pages root count = %d, want 1", pagesRoots)
	}

	pagesRootID, err := doc.PagesRootID()
	if err != nil {
		t.Fatalf("PagesRootID() error = %v", err)
	}
	pagesRoot := dictOf(doc.Objects[pagesRootID])
	count, ok := pagesRoot.IntegerValue("Count")
	if !ok || count != 6 {
		t.Errorf("pages root Count = %d, want 6", count)
	}
	if kids, ok := pagesRoot.ArrayValue("Kids"); !ok || len(kids) != 6 {
		t.Errorf("Kids length = %d, want 6", len(kids))
	}

	// 全ページのParentがPagesルートを指すこと
	pageIDs, err := doc.PageIDs()
	if err != nil {
		t.Fatalf("PageIDs() error = %v", err)
	}
	for _, id := range pageIDs {
		page := dictOf(doc.Objects[id])
		parent, ok := page.ReferenceValue("Parent")
		if !ok || parent != pagesRootID {
			t.Errorf("page %v Parent = %v, want %v", id, parent, pagesRootID)
		}
	}
}

func TestMergeFilesSingleArtifact(t *testing.T) {
	dir := t.TempDir()
	seq := 1
	path := writeArtifact(t, dir, 0, 4, &seq)
	output := filepath.Join(dir, "merged.pdf")

	if err := MergeFiles([]string{path}, output); err != nil {
		t.Fatalf("MergeFiles() error = %v", err)
	}
	doc, err := LoadFile(output)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if got := doc.PageCount(); got != 4 {
		t.Errorf("PageCount() = %d, want 4", got)
	}
}

func TestMergeFilesEmptyList(t *testing.T) {
	err := MergeFiles(nil, filepath.Join(t.TempDir(), "merged.pdf"))
	if CodeOf(err) != CodeEmptyInput {
		t.Errorf("error code = %q, want %q", CodeOf(err), CodeEmptyInput)
	}
}

func TestMergeFilesUnreadableArtifact(t *testing.T) {
	dir := t.TempDir()
	err := MergeFiles([]string{filepath.Join(dir, "missing.pdf")}, filepath.Join(dir, "merged.pdf"))
	if CodeOf(err) != CodeArtifactUnreadable {
		t.Errorf("error code = %q, want %q", CodeOf(err), CodeArtifactUnreadable)
	}
}
