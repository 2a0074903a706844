package pdf

import (
	"bytes"
	"testing"
)

func buildSinglePageDoc(t *testing.T) *DocumentBuilder {
	t.Helper()
	builder := NewDocumentBuilder("Clean PDF Document")
	imageID := builder.AddImage([]byte{0xFF, 0xD8, 0xFF, 0xD9}, 100, 200)
	builder.AddImagePage(210, 297, imageID)
	return builder
}

func TestDocumentRoundTrip(t *testing.T) {
	builder := buildSinglePageDoc(t)

	var buf bytes.Buffer
	if err := builder.Save(&buf); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	doc, err := Load(buf.Bytes())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := doc.PageCount(); got != 1 {
		t.Errorf("PageCount() = %d, want 1", got)
	}
	catalog, err := doc.Catalog()
	if err != nil {
		t.Fatalf("Catalog() error = %v", err)
	}
	if got, ok := catalog.NameValue("Type"); !ok || got != "Catalog" {
		t.Errorf("catalog Type = %q, want Catalog", got)
	}

	pageIDs, err := doc.PageIDs()
	if err != nil {
		t.Fatalf("PageIDs() error = %v", err)
	}
	if len(pageIDs) != 1 {
		t.Fatalf("PageIDs() returned %d ids, want 1", len(pageIDs))
	}
	page := dictOf(doc.Objects[pageIDs[0]])
	if page == nil {
		t.Fatal("page object is not a dictionary")
	}
	mediaBox, ok := page.ArrayValue("MediaBox")
	if !ok || len(mediaBox) != 4 {
		t.Fatalf("MediaBox has %d entries, want 4", len(mediaBox))
	}
}

func TestDocumentRenumberFrom(t *testing.T) {
	builder := buildSinglePageDoc(t)

	var buf bytes.Buffer
	if err := builder.Save(&buf); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	doc, err := Load(buf.Bytes())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	originalCount := len(doc.Objects)
	doc.RenumberFrom(100)

	if len(doc.Objects) != originalCount {
		t.Fatalf("object count changed: got %d, want %d", len(doc.Objects), originalCount)
	}
	for id := range doc.Objects {
		if id.Number < 100 {
			t.Errorf("object %d below renumber base 100", id.Number)
		}
	}

	// 参照の付け替え後もページツリーが辿れること
	if got := doc.PageCount(); got != 1 {
		t.Errorf("PageCount() after renumber = %d, want 1", got)
	}
}

func TestStructuralKind(t *testing.T) {
	tests := []struct {
		name string
		obj  Object
		want StructuralKind
	}{
		{"catalog", Dict{"Type": Name("Catalog")}, KindCatalog},
		{"pages root", Dict{"Type": Name("Pages")}, KindPagesRoot},
		{"page", Dict{"Type": Name("Page")}, KindPage},
		{"font", Dict{"Type": Name("Font")}, KindOther},
		{"untyped dict", Dict{}, KindOther},
		{"integer", Integer(7), KindOther},
		{"stream", &Stream{Dict: Dict{"Type": Name("XObject")}}, KindOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := structuralKind(tt.obj); got != tt.want {
				t.Errorf("structuralKind() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCatalogMissing(t *testing.T) {
	doc := NewDocument()
	if _, err := doc.Catalog(); CodeOf(err) != CodeCatalogMissing {
		t.Errorf("Catalog() error code = %q, want %q", CodeOf(err), CodeCatalogMissing)
	}
}
