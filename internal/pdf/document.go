package pdf

import (
	"fmt"
	"sort"
)

// Document は1つのPDFのオブジェクトグラフ全体を表します。
// すべてのオブジェクトはトレイラーの /Root から到達可能であることを前提とします。
type Document struct {
	Objects map[ObjectID]Object
	Trailer Dict
	MaxID   uint32
}

// NewDocument は空のDocumentを作成します。
func NewDocument() *Document {
	return &Document{
		Objects: make(map[ObjectID]Object),
		Trailer: make(Dict),
	}
}

// Add はオブジェクトを新しい番号で登録し、そのIDを返します。
func (d *Document) Add(obj Object) ObjectID {
	d.MaxID++
	id := ObjectID{Number: d.MaxID}
	d.Objects[id] = obj
	return id
}

// Catalog はトレイラーの /Root が指すカタログ辞書を返します。
func (d *Document) Catalog() (Dict, error) {
	rootID, ok := d.Trailer.ReferenceValue("Root")
	if !ok {
		return nil, newError(CodeCatalogMissing, "ドキュメントにカタログ（/Root）がありません。", nil)
	}
	catalog := dictOf(d.Objects[rootID])
	if catalog == nil {
		return nil, newError(CodeCatalogMissing, fmt.Sprintf("カタログオブジェクト %d %d が見つかりません。", rootID.Number, rootID.Generation), nil)
	}
	return catalog, nil
}

// PagesRootID はカタログが指すページツリーのルートIDを返します。
func (d *Document) PagesRootID() (ObjectID, error) {
	catalog, err := d.Catalog()
	if err != nil {
		return ObjectID{}, err
	}
	pagesID, ok := catalog.ReferenceValue("Pages")
	if !ok {
		return ObjectID{}, newError(CodePagesRootMissing, "カタログがページツリー（/Pages）を参照していません。", nil)
	}
	if dictOf(d.Objects[pagesID]) == nil {
		return ObjectID{}, newError(CodePagesRootMissing, fmt.Sprintf("ページツリーのルート %d %d が見つかりません。", pagesID.Number, pagesID.Generation), nil)
	}
	return pagesID, nil
}

// PageIDs はページツリーを辿り、読み順どおりのページIDの一覧を返します。
func (d *Document) PageIDs() ([]ObjectID, error) {
	rootID, err := d.PagesRootID()
	if err != nil {
		return nil, err
	}
	visited := make(map[ObjectID]bool)
	var pages []ObjectID
	d.collectPages(rootID, visited, &pages)
	return pages, nil
}

func (d *Document) collectPages(nodeID ObjectID, visited map[ObjectID]bool, pages *[]ObjectID) {
	if visited[nodeID] {
		return
	}
	visited[nodeID] = true

	node := dictOf(d.Objects[nodeID])
	if node == nil {
		return
	}
	switch structuralKind(node) {
	case KindPage:
		*pages = append(*pages, nodeID)
	case KindPagesRoot:
		kids, _ := node.ArrayValue("Kids")
		for _, kid := range kids {
			ref, ok := kid.(Reference)
			if !ok {
				continue
			}
			d.collectPages(ObjectID(ref), visited, pages)
		}
	case KindCatalog, KindOther:
		// ページツリーには現れない
	}
}

// PageCount はドキュメントのページ数を返します。ツリーが壊れている場合は0です。
func (d *Document) PageCount() int {
	pages, err := d.PageIDs()
	if err != nil {
		return 0
	}
	return len(pages)
}

// RenumberFrom は全オブジェクトを start から始まる連番に振り直します。
// オブジェクト間・トレイラー内のすべての参照も新しい番号に書き換えられるため、
// 別ドキュメントの名前空間と衝突せずに統合できます。
func (d *Document) RenumberFrom(start uint32) {
	ids := d.sortedIDs()
	idMap := make(map[ObjectID]ObjectID, len(ids))
	next := start
	for _, id := range ids {
		idMap[id] = ObjectID{Number: next}
		next++
	}

	renumbered := make(map[ObjectID]Object, len(d.Objects))
	for oldID, obj := range d.Objects {
		renumbered[idMap[oldID]] = remapReferences(obj, idMap)
	}
	d.Objects = renumbered
	d.Trailer = remapReferences(d.Trailer, idMap).(Dict)
	if len(ids) == 0 {
		d.MaxID = start - 1
	} else {
		d.MaxID = next - 1
	}
}

// Compact は番号空間を1から密に振り直します。出力を整えるための正規化であり、
// 正しさには影響しません。
func (d *Document) Compact() {
	d.RenumberFrom(1)
}

func (d *Document) sortedIDs() []ObjectID {
	ids := make([]ObjectID, 0, len(d.Objects))
	for id := range d.Objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Number != ids[j].Number {
			return ids[i].Number < ids[j].Number
		}
		return ids[i].Generation < ids[j].Generation
	})
	return ids
}

// remapReferences はオブジェクト内のすべての間接参照を idMap に従って
// 書き換えます。コンテナは在place更新されます。
func remapReferences(obj Object, idMap map[ObjectID]ObjectID) Object {
	switch v := obj.(type) {
	case Reference:
		if newID, ok := idMap[ObjectID(v)]; ok {
			return Reference(newID)
		}
		return v
	case Array:
		for i := range v {
			v[i] = remapReferences(v[i], idMap)
		}
		return v
	case Dict:
		for key, item := range v {
			v[key] = remapReferences(item, idMap)
		}
		return v
	case *Stream:
		v.Dict = remapReferences(v.Dict, idMap).(Dict)
		return v
	default:
		return obj
	}
}
