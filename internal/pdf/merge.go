package pdf

import (
	"fmt"
)

// MergeFiles は複数の部分PDFをオブジェクトグラフのレベルで結合し、
// 1つのPDFとして outputPath に書き出します。
// ページ順は paths の順序、および各アーティファクト内のページ順を保ちます。
func MergeFiles(paths []string, outputPath string) error {
	if len(paths) == 0 {
		return newError(CodeEmptyInput, "結合するアーティファクトがありません。", nil)
	}

	base, err := LoadFile(paths[0])
	if err != nil {
		return newError(CodeArtifactUnreadable, fmt.Sprintf("一時ファイルを読み込めませんでした: %s", paths[0]), err)
	}

	pageIDs, err := base.PageIDs()
	if err != nil {
		return err
	}

	nextID := base.MaxID + 1
	for _, path := range paths[1:] {
		doc, err := LoadFile(path)
		if err != nil {
			return newError(CodeArtifactUnreadable, fmt.Sprintf("一時ファイルを読み込めませんでした: %s", path), err)
		}

		// ベースとID空間が衝突しないよう全体を付け替える
		doc.RenumberFrom(nextID)
		nextID = doc.MaxID + 1

		docPages, err := doc.PageIDs()
		if err != nil {
			return err
		}
		pageSet := make(map[ObjectID]bool, len(docPages))
		for _, id := range docPages {
			pageSet[id] = true
		}

		for id, obj := range doc.Objects {
			switch structuralKind(obj) {
			case KindCatalog, KindPagesRoot:
				// ベースの構造オブジェクトだけを残す
			case KindPage:
				if pageSet[id] {
					base.Objects[id] = obj
				}
			default:
				base.Objects[id] = obj
			}
		}
		pageIDs = append(pageIDs, docPages...)
	}
	base.MaxID = nextID - 1

	if _, err := base.Catalog(); err != nil {
		return err
	}
	pagesRootID, err := base.PagesRootID()
	if err != nil {
		return err
	}

	// 全ページをベースのページツリー直下へぶら下げ直す
	kids := make(Array, 0, len(pageIDs))
	for _, id := range pageIDs {
		page := dictOf(base.Objects[id])
		if page == nil {
			continue
		}
		page.Set("Parent", Reference(pagesRootID))
		kids = append(kids, Reference(id))
	}

	pagesRoot := dictOf(base.Objects[pagesRootID])
	pagesRoot.Set("Kids", kids)
	pagesRoot.Set("Count", Integer(len(kids)))

	base.Compact()

	if err := base.SaveFile(outputPath); err != nil {
		return newError(CodeFileError, fmt.Sprintf("出力ファイルを書き込めませんでした: %s", outputPath), err)
	}
	return nil
}
