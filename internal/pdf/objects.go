// Package pdf はPDFの再生成（ラスタライズ・バッチ書き出し・統合）機能を提供します。
package pdf

// ObjectID は1つのDocumentの名前空間内でオブジェクトを一意に識別する
// (番号, 世代) の組です。
type ObjectID struct {
	Number     uint32
	Generation uint16
}

// Object はPDFオブジェクトの値を表します。
// 実体は Null / Boolean / Integer / Real / Name / String /
// Reference / Array / Dict / *Stream のいずれかです。
type Object interface {
	isObject()
}

// Null はPDFの null オブジェクトです。
type Null struct{}

// Boolean はPDFの真偽値です。
type Boolean bool

// Integer はPDFの整数です。
type Integer int64

// Real はPDFの実数です。
type Real float64

// Name はPDFの名前オブジェクト（/Name）です。先頭のスラッシュは含みません。
type Name string

// String はPDFのリテラル文字列です。
type String []byte

// Reference は他オブジェクトへの間接参照です。
type Reference ObjectID

// Array はPDFの配列です。
type Array []Object

// Dict はPDFの辞書です。
type Dict map[Name]Object

// Stream は辞書とバイト列データを併せ持つストリームオブジェクトです。
type Stream struct {
	Dict Dict
	Data []byte
}

func (Null) isObject()      {}
func (Boolean) isObject()   {}
func (Integer) isObject()   {}
func (Real) isObject()      {}
func (Name) isObject()      {}
func (String) isObject()    {}
func (Reference) isObject() {}
func (Array) isObject()     {}
func (Dict) isObject()      {}
func (*Stream) isObject()   {}

// Get はキーに対応する値を返します。
func (d Dict) Get(key Name) (Object, bool) {
	v, ok := d[key]
	return v, ok
}

// Set はキーに値を設定します。
func (d Dict) Set(key Name, value Object) {
	d[key] = value
}

// NameValue はキーの値を名前として返します。
func (d Dict) NameValue(key Name) (Name, bool) {
	v, ok := d[key].(Name)
	return v, ok
}

// ReferenceValue はキーの値を間接参照として返します。
func (d Dict) ReferenceValue(key Name) (ObjectID, bool) {
	v, ok := d[key].(Reference)
	return ObjectID(v), ok
}

// ArrayValue はキーの値を配列として返します。
func (d Dict) ArrayValue(key Name) (Array, bool) {
	v, ok := d[key].(Array)
	return v, ok
}

// IntegerValue はキーの値を整数として返します。
func (d Dict) IntegerValue(key Name) (int64, bool) {
	v, ok := d[key].(Integer)
	return int64(v), ok
}

// StructuralKind はオブジェクトがドキュメント構造の中で担う役割です。
// 統合アルゴリズムの分岐はこの列挙に対して網羅的に行います。
type StructuralKind int

const (
	// KindOther は構造上の特別な役割を持たないオブジェクトです。
	KindOther StructuralKind = iota
	// KindCatalog はドキュメントのルート（/Type /Catalog）です。
	KindCatalog
	// KindPagesRoot はページツリーのルート（/Type /Pages）です。
	KindPagesRoot
	// KindPage は1つのページ（/Type /Page）です。
	KindPage
)

// structuralKind はオブジェクトの /Type から構造上の役割を判定します。
func structuralKind(obj Object) StructuralKind {
	dict := dictOf(obj)
	if dict == nil {
		return KindOther
	}
	typeName, ok := dict.NameValue("Type")
	if !ok {
		return KindOther
	}
	switch typeName {
	case "Catalog":
		return KindCatalog
	case "Pages":
		return KindPagesRoot
	case "Page":
		return KindPage
	default:
		return KindOther
	}
}

// dictOf はオブジェクトが辞書またはストリームの場合にその辞書を返します。
func dictOf(obj Object) Dict {
	switch v := obj.(type) {
	case Dict:
		return v
	case *Stream:
		return v.Dict
	default:
		return nil
	}
}
