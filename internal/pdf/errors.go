package pdf

import (
	"errors"
	"fmt"
)

// エラーコード一覧。ジョブ層はこのコードで失敗種別を分類します。
const (
	CodeInvalidInput          = "INVALID_INPUT"
	CodeEmptyInput            = "EMPTY_INPUT"
	CodePageAccess            = "PAGE_ACCESS_FAILED"
	CodeRenderFailed          = "RENDER_FAILED"
	CodeEncodeFailed          = "ENCODE_FAILED"
	CodeInvalidImageContainer = "INVALID_IMAGE_CONTAINER"
	CodeArtifactUnreadable    = "ARTIFACT_UNREADABLE"
	CodeCatalogMissing        = "CATALOG_MISSING"
	CodePagesRootMissing      = "PAGES_ROOT_MISSING"
	CodeFileError             = "FILE_ERROR"
)

// Error はPDF再生成処理の失敗を種別付きで表します。
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf はエラーからコードを取り出します。*Error 以外は空文字を返します。
func CodeOf(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}
