package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/hitoshi/coachnotify/internal/model"
)

// ErrorResponseBody はCallable APIのエラーレスポンス。
// モバイルクライアントのCallable SDKが解釈できる形式にする。
type ErrorResponseBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail はエラーの状態とメッセージ。
type ErrorDetail struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// StatusCodeFor はエラーコードに対応するHTTPステータスを返す。
func StatusCodeFor(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case model.ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case model.ErrCodeResourceExhausted:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WriteAPIError はエラーコードから導いたステータスでエラーレスポンスを書き込む。
func WriteAPIError(w http.ResponseWriter, apiErr *model.APIError) {
	WriteErrorResponse(w, StatusCodeFor(apiErr), apiErr)
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// statusは "invalid-argument" を "INVALID_ARGUMENT" のように大文字化して返す。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Error: ErrorDetail{
			Status:  strings.ToUpper(strings.ReplaceAll(apiErr.Code, "-", "_")),
			Message: apiErr.Message,
		},
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、呼び出し元には一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteAPIError(w, model.NewInternalError("Internal error."))
}
