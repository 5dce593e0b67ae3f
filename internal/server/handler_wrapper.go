// Provides the generic adapter between typed handlers and net/http.

package server

import (
	"bytes"
	"context"
	"encoding"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"

	apierrors "github.com/maruel/emojistore/internal/errors"
	"github.com/maruel/emojistore/internal/models"
	"github.com/maruel/emojistore/internal/server/ratelimit"
	"github.com/maruel/emojistore/internal/server/reqctx"
	"github.com/maruel/emojistore/internal/storage/git"
)

// isMutating returns true for HTTP methods that modify state.
func isMutating(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch || method == http.MethodDelete
}

// commitIfMutating records the data directory in the history repository
// after a mutating request. Failures are logged only.
func commitIfMutating(ctx context.Context, r *http.Request, repo *git.Repo) {
	if repo == nil || !isMutating(r.Method) {
		return
	}
	if err := repo.CommitAll(ctx, r.Method+" "+r.URL.Path); err != nil {
		slog.ErrorContext(ctx, "Failed to commit data directory", "err", err, "reqID", reqctx.RequestID(ctx))
	}
}

// checkRateLimit consumes a token for the client recorded in the request
// context and sets the rate limit headers. It writes the 429 response and
// returns false when the client is over budget.
func checkRateLimit(w http.ResponseWriter, r *http.Request, limits *ratelimit.Config) bool {
	tier := limits.Match(r.Method, r.URL.Path)
	if tier == nil {
		return true
	}
	result := tier.Limiter.Allow(ratelimit.BuildKey(reqctx.ClientIP(r.Context()), tier.Name))
	ratelimit.WriteHeaders(w, result)
	if result.Allowed {
		return true
	}
	apiErr := apierrors.RateLimited(int(result.RetryAfter.Seconds()))
	writeErrorResponseWithCode(w, apiErr.StatusCode(), apiErr.Code(), apiErr.Error(), apiErr.Details())
	return false
}

// readAndDecodeBody reads the request body within the size limit and decodes
// it into input. An empty body leaves input untouched. Returns false if an
// error occurred and was written to the response.
func readAndDecodeBody[In any](ctx context.Context, w http.ResponseWriter, r *http.Request, input *In, maxBytes int64) bool {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	body, err := io.ReadAll(r.Body)
	if err2 := r.Body.Close(); err == nil {
		err = err2
	}
	if err != nil {
		var apiErr *apierrors.APIError
		if maxErr := checkMaxBytesError(err); maxErr != nil {
			apiErr = apierrors.PayloadTooLarge(maxErr.Limit)
		} else {
			slog.ErrorContext(ctx, "Failed to read request body", "err", err)
			apiErr = apierrors.InvalidBody("Failed to read request body")
		}
		writeErrorResponseWithCode(w, apiErr.StatusCode(), apiErr.Code(), apiErr.Error(), apiErr.Details())
		return false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	// Unknown fields are accepted; clients send extra keys.
	if err := json.Unmarshal(body, input); err != nil {
		slog.WarnContext(ctx, "Failed to decode request body", "err", err)
		apiErr := apierrors.InvalidBody("Invalid request body")
		writeErrorResponseWithCode(w, apiErr.StatusCode(), apiErr.Code(), apiErr.Error(), apiErr.Details())
		return false
	}
	return true
}

// checkMaxBytesError checks if an error is a MaxBytesError and returns it, or nil.
func checkMaxBytesError(err error) *http.MaxBytesError {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return maxBytesErr
	}
	return nil
}

// Wrap wraps a handler function to work as an http.Handler.
//
// The function must have signature func(context.Context, *In) (*Out, error)
// where In can be unmarshalled from JSON. Fields tagged `path:"name"` are
// filled from the route pattern and fields tagged `query:"name"` from the URL
// query, after the body is decoded. *In must implement models.Validatable.
//
// Example:
//
//	type UpdateEmojiRequest struct {
//	    ID     string `json:"-" path:"id"`
//	    UserID string `json:"-" query:"userId"`
//	}
//
//	func (h *EmojiHandler) Update(ctx context.Context, req *UpdateEmojiRequest) (*UpdateEmojiResponse, error)
func Wrap[In any, PtrIn interface {
	*In
	models.Validatable
}, Out any](fn func(context.Context, PtrIn) (*Out, error), cfg *Config) http.Handler {
	var maxBytes int64
	if cfg.ServerConfig != nil {
		maxBytes = cfg.ServerConfig.Quotas.MaxRequestBodyBytes
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if !checkRateLimit(w, r, cfg.Limits) {
			return
		}

		input := new(In)
		if !readAndDecodeBody(ctx, w, r, input, maxBytes) {
			return
		}
		if err := populatePathParams(r, input); err != nil {
			writeError(ctx, w, err, http.StatusBadRequest, apierrors.ErrValidationFailed)
			return
		}
		if err := populateQueryParams(r, input); err != nil {
			writeError(ctx, w, err, http.StatusBadRequest, apierrors.ErrValidationFailed)
			return
		}

		if err := PtrIn(input).Validate(); err != nil {
			writeError(ctx, w, err, http.StatusBadRequest, apierrors.ErrValidationFailed)
			return
		}

		output, err := fn(ctx, PtrIn(input))
		if err != nil {
			writeError(ctx, w, err, http.StatusInternalServerError, apierrors.ErrInternal)
			return
		}
		commitIfMutating(ctx, r, cfg.History)
		writeJSON(ctx, w, http.StatusOK, output)
	})
}

// populatePathParams fills struct fields tagged with `path:"name"` from the
// matched route pattern.
func populatePathParams(r *http.Request, input any) error {
	return populateTagged(input, "path", r.PathValue)
}

// populateQueryParams fills struct fields tagged with `query:"name"` from the
// URL query.
func populateQueryParams(r *http.Request, input any) error {
	return populateTagged(input, "query", r.URL.Query().Get)
}

// populateTagged returns a 400 error naming the first value that does not
// parse into its field.
func populateTagged(input any, tagName string, lookup func(string) string) error {
	val := reflect.ValueOf(input)
	if val.Kind() != reflect.Pointer {
		return nil
	}
	elem := val.Elem()
	if elem.Kind() != reflect.Struct {
		return nil
	}
	typ := elem.Type()
	for i := range typ.NumField() {
		tag := typ.Field(i).Tag.Get(tagName)
		if tag == "" {
			continue
		}
		value := lookup(tag)
		if value == "" {
			continue
		}
		fieldVal := elem.Field(i)
		var err error
		switch fieldVal.Kind() {
		case reflect.String:
			fieldVal.SetString(value)
		case reflect.Int, reflect.Int64:
			var n int64
			if n, err = strconv.ParseInt(value, 10, 64); err == nil {
				fieldVal.SetInt(n)
			}
		case reflect.Bool:
			var b bool
			if b, err = strconv.ParseBool(value); err == nil {
				fieldVal.SetBool(b)
			}
		default:
			if u, ok := fieldVal.Addr().Interface().(encoding.TextUnmarshaler); ok {
				err = u.UnmarshalText([]byte(value))
			}
		}
		if err != nil {
			return apierrors.BadRequest("Invalid "+tagName+" parameter: "+tag).WithDetail("field", tag).Wrap(err)
		}
	}
	return nil
}

// writeError writes err as the standard error envelope. Errors implementing
// ErrorWithStatus carry their own status and code; others use the defaults.
func writeError(ctx context.Context, w http.ResponseWriter, err error, defaultStatus int, defaultCode apierrors.ErrorCode) {
	statusCode := defaultStatus
	code := defaultCode
	var details map[string]any
	var ews apierrors.ErrorWithStatus
	if errors.As(err, &ews) {
		statusCode = ews.StatusCode()
		code = ews.Code()
		details = ews.Details()
	}
	attrs := []any{"err", err, "statusCode", statusCode, "code", code, "reqID", reqctx.RequestID(ctx), "ip", reqctx.ClientIP(ctx), "cc", reqctx.CountryCode(ctx)}
	if statusCode >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, "Handler error", attrs...)
	} else {
		slog.WarnContext(ctx, "Request rejected", attrs...)
	}
	writeErrorResponseWithCode(w, statusCode, code, err.Error(), details)
}

// writeJSON writes v as a JSON response.
func writeJSON(ctx context.Context, w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(ctx, "Failed to encode response", "err", err)
	}
}

// writeErrorResponseWithCode writes a detailed error response as JSON with code and details.
func writeErrorResponseWithCode(w http.ResponseWriter, statusCode int, code apierrors.ErrorCode, message string, details map[string]any) {
	if len(details) == 0 {
		details = nil
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := apierrors.ErrorResponse{
		Error: apierrors.ErrorDetails{
			Code:    code,
			Message: message,
		},
		Details: details,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Failed to encode error response", "err", err)
	}
}
