// Package httputil holds the JSON helpers shared by the fasthttp handlers.
package httputil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/valyala/fasthttp"
)

// APIResponse is the envelope for non-tool endpoints (health, errors)
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// WriteJSON encodes v as the response body
func WriteJSON(ctx *fasthttp.RequestCtx, statusCode int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"success":false,"message":"response encoding failed"}`)
		return
	}
	ctx.SetStatusCode(statusCode)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

// JSONResponse sends a response in the APIResponse envelope
func JSONResponse(ctx *fasthttp.RequestCtx, success bool, message string, data any, statusCode int) {
	WriteJSON(ctx, statusCode, APIResponse{
		Success: success,
		Message: message,
		Data:    data,
	})
}

// JSONError sends a failed APIResponse
func JSONError(ctx *fasthttp.RequestCtx, message string, statusCode int) {
	JSONResponse(ctx, false, message, nil, statusCode)
}

// JSONErrorKind sends a failed APIResponse tagged with an error kind
func JSONErrorKind(ctx *fasthttp.RequestCtx, kind, message string, statusCode int) {
	WriteJSON(ctx, statusCode, APIResponse{
		Success: false,
		Message: message,
		Kind:    kind,
	})
}

// JSONData sends a successful APIResponse carrying data
func JSONData(ctx *fasthttp.RequestCtx, data any, statusCode int) {
	JSONResponse(ctx, true, "", data, statusCode)
}

// DecodeJSON strictly decodes a single JSON value from body into v.
// Unknown fields and trailing data are rejected.
func DecodeJSON(body []byte, v any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return errors.New("request body is empty")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("invalid JSON body: unexpected data after the first value")
	}
	return nil
}
