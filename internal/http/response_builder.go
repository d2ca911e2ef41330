// Package http provides the HTTP presentation adapter: JSON endpoints for
// recording and listing expenses and for the seven day report with its
// CSV, PDF and share text renditions.
//
// This file implements a small fluent builder so handlers write status,
// headers and body consistently.

package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
)

// ResponseBuilder provides a fluent API for building responses.
type ResponseBuilder struct {
	statusCode  int
	contentType string
	headers     map[string]string
	body        []byte
	err         error
}

// NewResponse creates a builder with a default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON encodes v as the body. Encoding failures surface in Write as a 500.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		b.err = err
		return b
	}
	b.contentType = "application/json; charset=utf-8"
	b.body = buf.Bytes()
	return b
}

func (b *ResponseBuilder) Text(s string) *ResponseBuilder {
	b.contentType = "text/plain; charset=utf-8"
	b.body = []byte(s)
	return b
}

// Bytes sets a raw body with the given content type.
func (b *ResponseBuilder) Bytes(contentType string, body []byte) *ResponseBuilder {
	b.contentType = contentType
	b.body = body
	return b
}

// Attachment marks the body as a download named filename.
func (b *ResponseBuilder) Attachment(filename string) *ResponseBuilder {
	return b.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
}

// Write sends the built response to the http.ResponseWriter.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	if b.err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.contentType != "" {
		w.Header().Set("Content-Type", b.contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(b.body)))
	}
	w.WriteHeader(b.statusCode)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

type errorBody struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

// ErrorResponse creates a JSON error response.
func ErrorResponse(statusCode int, message string) *ResponseBuilder {
	return NewResponse().Status(statusCode).JSON(errorBody{Error: message})
}

func BadRequestError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// ValidationErrorResponse creates a 422 naming the rejected form fields.
func ValidationErrorResponse(fields []string) *ResponseBuilder {
	return NewResponse().
		Status(http.StatusUnprocessableEntity).
		JSON(errorBody{Error: "validation failed", Fields: fields})
}

func InternalServerError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

func TooManyRequestsError() *ResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, please try again later")
}
