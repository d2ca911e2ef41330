// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"expensetracker/internal/aggregate"
	"expensetracker/internal/core"
)

// DateLayout is the query format of the list date.
const DateLayout = time.DateOnly

// multipartMemory is how much of a multipart body is kept in memory before
// spilling uploads to disk.
const multipartMemory = 4 << 20

// ListParams is the list screen selection taken from the query string.
type ListParams struct {
	Date    time.Time
	GroupBy aggregate.GroupBy
	SortBy  aggregate.SortBy
}

// ParseListParams reads date, group and sort. A missing date selects the
// day containing now; dates are interpreted in now's location.
func ParseListParams(query url.Values, now time.Time) (ListParams, error) {
	params := ListParams{Date: core.StartOfDay(now)}

	if v := strings.TrimSpace(query.Get("date")); v != "" {
		d, err := time.ParseInLocation(DateLayout, v, now.Location())
		if err != nil {
			return ListParams{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", v)
		}
		params.Date = d
	}

	var err error
	if params.GroupBy, err = aggregate.ParseGroupBy(query.Get("group")); err != nil {
		return ListParams{}, err
	}
	if params.SortBy, err = aggregate.ParseSortBy(query.Get("sort")); err != nil {
		return ListParams{}, err
	}
	return params, nil
}

// RequestBodyParser reads JSON, form-encoded and multipart bodies through
// one Get API.
type RequestBodyParser struct {
	r           *http.Request
	contentType string
	jsonData    map[string]any
	formData    url.Values
	multipart   *multipart.Form
	parsed      bool
	err         error
}

func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	return &RequestBodyParser{r: r, contentType: r.Header.Get("Content-Type")}
}

// Parse reads the body once. Later calls return the first result.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	mediaType, _, _ := mime.ParseMediaType(p.contentType)
	if mediaType == "multipart/form-data" {
		if p.err = p.r.ParseMultipartForm(multipartMemory); p.err != nil {
			return p.err
		}
		p.multipart = p.r.MultipartForm
		return nil
	}

	body, err := io.ReadAll(p.r.Body)
	if err != nil {
		p.err = err
		return err
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if mediaType == "application/json" || body[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(body))
	return p.err
}

// Get returns a sanitized value from the parsed data.
func (p *RequestBodyParser) Get(key string) string {
	switch {
	case p.jsonData != nil:
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
	case p.multipart != nil:
		if vals := p.multipart.Value[key]; len(vals) > 0 {
			return sanitizeInput(vals[0])
		}
	case p.formData != nil:
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// File returns the uploaded file for key. ok is false when the body is not
// multipart or carries no such file.
func (p *RequestBodyParser) File(key string) (f multipart.File, name string, ok bool, err error) {
	if p.multipart == nil || len(p.multipart.File[key]) == 0 {
		return nil, "", false, nil
	}
	fh := p.multipart.File[key][0]
	f, err = fh.Open()
	if err != nil {
		return nil, "", true, err
	}
	return f, fh.Filename, true, nil
}

// Cleanup removes temporary files created for multipart uploads.
func (p *RequestBodyParser) Cleanup() {
	if p.multipart != nil {
		_ = p.multipart.RemoveAll()
	}
}

func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// ErrUnknownCategory is returned by ExpenseForm for a category outside the
// fixed set.
var ErrUnknownCategory = errors.New("unknown category")

// ExpenseForm maps the parsed body to the entry form. An empty category
// falls back to the default; an unknown one is refused.
func (p *RequestBodyParser) ExpenseForm() (core.ExpenseForm, error) {
	form := core.ExpenseForm{
		Title:    p.Get("title"),
		Amount:   p.Get("amount"),
		Category: core.Category(p.Get("category")),
		Notes:    p.Get("notes"),
	}
	if form.Category != "" && !form.Category.Known() {
		return form, fmt.Errorf("%w: %q", ErrUnknownCategory, form.Category)
	}
	return form, nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput trims whitespace and drops control characters other than
// tab, newline and carriage return.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
