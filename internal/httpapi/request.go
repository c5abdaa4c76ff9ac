package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gookit/validate"
	"github.com/shopspring/decimal"

	"tallybook.io/internal/blob"
)

// decodeJSON reads a single JSON document into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return fmt.Errorf("invalid JSON: %v", err)
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// bind decodes and validates a request body. It writes the error response
// itself and reports whether the handler should continue.
func bind(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		writeError(w, r, http.StatusBadRequest, err.Error())
		return false
	}
	return check(w, r, dst)
}

func check(w http.ResponseWriter, r *http.Request, payload any) bool {
	v := validate.Struct(payload)
	if !v.Validate() {
		writeError(w, r, http.StatusBadRequest, v.Errors.One())
		return false
	}
	return true
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTime accepts RFC 3339, a naive timestamp, a date or unix seconds.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty time")
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", s)
}

// flexTime is a request timestamp in any format parseTime accepts.
type flexTime struct{ time.Time }

func (t *flexTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := parseTime(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t *flexTime) ptr() *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

// queryTime reads a required time query parameter.
func queryTime(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		writeError(w, r, http.StatusBadRequest, name+" is required")
		return time.Time{}, false
	}
	t, err := parseTime(raw)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid "+name)
		return time.Time{}, false
	}
	return t, true
}

// parseForm parses a multipart body, keeping small parts in memory.
func (a *API) parseForm(w http.ResponseWriter, r *http.Request) bool {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		writeError(w, r, http.StatusBadRequest, "Invalid multipart form")
		return false
	}
	return true
}

// formFile returns the named upload, or nil when the part is absent. The
// caller closes the returned file.
func formFile(r *http.Request, name string) (*blob.Upload, multipart.File, error) {
	f, hdr, err := r.FormFile(name)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	ct := hdr.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	return &blob.Upload{Filename: hdr.Filename, ContentType: ct, Body: f}, f, nil
}

func attachment(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func streamAttachment(w http.ResponseWriter, r *http.Request, contentType, filename string, body io.Reader) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		logFor(r).WithError(err).Warn("document stream interrupted")
	}
}

// bindForm decodes the JSON document carried in a multipart field and
// validates it. A missing field decodes as an empty object.
func bindForm(w http.ResponseWriter, r *http.Request, field string, dst any) bool {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		raw = "{}"
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid %s: %v", field, err))
		return false
	}
	return check(w, r, dst)
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// upload is an optional multipart file together with its open handle.
type upload struct {
	doc  *blob.Upload
	file multipart.File
}

func (u *upload) document() *blob.Upload {
	if u == nil {
		return nil
	}
	return u.doc
}

func (u *upload) Close() {
	if u != nil && u.file != nil {
		_ = u.file.Close()
	}
}

// optionalUpload reads the named file part of an already parsed multipart form.
func (a *API) optionalUpload(w http.ResponseWriter, r *http.Request, field string) (*upload, bool) {
	up, f, err := formFile(r, field)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid "+field)
		return nil, false
	}
	return &upload{doc: up, file: f}, true
}

// formDecimal reads an optional decimal form value; empty means zero.
func formDecimal(w http.ResponseWriter, r *http.Request, field string) (decimal.Decimal, bool) {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return decimal.Zero, true
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid "+field)
		return decimal.Zero, false
	}
	return d, true
}
