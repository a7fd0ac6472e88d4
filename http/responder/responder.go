package responder

import (
	"errors"
	"net/http"
	"strconv"

	apperrors "github.com/leeforge/mapcrop/errors"
	"github.com/leeforge/mapcrop/json"
)

const (
	ContentTypeJSON = "application/json"
	ContentTypePNG  = "image/png"
)

var encodeFailed = []byte(`{"detail":"encode failed","error":{"type":"internal","code":"INTERNAL_ERROR","message":"encode failed"}}`)

// WriteFailFn is called when the response body cannot be produced or sent.
type WriteFailFn func(http.ResponseWriter, *http.Request, error)

// Responder writes responses for a single request.
type Responder struct {
	w      http.ResponseWriter
	r      *http.Request
	onFail WriteFailFn
}

// New creates a Responder. A nil onFail ignores write failures.
func New(w http.ResponseWriter, r *http.Request, onFail WriteFailFn) *Responder {
	if onFail == nil {
		onFail = func(http.ResponseWriter, *http.Request, error) {}
	}
	return &Responder{w: w, r: r, onFail: onFail}
}

func (r *Responder) writeRaw(status int, payload []byte, contentType string) error {
	r.w.Header().Set("Content-Type", contentType)
	r.w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
	r.w.WriteHeader(status)
	_, err := r.w.Write(payload)
	return err
}

func (r *Responder) send(status int, payload []byte, contentType string) {
	if err := r.writeRaw(status, payload, contentType); err != nil {
		r.onFail(r.w, r.r, err)
	}
}

func (r *Responder) writeJSON(status int, payload *Response) {
	r.JSON(status, payload)
}

// JSON sends v as the whole body, with no envelope.
func (r *Responder) JSON(status int, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		werr := r.writeRaw(http.StatusInternalServerError, encodeFailed, ContentTypeJSON)
		r.onFail(r.w, r.r, errors.Join(err, werr))
		return
	}
	r.send(status, raw, ContentTypeJSON)
}

// Write sends a success envelope with data.
func (r *Responder) Write(status int, data any, opts ...Option) {
	r.writeJSON(status, &Response{
		Data: data,
		Meta: NewMeta(opts...),
	})
}

// OK responds with 200 OK and data.
func (r *Responder) OK(data any, opts ...Option) {
	r.Write(http.StatusOK, data, opts...)
}

// WriteError sends an error envelope.
func (r *Responder) WriteError(status int, err Error, opts ...Option) {
	r.writeJSON(status, &Response{
		Detail: err.Message,
		Error:  &err,
		Meta:   NewMeta(opts...),
	})
}

// Fail maps any error onto its HTTP status and writes the error envelope.
func (r *Responder) Fail(err error, opts ...Option) {
	appErr := apperrors.FromError(err)
	payload := Error{
		Type:    string(appErr.Type),
		Code:    appErr.Code,
		Message: appErr.Message,
	}
	if len(appErr.Details) > 0 {
		payload.Details = appErr.Details
	}
	r.WriteError(apperrors.HTTPStatus(appErr), payload, opts...)
}

// ValidationError responds with 422 and per-field details.
func (r *Responder) ValidationError(details any, opts ...Option) {
	r.WriteError(http.StatusUnprocessableEntity, Error{
		Type:    string(apperrors.ErrorTypeValidation),
		Code:    apperrors.CodeValidationFailed,
		Message: "Invalid query parameters",
		Details: details,
	}, opts...)
}

// Image writes raw image bytes with no envelope.
func (r *Responder) Image(contentType string, payload []byte) {
	r.send(http.StatusOK, payload, contentType)
}

// PNG writes PNG bytes with status 200.
func (r *Responder) PNG(payload []byte) {
	r.Image(ContentTypePNG, payload)
}
