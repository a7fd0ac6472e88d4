package responder

// Response is the JSON envelope for every non-image response.
// Detail mirrors Error.Message so clients that only read "detail" keep working.
type Response struct {
	Data   any    `json:"data,omitempty"`
	Detail string `json:"detail,omitempty"`
	Error  *Error `json:"error,omitempty"`
	Meta   Meta   `json:"meta"`
}

// Error represents the error structure in API responses
type Error struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Meta represents metadata in API responses
type Meta struct {
	TraceId string `json:"traceId,omitempty"`
	Took    int64  `json:"took,omitempty"`
}

type Option func(*Meta)

func WithTraceID(id string) Option {
	return func(m *Meta) {
		m.TraceId = id
	}
}

// WithTook records the handling time in milliseconds.
func WithTook(ms int64) Option {
	return func(m *Meta) {
		m.Took = ms
	}
}

func NewMeta(opts ...Option) Meta {
	meta := Meta{}
	for _, opt := range opts {
		opt(&meta)
	}
	return meta
}
