package core

import (
	"fmt"
	"maps"
	"net/url"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// Params holds query or form parameters before encoding.
type Params map[string]any

// Set stores value under key. Nil pointers, empty strings and empty slices
// are skipped so optional request fields can be passed straight through.
func (p Params) Set(key string, value any) Params {
	if _, ok := FormatParam(value); ok {
		p[key] = value
	}
	return p
}

// Values encodes the parameters. url.Values.Encode sorts by key, which keeps
// the encoded body deterministic for signing.
func (p Params) Values() url.Values {
	values := make(url.Values, len(p))
	for k, v := range p {
		if s, ok := FormatParam(v); ok {
			values.Set(k, s)
		}
	}
	return values
}

// Strings returns the parameters as a string map, the shape resty expects
// for query parameters.
func (p Params) Strings() map[string]string {
	out := make(map[string]string, len(p))
	for k, v := range p {
		if s, ok := FormatParam(v); ok {
			out[k] = s
		}
	}
	return out
}

// FormatParam renders a parameter value the way Kraken expects it in a
// query string or form body. It reports false for absent values.
func FormatParam(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, val != ""
	case bool:
		return strconv.FormatBool(val), true
	case int:
		return strconv.Itoa(val), true
	case int32:
		return strconv.FormatInt(int64(val), 10), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case uint64:
		return strconv.FormatUint(val, 10), true
	case *int64:
		if val == nil {
			return "", false
		}
		return strconv.FormatInt(*val, 10), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case apd.Decimal:
		return val.Text('f'), true
	case *apd.Decimal:
		if val == nil {
			return "", false
		}
		return val.Text('f'), true
	case []string:
		return strings.Join(val, ","), len(val) > 0
	case fmt.Stringer:
		s := val.String()
		return s, s != ""
	default:
		return fmt.Sprint(val), true
	}
}

// Request describes a single REST call before signing.
type Request struct {
	Operation Operation         `json:"operation"`
	Query     Params            `json:"query,omitempty"`
	Form      Params            `json:"form,omitempty"`
	Body      any               `json:"body,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// NewRequest creates a request for the given endpoint.
func NewRequest(op Operation) *Request {
	return &Request{
		Operation: op,
		Query:     make(Params),
		Form:      make(Params),
		Headers:   make(map[string]string),
	}
}

// Path returns the endpoint path.
func (r *Request) Path() string {
	return r.Operation.Path()
}

func (r *Request) SetQuery(key string, value any) *Request {
	if r.Query == nil {
		r.Query = make(Params)
	}
	r.Query.Set(key, value)
	return r
}

func (r *Request) SetForm(key string, value any) *Request {
	if r.Form == nil {
		r.Form = make(Params)
	}
	r.Form.Set(key, value)
	return r
}

// SetBody sets a JSON body. A request with a body is sent as JSON and its
// form parameters are ignored.
func (r *Request) SetBody(body any) *Request {
	r.Body = body
	return r
}

func (r *Request) SetHeader(key, value string) *Request {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[key] = value
	return r
}

func (r *Request) SetQueryParams(params Params) *Request {
	if r.Query == nil {
		r.Query = make(Params)
	}
	maps.Copy(r.Query, params)
	return r
}

func (r *Request) SetFormParams(params Params) *Request {
	if r.Form == nil {
		r.Form = make(Params)
	}
	maps.Copy(r.Form, params)
	return r
}
