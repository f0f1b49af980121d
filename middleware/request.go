package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/MrEthical07/magiccode"
	"github.com/go-chi/chi/v5"
)

// MaxBodyBytes caps the request body read by RequestFromHTTP.
const MaxBodyBytes = 1 << 20

// ErrInvalidBody is returned when the request body cannot be decoded into an object.
var ErrInvalidBody = errors.New("invalid request body")

// RequestFromHTTP builds a magiccode.Request for action from r. JSON bodies are
// decoded with json.Number so numeric identities compare exactly; form bodies
// and the query string contribute their first value per key.
func RequestFromHTTP(r *http.Request, action magiccode.Action) (magiccode.Request, error) {
	req := magiccode.Request{
		Options: magiccode.Options{Action: action},
		Query:   valuesSource(r.URL.Query()),
		Params:  paramsSource(r),
	}

	body, err := bodySource(r)
	if err != nil {
		return magiccode.Request{}, err
	}
	req.Body = body

	return req, nil
}

func bodySource(r *http.Request) (magiccode.Source, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, MaxBodyBytes))
		dec.UseNumber()

		var src magiccode.Source
		if err := dec.Decode(&src); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, nil
			}
			return nil, ErrInvalidBody
		}
		return src, nil
	case "application/x-www-form-urlencoded":
		r.Body = http.MaxBytesReader(nil, r.Body, MaxBodyBytes)
		if err := r.ParseForm(); err != nil {
			return nil, ErrInvalidBody
		}
		return valuesSource(r.PostForm), nil
	case "multipart/form-data":
		if err := r.ParseMultipartForm(MaxBodyBytes); err != nil {
			return nil, ErrInvalidBody
		}
		return valuesSource(r.MultipartForm.Value), nil
	default:
		return nil, nil
	}
}

func valuesSource(values url.Values) magiccode.Source {
	if len(values) == 0 {
		return nil
	}
	src := make(magiccode.Source, len(values))
	for k, v := range values {
		if len(v) == 0 {
			continue
		}
		src[k] = v[0]
	}
	return src
}

func paramsSource(r *http.Request) magiccode.Source {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || len(rctx.URLParams.Keys) == 0 {
		return nil
	}
	src := make(magiccode.Source, len(rctx.URLParams.Keys))
	for i, k := range rctx.URLParams.Keys {
		if i < len(rctx.URLParams.Values) {
			src[k] = rctx.URLParams.Values[i]
		}
	}
	return src
}
