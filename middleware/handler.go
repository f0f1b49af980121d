package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/MrEthical07/magiccode"
)

type resultContextKey struct{}

// ResultFromContext returns the verification result stored by Callback.
func ResultFromContext(ctx context.Context) (*magiccode.Result, bool) {
	res, ok := ctx.Value(resultContextKey{}).(*magiccode.Result)
	return res, ok
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type messageBody struct {
	Message string `json:"message"`
	Receipt string `json:"receipt,omitempty"`
}

// Handler runs action for every request. An issued code answers 202; a verified
// code is passed to next with the result in the request context, or answers 200
// when next is nil. Failures are rendered as {"error", "message"} with the
// engine's suggested status; a verification hook error that is not a
// *magiccode.Error answers 401.
func Handler(engine *magiccode.Engine, action magiccode.Action, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Engine not ready", Message: "The authentication engine is not configured."})
			return
		}

		req, err := RequestFromHTTP(r, action)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid body", Message: err.Error()})
			return
		}

		ctx := requestContext(r)
		res, err := engine.Authenticate(ctx, req)
		if err != nil {
			writeError(w, err)
			return
		}

		if res.Outcome == magiccode.OutcomePass {
			writeJSON(w, http.StatusAccepted, messageBody{Message: res.Message(), Receipt: res.Receipt})
			return
		}
		if next == nil {
			writeJSON(w, http.StatusOK, messageBody{Message: res.Message()})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, resultContextKey{}, res)))
	})
}

// Login issues a login code for the request body.
func Login(engine *magiccode.Engine) http.Handler {
	return Handler(engine, magiccode.ActionLogin, nil)
}

// Register issues a registration code and stores the full request body.
func Register(engine *magiccode.Engine) http.Handler {
	return Handler(engine, magiccode.ActionRegister, nil)
}

// Callback verifies a code and forwards to next on success.
func Callback(engine *magiccode.Engine, next http.Handler) http.Handler {
	return Handler(engine, magiccode.ActionCallback, next)
}

func requestContext(r *http.Request) context.Context {
	ctx := r.Context()
	if ip := clientIP(r); ip != "" {
		ctx = magiccode.WithClientIP(ctx, ip)
	}
	if ua := r.UserAgent(); ua != "" {
		ctx = magiccode.WithUserAgent(ctx, ua)
	}
	return ctx
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeError(w http.ResponseWriter, err error) {
	var e *magiccode.Error
	if !errors.As(err, &e) {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized", Message: err.Error()})
		return
	}
	writeJSON(w, e.StatusCode(), errorBody{Error: e.Code, Message: e.Message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
