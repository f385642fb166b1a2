package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/emicklei/go-restful/v3"
	"github.com/rs/zerolog/log"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Details string `json:"details,omitempty"`
}

// HandleError writes err as an ErrorResponse with the given status.
func HandleError(resp *restful.Response, err error, status int) {
	HandleErrorWithDetails(resp, err.Error(), "", status)
}

func HandleErrorWithDetails(resp *restful.Response, message, details string, status int) {
	if status >= http.StatusInternalServerError {
		log.Error().Int("status", status).Str("error", message).Str("details", details).Msg("Request failed")
	}
	_ = resp.WriteHeaderAndEntity(status, ErrorResponse{
		Error:   message,
		Code:    status,
		Details: details,
	})
}

// Logger logs one line per request once the chain has run.
func Logger(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	start := time.Now()
	chain.ProcessFilter(req, resp)

	log.Info().
		Str("method", req.Request.Method).
		Str("path", req.Request.URL.Path).
		Int("status", resp.StatusCode()).
		Dur("duration", time.Since(start)).
		Msg("Request handled")
}

// RecoverPanic turns a handler panic into a 500 response.
func RecoverPanic(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Str("panic", fmt.Sprintf("%v", rec)).
				Str("stack", string(debug.Stack())).
				Str("path", req.Request.URL.Path).
				Msg("Recovered from panic")
			HandleErrorWithDetails(resp, "internal server error", "", http.StatusInternalServerError)
		}
	}()
	chain.ProcessFilter(req, resp)
}
