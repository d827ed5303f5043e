// Package httpx holds the HTTP plumbing shared by the catalog servers:
// handler wrapping, JSON responses, error bodies and middleware.
package httpx

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

type Response struct {
	StatusCode  int
	Response    any
	ContentType string
}

// RequestHandler handles a request and returns the response to send, or an
// error. An *Error is sent as is; any other error becomes a 500.
type RequestHandler func(r *http.Request) (*Response, error)

func WrapHttpRsp(handler RequestHandler) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rsp, err := handler(r)
		if err != nil {
			if httperror, ok := err.(*Error); ok {
				httperror.Send(w)
			} else {
				LoggerFromContext(r.Context()).Error("request failed", zap.Error(err))
				ErrApplicationError().Send(w)
			}
			return
		}
		if rsp == nil {
			ErrApplicationError().Send(w)
			return
		}
		if rsp.StatusCode == 0 {
			rsp.StatusCode = http.StatusOK
		}
		if rsp.ContentType == "" {
			rsp.ContentType = "application/json"
		}
		switch rsp.ContentType {
		case "application/json":
			SendJsonRsp(r.Context(), w, rsp.StatusCode, rsp.Response)
		default:
			SendRawRsp(r.Context(), w, rsp.StatusCode, rsp.ContentType, rsp.Response)
		}
	})
}

// SendJsonRsp encodes rsp as JSON and writes it with statusCode.
func SendJsonRsp(ctx context.Context, w http.ResponseWriter, statusCode int, rsp any) {
	data, err := json.Marshal(rsp)
	if err != nil {
		LoggerFromContext(ctx).Error("unable to encode response", zap.Error(err))
		ErrApplicationError("Unable to encode response").Send(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(data)
}

// SendRawRsp writes a string or []byte body with the given content type.
func SendRawRsp(ctx context.Context, w http.ResponseWriter, statusCode int, contentType string, rsp any) {
	var body []byte
	switch v := rsp.(type) {
	case []byte:
		body = v
	case string:
		body = []byte(v)
	default:
		LoggerFromContext(ctx).Error("unsupported response body", zap.String("content_type", contentType))
		ErrApplicationError("unsupported response type").Send(w)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(statusCode)
	_, _ = w.Write(body)
}

type ResponseHandlerParam struct {
	Method  string
	Path    string
	Handler RequestHandler
}
