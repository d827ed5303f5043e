package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
)

type Error struct {
	Description string `json:"description"`
	StatusCode  int    `json:"http_status_code"`
}

type errorRsp struct {
	Result int    `json:"result"`
	Error  string `json:"error"`
}

const Failure int = 0

func (e *Error) Send(w http.ResponseWriter) {
	if w == nil {
		return
	}
	rspJson, err := json.Marshal(&errorRsp{
		Result: Failure,
		Error:  e.Description,
	})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Unable to encode error"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	_, _ = w.Write(rspJson)
}

func (e *Error) Error() string {
	return e.Description
}

// Common Errors

func ErrUnableToParseReqData() *Error {
	return &Error{
		Description: "Unable to parse request",
		StatusCode:  http.StatusBadRequest,
	}
}

func ErrApplicationError(err ...string) *Error {
	s := "Unable to process request"
	if len(err) > 0 {
		s = err[0]
	}
	return &Error{
		Description: s,
		StatusCode:  http.StatusInternalServerError,
	}
}

func ErrInvalidRequest(format string, args ...any) *Error {
	return &Error{
		Description: fmt.Sprintf(format, args...),
		StatusCode:  http.StatusBadRequest,
	}
}

func ErrNotFound(format string, args ...any) *Error {
	return &Error{
		Description: fmt.Sprintf(format, args...),
		StatusCode:  http.StatusNotFound,
	}
}

func ErrConflict(format string, args ...any) *Error {
	return &Error{
		Description: fmt.Sprintf(format, args...),
		StatusCode:  http.StatusConflict,
	}
}
