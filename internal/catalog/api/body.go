package api

import (
	"io"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/kiplm/kiplm/internal/httpx"
)

// maxBodySize bounds request bodies; a part record is a handful of short fields.
const maxBodySize = 1 << 20

// readFields parses a JSON object body into column -> value strings.
//
// Strings are taken verbatim, numbers and booleans as their literal text and
// null as "". Nested objects and arrays keep their raw JSON.
func readFields(r *http.Request) (map[string]string, error) {
	if r.Body == nil {
		return nil, httpx.ErrUnableToParseReqData()
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil || len(data) > maxBodySize {
		return nil, httpx.ErrUnableToParseReqData()
	}
	if !gjson.ValidBytes(data) {
		return nil, httpx.ErrUnableToParseReqData()
	}

	result := gjson.ParseBytes(data)
	if !result.IsObject() {
		return nil, httpx.ErrInvalidRequest("Request body must be a JSON object")
	}

	fields := make(map[string]string)
	result.ForEach(func(key, value gjson.Result) bool {
		fields[key.String()] = fieldValue(value)
		return true
	})
	return fields, nil
}

func fieldValue(v gjson.Result) string {
	switch v.Type {
	case gjson.Null:
		return ""
	case gjson.String:
		return v.Str
	default:
		return v.Raw
	}
}
