package proxy

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/n0madic/go-zai2api/internal/codec"
)

// maxBodyBytes limits the size of incoming request bodies to prevent memory exhaustion.
const maxBodyBytes = 10 * 1024 * 1024 // 10 MB

var streamFieldMarker = []byte(`"stream"`)

func readLimitedRequestBody(w http.ResponseWriter, r *http.Request, readErrMsg string) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		codec.WriteOpenAIError(w, http.StatusBadRequest, readErrMsg)
		return nil, false
	}
	return body, true
}

func decodeJSONBody(w http.ResponseWriter, body []byte, dst any, invalidJSONMsg string) bool {
	if err := json.Unmarshal(body, dst); err != nil {
		codec.WriteOpenAIError(w, http.StatusBadRequest, invalidJSONMsg)
		return false
	}
	return true
}

// mentionsStream reports whether the raw body contains the literal "stream"
// key. Clients that never mention it get the configured default.
func mentionsStream(body []byte) bool {
	return bytes.Contains(body, streamFieldMarker)
}
