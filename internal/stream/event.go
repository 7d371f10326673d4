package stream

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/n0madic/go-zai2api/internal/types"
)

// ErrMalformedEvent is returned for data payloads that are not valid JSON.
var ErrMalformedEvent = errors.New("malformed upstream event")

// errorPaths lists where an upstream frame may carry an error, highest
// precedence first.
var errorPaths = []string{"error", "data.error", "data.inner.error"}

// LocateError returns the first present error object of payload in
// precedence order. Null, false, zero and empty-string values do not count.
func LocateError(payload []byte) (*types.UpstreamError, bool) {
	for _, path := range errorPaths {
		v := gjson.GetBytes(payload, path)
		if !truthy(v) {
			continue
		}
		if v.IsObject() {
			return &types.UpstreamError{Detail: v.Get("detail").String(), Code: v.Get("code").Value()}, true
		}
		return &types.UpstreamError{Detail: v.String()}, true
	}
	return nil, false
}

func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.Number:
		return v.Num != 0
	case gjson.String:
		return v.Str != ""
	}
	return v.Exists()
}

// DecodeEvent parses one data payload. When the frame carries an error the
// event is not decoded and only the error is returned. Fields are read
// leniently: a frame whose done flag or usage has an unexpected type still
// yields its delta content.
func DecodeEvent(payload []byte) (*types.UpstreamEvent, *types.UpstreamError, error) {
	if !gjson.ValidBytes(payload) {
		return nil, nil, ErrMalformedEvent
	}
	root := gjson.ParseBytes(payload)
	if !root.IsObject() {
		return nil, nil, fmt.Errorf("%w: frame is %s", ErrMalformedEvent, root.Type)
	}
	if upErr, ok := LocateError(payload); ok {
		return nil, upErr, nil
	}
	data := root.Get("data")
	evt := &types.UpstreamEvent{
		Type: root.Get("type").String(),
		Data: types.UpstreamData{
			DeltaContent: stringField(data.Get("delta_content")),
			Phase:        stringField(data.Get("phase")),
			Done:         truthy(data.Get("done")),
			Usage:        decodeUsage(data.Get("usage")),
		},
	}
	return evt, nil, nil
}

func stringField(v gjson.Result) string {
	if v.Type != gjson.String {
		return ""
	}
	return v.Str
}

// decodeUsage returns nil unless v is an object. Counters that are not
// numbers read as zero.
func decodeUsage(v gjson.Result) *types.Usage {
	if !v.IsObject() {
		return nil
	}
	return &types.Usage{
		PromptTokens:     int(v.Get("prompt_tokens").Int()),
		CompletionTokens: int(v.Get("completion_tokens").Int()),
		TotalTokens:      int(v.Get("total_tokens").Int()),
	}
}
