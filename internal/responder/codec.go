package responder

import (
	"encoding/json"

	"request_pipeline/internal/cache"
	"request_pipeline/internal/web"
)

// Codecs returns the cache codecs for the result types the built-in
// responders switch on. A controller-mode cache hit decodes back to the
// same Go type, so it renders like a fresh result.
func Codecs() []cache.Codec {
	return []cache.Codec{PayloadCodec{}, TableCodec{}, ErrorCodec{}, BytesCodec{}}
}

type payloadRecord struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// PayloadCodec stores a *Payload as its status and JSON body.
type PayloadCodec struct{}

func (PayloadCodec) Kind() string { return "json.payload" }

func (PayloadCodec) Encode(result any) ([]byte, bool, error) {
	p, ok := result.(*Payload)
	if !ok || p == nil {
		return nil, false, nil
	}
	body, err := json.Marshal(p.Body)
	if err != nil {
		return nil, true, err
	}
	raw, err := json.Marshal(payloadRecord{Status: p.Status, Body: body})
	return raw, true, err
}

func (PayloadCodec) Decode(raw []byte) (any, error) {
	var rec payloadRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	var body any
	if len(rec.Body) > 0 {
		if err := json.Unmarshal(rec.Body, &body); err != nil {
			return nil, err
		}
	}
	return NewPayload(body, rec.Status), nil
}

// TableCodec stores a Table or *Table.
type TableCodec struct{}

func (TableCodec) Kind() string { return "xlsx.table" }

func (TableCodec) Encode(result any) ([]byte, bool, error) {
	var t *Table
	switch v := result.(type) {
	case *Table:
		t = v
	case Table:
		t = &v
	}
	if t == nil {
		return nil, false, nil
	}
	raw, err := json.Marshal(t)
	return raw, true, err
}

func (TableCodec) Decode(raw []byte) (any, error) {
	var t Table
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

type errorRecord struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Expose  bool   `json:"expose,omitempty"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// ErrorCodec stores a *web.Error returned as a result. The wrapped cause
// is not kept.
type ErrorCodec struct{}

func (ErrorCodec) Kind() string { return "web.error" }

func (ErrorCodec) Encode(result any) ([]byte, bool, error) {
	e, ok := result.(*web.Error)
	if !ok || e == nil {
		return nil, false, nil
	}
	raw, err := json.Marshal(errorRecord{
		Status:  e.Status,
		Message: e.Message,
		Expose:  e.Expose,
		Code:    e.Code,
		Details: e.Details,
	})
	return raw, true, err
}

func (ErrorCodec) Decode(raw []byte) (any, error) {
	var rec errorRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &web.Error{
		Status:  rec.Status,
		Message: rec.Message,
		Expose:  rec.Expose,
		Code:    rec.Code,
		Details: rec.Details,
	}, nil
}

// BytesCodec keeps []byte results as raw bytes instead of a base64 string.
type BytesCodec struct{}

func (BytesCodec) Kind() string { return "bytes" }

func (BytesCodec) Encode(result any) ([]byte, bool, error) {
	b, ok := result.([]byte)
	if !ok {
		return nil, false, nil
	}
	return b, true, nil
}

func (BytesCodec) Decode(raw []byte) (any, error) {
	return append([]byte(nil), raw...), nil
}
