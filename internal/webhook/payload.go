package webhook

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// DecodePayload decodes a webhook body into a generic JSON value. Numbers
// are kept as json.Number so re-encoding is lossless. An undecodable body
// yields nil.
func DecodePayload(body []byte) any {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return v
}

// PayloadHash hashes the canonical encoding of the payload. Map keys are
// sorted by encoding/json, so key order in the original body does not
// change the hash. When the body is not JSON the raw bytes are hashed.
func PayloadHash(payload any, body []byte) string {
	data := body
	if payload != nil {
		if canonical, err := json.Marshal(payload); err == nil {
			data = canonical
		}
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
