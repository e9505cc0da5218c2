package protocol

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Encode marshals a payload into an envelope of the given type.
func Encode(t string, payload any) ([]byte, error) {
	if t == "" {
		return nil, errors.New("protocol: empty envelope type")
	}
	pb, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "protocol: marshal payload for %q", t)
	}
	return json.Marshal(Envelope{T: t, P: pb})
}

// DecodeEnvelope parses the outer envelope without touching the payload.
func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, errors.New("protocol: empty message")
	}
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, errors.Wrap(err, "protocol: decode envelope")
	}
	return e, nil
}

// DecodePayload unmarshals an envelope's payload into the requested type.
func DecodePayload[T any](env Envelope) (T, error) {
	var out T
	if len(env.P) == 0 {
		return out, errors.Errorf("protocol: empty payload for type %q", env.T)
	}
	err := json.Unmarshal(env.P, &out)
	return out, errors.Wrapf(err, "protocol: decode payload for %q", env.T)
}
