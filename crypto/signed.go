package crypto

import (
	"encoding/json"
	"errors"
)

// Signed authenticates a caller-facing request.
// The signature covers the serialized object plus the public key to prevent
// signer substitution. The recovered address is the caller's identity for
// authorization checks; claimed fields inside the object are never trusted.
type Signed[T any] struct {
	PublicKey PublicKey `json:"public_key"`
	Signature Signature `json:"signature"`
	Object    *T        `json:"object"`
}

// NewSigned creates a signed request envelope.
func NewSigned[T any](privkey PrivateKey, obj *T) (*Signed[T], error) {
	pubkey, err := privkey.PublicKey()
	if err != nil {
		return nil, err
	}

	serialized, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}

	signature, err := Sign(privkey, append(serialized, pubkey...))
	if err != nil {
		return nil, err
	}

	return &Signed[T]{
		PublicKey: pubkey,
		Signature: signature,
		Object:    obj,
	}, nil
}

// UnsafeObject returns the object without signature verification.
func (s *Signed[T]) UnsafeObject() *T {
	return s.Object
}

// Recover verifies the signature and returns the object and the signer's
// address.
func (s *Signed[T]) Recover() (*T, Address, error) {
	serialized, err := json.Marshal(s.Object)
	if err != nil {
		return nil, Address{}, err
	}

	if !s.Signature.Verify(s.PublicKey, append(serialized, s.PublicKey...)) {
		return nil, Address{}, errors.New("signature not valid")
	}

	return s.Object, s.PublicKey.Address(), nil
}
