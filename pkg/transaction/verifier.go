package transaction

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/marketsettle/pkg/crypto"
)

// ErrUnauthenticated is returned when a request's caller authorization does not verify
var ErrUnauthenticated = errors.New("caller authorization invalid")

// Verifier checks that the caller of a request signed an Authorization for it
type Verifier struct {
	encoder *crypto.Encoder
}

// NewVerifier creates a new request verifier
func NewVerifier(encoder *crypto.Encoder) *Verifier {
	return &Verifier{encoder: encoder}
}

// Authenticate verifies auth against the action/subject the server derived from
// the request body and returns the caller address.
func (v *Verifier) Authenticate(action crypto.Action, subject common.Hash, instanceID, value *big.Int, auth AuthPayload) (common.Address, error) {
	caller, err := crypto.ParseAddress(auth.Caller)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: caller: %v", ErrUnauthenticated, err)
	}

	sigBytes, err := DecodeSignature(auth.Signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	digest, err := v.encoder.HashAuthorization(&crypto.Authorization{
		Action:     action,
		Subject:    subject,
		Caller:     caller,
		InstanceID: instanceID,
		Value:      value,
	})
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	if !crypto.Verify(digest, sigBytes, caller) {
		return common.Address{}, fmt.Errorf("%w: signature does not match %s", ErrUnauthenticated, caller.Hex())
	}
	return caller, nil
}

// Authorize builds the AuthPayload a client attaches to a request
func (v *Verifier) Authorize(signer *crypto.Signer, action crypto.Action, subject common.Hash, instanceID, value *big.Int) (AuthPayload, error) {
	sig, err := v.encoder.SignAuthorization(signer, &crypto.Authorization{
		Action:     action,
		Subject:    subject,
		Caller:     signer.Address(),
		InstanceID: instanceID,
		Value:      value,
	})
	if err != nil {
		return AuthPayload{}, err
	}
	return AuthPayload{Caller: signer.Address().Hex(), Signature: EncodeSignature(sig)}, nil
}
