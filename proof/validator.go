package proof

import (
	"errors"
	"fmt"

	"proof-leaderboard/models"
)

// Positions in a proof's public input. The order is fixed by the circuit.
const (
	idxSigNullifier                  = 0
	idxPubkeyNullifier               = 1
	idxPubkeyNullifierRandomnessHash = 2
	idxSignerPubKeyX                 = 8
	idxSignerPubKeyY                 = 9
)

var (
	// ErrMalformedPublicInput means a required public input field is missing
	ErrMalformedPublicInput = errors.New("malformed public input")
	// ErrUnauthorizedSigner means the proof was not made over the authorized signer key
	ErrUnauthorizedSigner = errors.New("public input signer key mismatch")
)

// SignerKey is the authorized signer public key, in decimal
type SignerKey struct {
	X string
	Y string
}

// Validator checks completed job results. It holds no state beyond the key.
type Validator struct {
	key SignerKey
}

func NewValidator(key SignerKey) *Validator {
	return &Validator{key: key}
}

func field(input []string, i int) string {
	if i < len(input) {
		return input[i]
	}
	return ""
}

// Validate extracts the nullifier fields from a public input. Any error
// means the result should be dropped and the job left pending.
func (v *Validator) Validate(publicInput []string) (models.ProofFields, error) {
	fields := models.ProofFields{
		SigNullifier:                  field(publicInput, idxSigNullifier),
		PubkeyNullifier:               field(publicInput, idxPubkeyNullifier),
		PubkeyNullifierRandomnessHash: field(publicInput, idxPubkeyNullifierRandomnessHash),
	}
	x := field(publicInput, idxSignerPubKeyX)
	y := field(publicInput, idxSignerPubKeyY)

	if fields.SigNullifier == "" || fields.PubkeyNullifier == "" || fields.PubkeyNullifierRandomnessHash == "" || x == "" || y == "" {
		return models.ProofFields{}, fmt.Errorf("%w: %d values", ErrMalformedPublicInput, len(publicInput))
	}
	if x != v.key.X || y != v.key.Y {
		return models.ProofFields{}, ErrUnauthorizedSigner
	}
	return fields, nil
}
