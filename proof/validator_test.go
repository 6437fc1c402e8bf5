package proof

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proof-leaderboard/models"
)

var testKey = SignerKey{X: "111", Y: "222"}

func publicInput(sig, pub, rnd string, key SignerKey) []string {
	in := make([]string, 10)
	in[0], in[1], in[2] = sig, pub, rnd
	for i := 3; i < 8; i++ {
		in[i] = "0"
	}
	in[8], in[9] = key.X, key.Y
	return in
}

func TestValidate_Accepts(t *testing.T) {
	fields, err := NewValidator(testKey).Validate(publicInput("S1", "P1", "R1", testKey))
	require.NoError(t, err)
	assert.Equal(t, models.ProofFields{SigNullifier: "S1", PubkeyNullifier: "P1", PubkeyNullifierRandomnessHash: "R1"}, fields)
}

func TestValidate_Rejects(t *testing.T) {
	v := NewValidator(testKey)
	valid := publicInput("S1", "P1", "R1", testKey)

	cases := map[string]struct {
		input []string
		want  error
	}{
		"missing index 9":  {valid[:9], ErrMalformedPublicInput},
		"empty sig":        {publicInput("", "P1", "R1", testKey), ErrMalformedPublicInput},
		"empty pubkey":     {publicInput("S1", "", "R1", testKey), ErrMalformedPublicInput},
		"empty randomness": {publicInput("S1", "P1", "", testKey), ErrMalformedPublicInput},
		"nil":              {nil, ErrMalformedPublicInput},
		"wrong x":          {publicInput("S1", "P1", "R1", SignerKey{X: "112", Y: "222"}), ErrUnauthorizedSigner},
		"wrong y":          {publicInput("S1", "P1", "R1", SignerKey{X: "111", Y: "223"}), ErrUnauthorizedSigner},
		"hex form of key":  {publicInput("S1", "P1", "R1", SignerKey{X: "0x6f", Y: "0xde"}), ErrUnauthorizedSigner},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Validate(tc.input)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}
