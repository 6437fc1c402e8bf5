package models

// ProofJob tracks one proof submitted to the external proving service.
// Once JobCompleted is set the nullifier fields are filled and never change.
type ProofJob struct {
	JobID                         string `json:"job_id"`
	Username                      string `json:"username"`
	JobCompleted                  bool   `json:"job_completed"`
	SigNullifier                  string `json:"sig_nullifier,omitempty"`
	PubkeyNullifier               string `json:"pubkey_nullifier,omitempty"`
	PubkeyNullifierRandomnessHash string `json:"pubkey_nullifier_randomness_hash,omitempty"`
	CreatedAt                     int64  `json:"created_at"`             // unix timestamp in ms
	CompletedAt                   int64  `json:"completed_at,omitempty"` // unix timestamp in ms
}

// ProofFields are the values extracted from a validated public input
type ProofFields struct {
	SigNullifier                  string `json:"sig_nullifier"`
	PubkeyNullifier               string `json:"pubkey_nullifier"`
	PubkeyNullifierRandomnessHash string `json:"pubkey_nullifier_randomness_hash"`
}
