package types

// AccountKeys is the full key material of an account: the public address
// plus the two secret scalars behind it.
type AccountKeys struct {
	Address        AccountAddress `json:"address"`
	SpendSecretKey SecretKey      `json:"spend_secret_key"`
	ViewSecretKey  SecretKey      `json:"view_secret_key"`
}
