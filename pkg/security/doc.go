/*
Package security seals secret and account data at rest.

Secrets and account pools are stored in bbolt with their key-value data
encrypted by AES-256-GCM. The key is derived from the server password
(secret_key in the configuration, or TRAIN_SECRET_KEY) with SHA-256; the
nonce is prepended to every sealed value.

	sm, err := security.NewSecretsManagerFromPassword(password)
	secret, err := sm.NewSecret("pivnet", map[string]string{"token": "abc"})
	data, err := sm.SecretData(secret)

Changing the password makes previously stored secrets unreadable. There is
no key rotation.
*/
package security
