// Package keyring manages the account's key material: the long-term
// identity pair, the current signed prekey, and the one-time prekey
// pool. Everything is persisted through the Secret Store; the package
// assembles the public bundle uploaded to the Directory Service and
// consumes one-time prekeys destructively when sessions arrive.
package keyring
