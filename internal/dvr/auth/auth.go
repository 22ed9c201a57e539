// Package auth implements the DVR's challenge/response login: obtain a
// server nonce, compute the device's credential hash, submit the login.
// The hash function itself is treated as an opaque, pluggable oracle since
// the firmware never documents it.
package auth

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"github.com/alxayo/go-dvr/internal/dvrerrors"
)

// HashFunc computes the credential digest the device expects in the
// LoginFlag attribute of UserLogin, given the server nonce, username and
// password. Swap this out if a captured firmware trace shows a different
// digest.
type HashFunc func(nonce, username, password string) (string, error)

// DefaultHashFunc reproduces the HiEasy firmware's observed challenge
// digest: MD5(nonce + ":" + username + ":" + MD5(password)), uppercase
// hex. This is a best-effort reproduction against field captures, not a
// documented algorithm — callers with a different firmware revision
// should supply their own HashFunc (session.Config.HashFunc, or the
// hashFunc argument of config.Dial).
func DefaultHashFunc(nonce, username, password string) (string, error) {
	if nonce == "" || username == "" {
		return "", dvrerrors.NewAuthError("auth.compute_hash", nil)
	}
	pwdSum := md5.Sum([]byte(password))
	pwdHex := hex.EncodeToString(pwdSum[:])
	combined := strings.Join([]string{nonce, username, pwdHex}, ":")
	sum := md5.Sum([]byte(combined))
	return strings.ToUpper(hex.EncodeToString(sum[:])), nil
}

// ComputeHash is the single call site referenced by the session controller.
// It delegates to fn, falling back to DefaultHashFunc when fn is nil.
func ComputeHash(fn HashFunc, nonce, username, password string) (string, error) {
	if fn == nil {
		fn = DefaultHashFunc
	}
	hash, err := fn(nonce, username, password)
	if err != nil {
		return "", err
	}
	if hash == "" {
		return "", dvrerrors.NewAuthError("auth.compute_hash", nil)
	}
	return hash, nil
}
