package server

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

const (
	identityHeader  = "X-Savefi-Identity"
	signatureHeader = "X-Savefi-Signature"

	// maxBodyBytes caps request bodies. Every request body here is a small
	// JSON document.
	maxBodyBytes = 64 << 10
)

type contextKey string

const identityContextKey contextKey = "savefi-identity"

// Identity returns the authenticated caller identity stored by the auth
// middleware.
func Identity(ctx context.Context) (solana.PublicKey, bool) {
	pk, ok := ctx.Value(identityContextKey).(solana.PublicKey)
	return pk, ok
}

// authMiddleware authenticates requests with a wallet signature: the
// identity header carries a base58 ed25519 public key and the signature
// header a base64 ed25519 signature over the raw request body. The verified
// identity becomes the protocol caller, so a client can only act on its own
// accounts.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := r.Header.Get(identityHeader)
		if identity == "" {
			s.writeErrorCode(w, http.StatusUnauthorized, "missing_identity", "identity header is required")
			return
		}

		publicKeyBytes, err := base58.Decode(identity)
		if err != nil || len(publicKeyBytes) != ed25519.PublicKeySize {
			s.writeErrorCode(w, http.StatusUnauthorized, "invalid_identity", "identity must be a base58 ed25519 public key")
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			s.writeErrorCode(w, http.StatusBadRequest, "invalid_body", "failed to read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		if !s.cfg.AuthDisabled {
			signatureBytes, err := decodeSignature(r.Header.Get(signatureHeader))
			if err != nil {
				s.writeErrorCode(w, http.StatusUnauthorized, "invalid_signature", err.Error())
				return
			}
			if !ed25519.Verify(ed25519.PublicKey(publicKeyBytes), body, signatureBytes) {
				s.writeErrorCode(w, http.StatusUnauthorized, "invalid_signature", "signature does not match body")
				return
			}
		}

		caller := solana.PublicKeyFromBytes(publicKeyBytes)
		ctx := context.WithValue(r.Context(), identityContextKey, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func decodeSignature(signature string) ([]byte, error) {
	if signature == "" {
		return nil, fmt.Errorf("signature header is required")
	}

	signatureBytes, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		signatureBytes, err = base64.RawStdEncoding.DecodeString(signature)
		if err != nil {
			return nil, fmt.Errorf("failed to decode signature: %w", err)
		}
	}
	if len(signatureBytes) != ed25519.SignatureSize {
		return nil, fmt.Errorf("invalid signature size: expected %d, got %d", ed25519.SignatureSize, len(signatureBytes))
	}
	return signatureBytes, nil
}
