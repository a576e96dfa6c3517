package signing

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNonces struct{ seen map[string]bool }

func newFakeNonces() *fakeNonces { return &fakeNonces{seen: map[string]bool{}} }

func (f *fakeNonces) Claim(eventID, nonce string) bool {
	key := eventID + ":" + nonce
	if f.seen[key] {
		return false
	}
	f.seen[key] = true
	return true
}

func verifierAt(t int64, nonces NonceClaimer) *Verifier {
	return NewVerifier("s", 60, nonces, func() int64 { return t })
}

func TestSignThenVerify_Succeeds(t *testing.T) {
	v := verifierAt(1000, newFakeNonces())
	req := Request{
		Op:          OpRegisterPC,
		Path:        "/e/e1/register-pc",
		PayloadHash: HashPayload([]byte(`{"pcid":"pc1"}`)),
		Iat:         1000,
		Nonce:       "n1",
	}
	req.Sig = v.Sign(req)

	err := v.Verify("e1", req)
	assert.Nil(t, err)
}

func TestVerify_MutatedFieldInvalidatesSignature(t *testing.T) {
	v := verifierAt(1000, newFakeNonces())
	req := Request{
		Op:          OpRegisterPC,
		Path:        "/e/e1/register-pc",
		PayloadHash: HashPayload([]byte(`{"pcid":"pc1"}`)),
		Iat:         1000,
		Nonce:       "n1",
	}
	req.Sig = v.Sign(req)

	req.PayloadHash = HashPayload([]byte(`{"pcid":"pc2"}`))
	err := v.Verify("e1", req)
	require.NotNil(t, err)
	assert.Equal(t, KindBadSignature, err.Kind)
}

func TestVerify_NonceReplayRejectedSecondTime(t *testing.T) {
	nonces := newFakeNonces()
	v := verifierAt(1000, nonces)
	req := Request{
		Op:          OpRegisterPC,
		Path:        "/e/e1/register-pc",
		PayloadHash: HashPayload(nil),
		Iat:         1000,
		Nonce:       "n1",
	}
	req.Sig = v.Sign(req)

	require.Nil(t, v.Verify("e1", req))
	err := v.Verify("e1", req)
	require.NotNil(t, err)
	assert.Equal(t, KindNonceReplay, err.Kind)
}

func TestVerify_ClockSkewBoundary(t *testing.T) {
	nonces := newFakeNonces()

	// exactly 60s is accepted
	v := verifierAt(1060, nonces)
	req := Request{Op: OpRegisterPC, Path: "/e/e1/register-pc", PayloadHash: HashPayload(nil), Iat: 1000, Nonce: "a"}
	req.Sig = v.Sign(req)
	assert.Nil(t, v.Verify("e1", req))

	// 61s is rejected with CLOCK_SKEW and a server time
	v2 := verifierAt(1061, newFakeNonces())
	req2 := Request{Op: OpRegisterPC, Path: "/e/e1/register-pc", PayloadHash: HashPayload(nil), Iat: 1000, Nonce: "b"}
	req2.Sig = v2.Sign(req2)
	err := v2.Verify("e1", req2)
	require.NotNil(t, err)
	assert.Equal(t, KindClockSkew, err.Kind)
	assert.Equal(t, int64(1061), err.ServerTime)
}

func TestVerify_WSAuthBadPayloadHash(t *testing.T) {
	v := verifierAt(1000, newFakeNonces())
	req := Request{
		Op:          OpWSAuth,
		Path:        "/e/e1/ws",
		PayloadHash: "not-the-empty-hash",
		Iat:         1000,
		Nonce:       "n1",
	}
	req.Sig = v.Sign(req)
	err := v.Verify("e1", req)
	require.NotNil(t, err)
	assert.Equal(t, KindBadPayloadHash, err.Kind)
}

func TestVerify_MissingField(t *testing.T) {
	v := verifierAt(1000, newFakeNonces())
	err := v.Verify("e1", Request{Op: OpRegisterPC, Path: "/e/e1/register-pc"})
	require.NotNil(t, err)
	assert.Equal(t, KindMissingHeaders, err.Kind)
}

func TestBase64URLRoundTrip(t *testing.T) {
	secret := []byte("s")
	req := Request{Op: OpRegisterPC, Path: "/e/e1/register-pc", PayloadHash: HashPayload(nil), Iat: 1, Nonce: "n"}
	sig := Sign(secret, req)
	assert.True(t, constantTimeEqual(sig, sig))

	raw, err := base64.RawURLEncoding.DecodeString(sig)
	require.NoError(t, err)
	assert.Len(t, raw, sha256.Size)
	assert.Equal(t, sig, base64.RawURLEncoding.EncodeToString(raw))
}
