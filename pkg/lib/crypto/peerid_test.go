package crypto

import (
	"testing"

	mh "github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeerIDFromPublicKey_Inline(t *testing.T) {
	for _, kt := range []KeyType{KeyTypeEd25519, KeyTypeSecp256k1} {
		t.Run(kt.String(), func(t *testing.T) {
			priv, pub, err := GenerateKeyPair(kt)
			require.NoError(t, err)
			assert.True(t, IsKeyInlineable(pub))

			id, err := PeerIDFromPrivateKey(priv)
			require.NoError(t, err)
			require.NoError(t, id.Validate())

			decoded, err := mh.Decode(id.Bytes())
			require.NoError(t, err)
			assert.Equal(t, uint64(mh.IDENTITY), decoded.Code)

			extracted, err := ExtractPublicKey(id)
			require.NoError(t, err)
			assert.True(t, pub.Equals(extracted))
		})
	}
}

func TestPeerIDFromPublicKey_Hashed(t *testing.T) {
	_, pub, err := GenerateKeyPair(KeyTypeRSA)
	require.NoError(t, err)
	assert.False(t, IsKeyInlineable(pub))

	id, err := PeerIDFromPublicKey(pub)
	require.NoError(t, err)

	decoded, err := mh.Decode(id.Bytes())
	require.NoError(t, err)
	assert.Equal(t, uint64(mh.SHA2_256), decoded.Code)

	_, err = ExtractPublicKey(id)
	assert.ErrorIs(t, err, ErrNoInlineKey)

	ok, err := VerifyPeerID(pub, id)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyPeerID_Mismatch(t *testing.T) {
	_, pub1, err := GenerateKeyPair(KeyTypeEd25519)
	require.NoError(t, err)
	_, pub2, err := GenerateKeyPair(KeyTypeEd25519)
	require.NoError(t, err)

	id1, err := PeerIDFromPublicKey(pub1)
	require.NoError(t, err)

	ok, err := VerifyPeerID(pub2, id1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPeerIDFromPublicKey_Nil(t *testing.T) {
	_, err := PeerIDFromPublicKey(nil)
	assert.ErrorIs(t, err, ErrNilPublicKey)

	_, err = PeerIDFromPrivateKey(nil)
	assert.ErrorIs(t, err, ErrNilPrivateKey)
}
