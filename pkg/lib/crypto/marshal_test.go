package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestMarshalPublicKey_RoundTrip(t *testing.T) {
	for _, kt := range KeyTypes {
		t.Run(kt.String(), func(t *testing.T) {
			_, pub, err := GenerateKeyPair(kt)
			require.NoError(t, err)

			data, err := MarshalPublicKey(pub)
			require.NoError(t, err)

			decoded, err := UnmarshalPublicKeyBytes(data)
			require.NoError(t, err)
			assert.True(t, pub.Equals(decoded))
		})
	}
}

func TestMarshalPrivateKey_RoundTrip(t *testing.T) {
	priv, _, err := GenerateKeyPair(KeyTypeSecp256k1)
	require.NoError(t, err)

	data, err := MarshalPrivateKey(priv)
	require.NoError(t, err)

	decoded, err := UnmarshalPrivateKeyBytes(data)
	require.NoError(t, err)
	assert.True(t, priv.Equals(decoded))
}

func TestMarshalPublicKey_WireLayout(t *testing.T) {
	_, pub, err := GenerateKeyPair(KeyTypeEd25519)
	require.NoError(t, err)

	data, err := MarshalPublicKey(pub)
	require.NoError(t, err)

	// Type=Ed25519(1), Data=32 字节
	require.Len(t, data, 36)
	assert.Equal(t, []byte{0x08, 0x01, 0x12, 0x20}, data[:4])
}

func TestUnmarshalPublicKeyBytes_SkipsUnknownFields(t *testing.T) {
	_, pub, err := GenerateKeyPair(KeyTypeEd25519)
	require.NoError(t, err)
	data, err := MarshalPublicKey(pub)
	require.NoError(t, err)

	data = protowire.AppendTag(data, 9, protowire.BytesType)
	data = protowire.AppendBytes(data, []byte("extra"))

	decoded, err := UnmarshalPublicKeyBytes(data)
	require.NoError(t, err)
	assert.True(t, pub.Equals(decoded))
}

func TestUnmarshalPublicKeyBytes_Malformed(t *testing.T) {
	_, err := UnmarshalPublicKeyBytes([]byte{0x08})
	assert.ErrorIs(t, err, ErrUnmarshalFailed)

	_, err = UnmarshalPublicKeyBytes([]byte{0x08, 0x01})
	assert.ErrorIs(t, err, ErrUnmarshalFailed)

	_, err = UnmarshalPublicKeyBytes([]byte{0x08, 0x07, 0x12, 0x00})
	assert.ErrorIs(t, err, ErrBadKeyType)

	_, err = MarshalPublicKey(nil)
	assert.ErrorIs(t, err, ErrNilPublicKey)
}
