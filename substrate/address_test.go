package substrate

import (
	"encoding/hex"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known substrate dev account (Alice) under the generic prefix 42.
const (
	alicePubHex  = "d43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d"
	aliceAddress = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
)

func alicePub(t *testing.T) [PublicKeyLength]byte {
	t.Helper()
	raw, err := hex.DecodeString(alicePubHex)
	require.NoError(t, err)
	var pub [PublicKeyLength]byte
	copy(pub[:], raw)
	return pub
}

func TestEncodeAddress_KnownVector(t *testing.T) {
	address, err := EncodeAddress(alicePub(t), 42)
	require.NoError(t, err)
	assert.Equal(t, aliceAddress, address)
}

func TestDecodeAddress_KnownVector(t *testing.T) {
	pub, err := DecodeAddress(aliceAddress, 42)
	require.NoError(t, err)
	assert.Equal(t, alicePub(t), pub)
}

func TestAddressRoundTrip(t *testing.T) {
	var pub [PublicKeyLength]byte
	for i := range pub {
		pub[i] = byte(i * 7)
	}

	for _, prefix := range []uint16{0, 2, 42, 63} {
		address, err := EncodeAddress(pub, prefix)
		require.NoError(t, err)

		decoded, err := DecodeAddress(address, prefix)
		require.NoError(t, err)
		assert.Equal(t, pub, decoded)
	}
}

func TestEncodeAddress_UnsupportedPrefix(t *testing.T) {
	_, err := EncodeAddress(alicePub(t), 64)
	assert.Error(t, err)
}

func TestDecodeAddress_WrongPrefix(t *testing.T) {
	_, err := DecodeAddress(aliceAddress, 0)
	assert.Error(t, err)
}

func TestDecodeAddress_CorruptChecksum(t *testing.T) {
	raw, err := base58.Decode(aliceAddress)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff

	_, err = DecodeAddress(base58.Encode(raw), 42)
	assert.ErrorContains(t, err, "checksum")
}

func TestDecodeAddress_BadInput(t *testing.T) {
	_, err := DecodeAddress("0OIl", 42)
	assert.Error(t, err)

	_, err = DecodeAddress(base58.Encode([]byte("short")), 42)
	assert.ErrorContains(t, err, "length")
}
