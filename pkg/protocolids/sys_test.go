package protocolids

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	testCases := []struct {
		id    string
		valid bool
	}{
		{SysPubsub, true},
		{FloodSub, true},
		{SysTestPubsub, true},
		{"floodsub/1.0.0", false},
		{"/floodsub", false},
		{"/flood sub/1.0.0", false},
		{"/a//1.0.0", false},
	}

	for _, tc := range testCases {
		err := Validate(tc.id)
		if tc.valid {
			assert.NoError(t, err, tc.id)
		} else {
			assert.ErrorIs(t, err, ErrInvalidProtocolID, tc.id)
		}
	}
}

func TestDefaultPubsub(t *testing.T) {
	for _, id := range DefaultPubsub {
		assert.NoError(t, Validate(id))
	}
	assert.True(t, IsSys(DefaultPubsub[0]))
	assert.False(t, IsSys(FloodSub))
}
