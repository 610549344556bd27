package limiter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordLayout(t *testing.T) {
	p := Policy{Admin: admin, Config: Config{MaxRequests: 5, WindowSeconds: 60, BurstLimit: 7}, Paused: true}
	data, err := p.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, 65)
	assert.Equal(t, []byte("rlpolicy"), data[:8])
	assert.Equal(t, admin[:], data[8:40])
	assert.Equal(t, byte(5), data[40])
	assert.Equal(t, byte(60), data[48])
	assert.Equal(t, byte(7), data[56])
	assert.Equal(t, byte(1), data[64])

	var decoded Policy
	require.NoError(t, decoded.UnmarshalBinary(data))
	assert.Equal(t, p, decoded)

	b := Bucket{Owner: client, RequestCount: 3, WindowStart: -1, TotalRequests: 1 << 40}
	data, err = b.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, 65)

	var decodedBucket Bucket
	require.NoError(t, decodedBucket.UnmarshalBinary(data))
	assert.Equal(t, b, decodedBucket)
}

func TestRecordLayout_Rejects(t *testing.T) {
	p := Policy{Admin: admin}
	data, err := p.MarshalBinary()
	require.NoError(t, err)

	var b Bucket
	assert.Error(t, b.UnmarshalBinary(data), "policy record must not decode as a bucket")

	var decoded Policy
	assert.Error(t, decoded.UnmarshalBinary(data[:64]))

	data[64] = 2
	assert.Error(t, decoded.UnmarshalBinary(data))
}

func TestIdentity_Text(t *testing.T) {
	s := client.String()
	assert.Len(t, s, 64)

	parsed, err := ParseIdentity(s)
	require.NoError(t, err)
	assert.Equal(t, client, parsed)

	_, err = ParseIdentity("abc")
	assert.Error(t, err)
	_, err = ParseIdentity(string(make([]byte, 64)))
	assert.Error(t, err)

	raw, err := json.Marshal(Bucket{Owner: client})
	require.NoError(t, err)
	var back Bucket
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, client, back.Owner)
}
