package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memFile is an in-memory Appender/ReaderAt for framing tests.
type memFile struct {
	data []byte
}

func (m *memFile) Append(_ context.Context, data []byte) (uint64, uint64, error) {
	start := uint64(len(m.data))
	m.data = append(m.data, data...)
	return start, uint64(len(data)), nil
}

func (m *memFile) ReadWithPos(_ context.Context, start uint64, n uint64) ([]byte, error) {
	return m.data[start : start+n], nil
}

func TestMarshalRoundTrip(t *testing.T) {
	set := NewSet([]byte("key"), []byte("value"))
	data, err := Marshal(set)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, set, got)
	assert.True(t, got.IsSet())

	rm := NewRemove([]byte("key"))
	data, err = Marshal(rm)
	require.NoError(t, err)

	got, err = Unmarshal(data)
	require.NoError(t, err)
	assert.True(t, got.IsRemove())
	assert.Nil(t, got.Value)
}

func TestWriteFromPosUnpack(t *testing.T) {
	ctx := context.Background()
	f := &memFile{}

	first, firstLen, err := Write(ctx, f, NewSet([]byte("a"), []byte("1")))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), first)

	second, secondLen, err := WriteBackRealPos(ctx, f, NewSet([]byte("b"), []byte("2")))
	require.NoError(t, err)
	assert.Equal(t, firstLen, second)

	cmd, err := FromPosUnpack(ctx, f, second, secondLen)
	require.NoError(t, err)
	require.NotNil(t, cmd)
	assert.Equal(t, []byte("b"), cmd.Key)

	// A zone too short to hold a frame yields no command.
	cmd, err = FromPosUnpack(ctx, f, 0, 2)
	require.NoError(t, err)
	assert.Nil(t, cmd)
}

func TestFromZoneToVec(t *testing.T) {
	ctx := context.Background()
	f := &memFile{}

	want := []*Command{
		NewSet([]byte("a"), []byte("1")),
		NewRemove([]byte("b")),
		NewSet([]byte("c"), []byte("3")),
	}
	for _, cmd := range want {
		_, _, err := Write(ctx, f, cmd)
		require.NoError(t, err)
	}

	got, err := FromZoneToVec(f.data)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFromZoneToVecCorrupt(t *testing.T) {
	// A frame claiming more bytes than the zone holds is corrupt.
	zone := []byte{0xff, 0xff, 0x00, 0x00, 0x01}
	_, err := FromZoneToVec(zone)
	assert.Error(t, err)
}

func TestFindKeyWithZoneUnpackLastWins(t *testing.T) {
	ctx := context.Background()
	f := &memFile{}

	for _, cmd := range []*Command{
		NewSet([]byte("k"), []byte("old")),
		NewSet([]byte("other"), []byte("x")),
		NewSet([]byte("k"), []byte("new")),
	} {
		_, _, err := Write(ctx, f, cmd)
		require.NoError(t, err)
	}

	got, err := FindKeyWithZoneUnpack(f.data, []byte("k"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []byte("new"), got.Value)

	got, err = FindKeyWithZoneUnpack(f.data, []byte("missing"))
	require.NoError(t, err)
	assert.Nil(t, got)
}
