package derive

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func testChannelID(b byte) ChannelID {
	var id ChannelID
	for i := range id {
		id[i] = b + byte(i)
	}
	return id
}

func TestFrameRoundTrip(t *testing.T) {
	frames := []Frame{
		{ID: testChannelID(1), FrameNumber: 0, Data: []byte{}, IsLast: false},
		{ID: testChannelID(2), FrameNumber: 7, Data: []byte("hello frame"), IsLast: true},
		{ID: testChannelID(3), FrameNumber: 65535, Data: bytes.Repeat([]byte{0xAB}, MaxFrameLen), IsLast: true},
	}
	for _, f := range frames {
		enc, err := f.MarshalBinary()
		require.NoError(t, err)
		require.Len(t, enc, FrameOverhead+len(f.Data))

		dec, n, err := UnmarshalFrame(enc)
		require.NoError(t, err)
		require.Equal(t, len(enc), n)
		require.Equal(t, f, dec)
	}
}

func TestFrameTooLargeToEncode(t *testing.T) {
	f := Frame{ID: testChannelID(1), Data: make([]byte, MaxFrameLen+1)}
	_, err := f.MarshalBinary()
	require.ErrorIs(t, err, ErrInvalidFrameSize)
}

func TestUnmarshalFrameBoundaries(t *testing.T) {
	valid, err := (&Frame{ID: testChannelID(9), FrameNumber: 1, Data: []byte{1, 2, 3}}).MarshalBinary()
	require.NoError(t, err)

	t.Run("shorter than overhead", func(t *testing.T) {
		for _, l := range []int{0, 1, FrameOverhead - 1} {
			_, _, err := UnmarshalFrame(make([]byte, l))
			require.ErrorIs(t, err, ErrInvalidFrameSize)
		}
	})
	t.Run("minimum frame", func(t *testing.T) {
		f, n, err := UnmarshalFrame(make([]byte, FrameOverhead))
		require.NoError(t, err)
		require.Equal(t, FrameOverhead, n)
		require.Empty(t, f.Data)
		require.False(t, f.IsLast)
	})
	t.Run("data overruns input", func(t *testing.T) {
		_, _, err := UnmarshalFrame(valid[:len(valid)-1])
		require.ErrorIs(t, err, ErrInvalidFrameSize)
		require.ErrorIs(t, err, ErrFrameParse)
	})
	t.Run("data length above maximum", func(t *testing.T) {
		buf := append([]byte(nil), valid...)
		// length 1,000,001
		copy(buf[18:22], []byte{0x00, 0x0F, 0x42, 0x41})
		_, _, err := UnmarshalFrame(buf)
		require.ErrorIs(t, err, ErrInvalidFrameSize)
	})
	t.Run("bad is_last byte", func(t *testing.T) {
		buf := append([]byte(nil), valid...)
		buf[len(buf)-1] = 2
		_, _, err := UnmarshalFrame(buf)
		require.ErrorIs(t, err, ErrFrameParse)
	})
}

func TestParseFrames(t *testing.T) {
	f1 := Frame{ID: testChannelID(1), FrameNumber: 0, Data: []byte("a")}
	f2 := Frame{ID: testChannelID(1), FrameNumber: 1, Data: []byte("bc"), IsLast: true}
	enc1, err := f1.MarshalBinary()
	require.NoError(t, err)
	enc2, err := f2.MarshalBinary()
	require.NoError(t, err)
	tx := append([]byte{DerivationVersion0}, append(enc1, enc2...)...)

	frames, err := ParseFrames(tx)
	require.NoError(t, err)
	require.Equal(t, []Frame{f1, f2}, frames)

	_, err = ParseFrames(nil)
	require.ErrorIs(t, err, ErrFrameParse)

	_, err = ParseFrames([]byte{DerivationVersion0})
	require.ErrorIs(t, err, ErrFrameParse)

	_, err = ParseFrames(append([]byte{1}, enc1...))
	require.ErrorIs(t, err, ErrFrameParse)

	_, err = ParseFrames(append(tx, 0x00, 0x01))
	require.ErrorIs(t, err, ErrFrameParse)
}
