package timezone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveOffsets(t *testing.T) {
	cases := []struct {
		in         string
		wantName   string
		wantOffset int
		wantErr    bool
	}{
		{in: "UTC", wantName: "UTC", wantOffset: 0},
		{in: "utc+2", wantName: "UTC+2", wantOffset: 2 * 3600},
		{in: "UTC-5", wantName: "UTC-5", wantOffset: -5 * 3600},
		{in: "UTC+9:30", wantName: "UTC+9:30", wantOffset: 9*3600 + 1800},
		{in: "UTC-9:30", wantName: "UTC-9:30", wantOffset: -(9*3600 + 1800)},
		{in: "UTC+14", wantName: "UTC+14", wantOffset: 14 * 3600},
		{in: "UTC-12", wantName: "UTC-12", wantOffset: -12 * 3600},
		{in: "UTC+15", wantErr: true},
		{in: "UTC-13", wantErr: true},
		{in: "UTC+14:30", wantErr: true},
		{in: "UTC-12:30", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			loc, err := Resolve(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantName, loc.String())

			_, offset := time.Date(2026, 8, 21, 12, 0, 0, 0, loc).Zone()
			assert.Equal(t, tc.wantOffset, offset)
		})
	}
}

func TestResolveIANA(t *testing.T) {
	loc, err := Resolve("America/New_York")
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())

	_, err = Resolve("Mars/Olympus_Mons")
	require.Error(t, err)

	_, err = Resolve("")
	require.Error(t, err)
}

func TestResolveRoundTripsItsOwnNames(t *testing.T) {
	for _, name := range []string{"UTC", "UTC+2", "UTC-5", "UTC+9:30"} {
		loc, err := Resolve(name)
		require.NoError(t, err)

		again, err := Resolve(loc.String())
		require.NoError(t, err)
		assert.Equal(t, loc.String(), again.String())
	}
}

func TestDisplayConversionKeepsInstant(t *testing.T) {
	ref, err := Resolve("America/New_York")
	require.NoError(t, err)
	sub, err := Resolve("UTC+2")
	require.NoError(t, err)

	at := time.Date(2026, 8, 21, 14, 30, 0, 0, ref)
	shown := at.In(sub)

	assert.True(t, at.Equal(shown), "display conversion must not move the instant")
	assert.Equal(t, at.Unix(), shown.In(ref).Unix())
}

func TestForSubscriber(t *testing.T) {
	def := time.UTC

	assert.Equal(t, def, ForSubscriber("", def))
	assert.Equal(t, def, ForSubscriber("not-a-zone", def))

	got := ForSubscriber("UTC+3", def)
	require.NotNil(t, got)
	assert.Equal(t, "UTC+3", got.String())
}
