package filesink

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	records := [][]byte{
		[]byte("short"),
		bytes.Repeat([]byte{0xAB}, 300), // two-byte length
		{0x08, 0x01},
	}

	for _, name := range []string{"records.bin", "records.bin.zst"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), name)

			s, err := Open(path)
			require.NoError(t, err)
			for _, r := range records {
				require.NoError(t, s.Send(context.Background(), r))
			}
			assert.Equal(t, uint64(3), s.Written())
			require.NoError(t, s.Close())
			require.NoError(t, s.Close())
			assert.ErrorIs(t, s.Send(context.Background(), []byte("late")), os.ErrClosed)

			// Appending continues the same stream.
			s, err = Open(path)
			require.NoError(t, err)
			require.NoError(t, s.Send(context.Background(), []byte("again")))
			require.NoError(t, s.Close())

			got, err := ReadFile(path)
			require.NoError(t, err)
			want := append(append([][]byte{}, records...), []byte("again"))
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("records mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadAllCorrupt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
		want int
	}{
		{"empty", nil, 0},
		{"truncated body", []byte{0x05, 'a', 'b'}, 0},
		{"truncated length", []byte{0x01, 'a', 0x80}, 1},
		{"oversized", []byte{0xFF, 0xFF, 0xFF, 0x7F}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadAll(bytes.NewReader(tt.data))
			if tt.name == "empty" {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrCorrupt)
			}
			assert.Len(t, got, tt.want)
		})
	}
}
