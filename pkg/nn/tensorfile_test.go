package nn

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadTensorFile(t *testing.T) {
	dir := t.TempDir()
	tensor := []float32{0.5, -1, 3.25, 0}

	fn := filepath.Join(dir, "out.f32")
	require.NoError(t, os.WriteFile(fn, Float32ToLE(tensor), 0644))
	tf, err := LoadTensorFile(fn)
	require.NoError(t, err)
	require.Equal(t, tensor, tf.Float)
	require.Nil(t, tf.Quantized)

	require.NoError(t, os.WriteFile(fn, []byte{1, 2, 3}, 0644))
	_, err = LoadTensorFile(fn)
	require.Error(t, err)

	fn = filepath.Join(dir, "out.json")
	require.NoError(t, os.WriteFile(fn, []byte(`[0.5, -1, 3.25, 0]`), 0644))
	tf, err = LoadTensorFile(fn)
	require.NoError(t, err)
	require.Equal(t, tensor, tf.Float)

	require.NoError(t, os.WriteFile(fn, []byte(`{"tensor": [0.5, -1, 3.25, 0]}`), 0644))
	tf, err = LoadTensorFile(fn)
	require.NoError(t, err)
	require.Equal(t, tensor, tf.Float)

	for _, body := range []string{
		"\n  [0.5, -1, 3.25, 0]\n",
		"\xef\xbb\xbf[0.5, -1, 3.25, 0]",
		"\xef\xbb\xbf\r\n{\"tensor\": [0.5, -1, 3.25, 0]}",
	} {
		require.NoError(t, os.WriteFile(fn, []byte(body), 0644))
		tf, err = LoadTensorFile(fn)
		require.NoError(t, err, "%q", body)
		require.Equal(t, tensor, tf.Float, "%q", body)
	}

	fn = filepath.Join(dir, "out.u8")
	require.NoError(t, os.WriteFile(fn, []byte{5, 200}, 0644))
	tf, err = LoadTensorFile(fn)
	require.NoError(t, err)
	require.Equal(t, []uint8{5, 200}, tf.Quantized)

	_, err = LoadTensorFile(filepath.Join(dir, "out.png"))
	require.Error(t, err)
}
