package preprocess_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexlab/eegclean/preprocess"
)

func TestNewSignalMatrixValidation(t *testing.T) {
	_, err := preprocess.NewSignalMatrix(nil, 100)
	assert.Error(t, err)

	_, err = preprocess.NewSignalMatrix([][]float64{{1, 2, 3}}, 0)
	assert.Error(t, err)

	_, err = preprocess.NewSignalMatrix([][]float64{{1, 2, 3}, {1, 2}}, 100)
	assert.Error(t, err)

	signal, err := preprocess.NewSignalMatrix([][]float64{{1, 2, 3}, {4, 5, 6}}, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, signal.Channels())
	assert.Equal(t, 3, signal.Samples())
	assert.InDelta(t, 0.03, signal.Seconds(), 1e-12)
}

func TestSignalMatrixCloneIsDeep(t *testing.T) {
	signal, err := preprocess.NewSignalMatrix([][]float64{{1, 2, 3}}, 100)
	require.NoError(t, err)

	clone := signal.Clone()
	clone.Data[0][0] = 99

	assert.Equal(t, 1.0, signal.Data[0][0])
	assert.Equal(t, signal.SampleRate, clone.SampleRate)
}
