package document

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSources_ExtractText(t *testing.T) {
	sources := Sources{
		PDF: TextSourceFunc(func(ctx context.Context, data []byte) (string, error) {
			return "pdf:" + string(data), nil
		}),
		Image: TextSourceFunc(func(ctx context.Context, data []byte) (string, error) {
			return "image:" + string(data), nil
		}),
	}

	got, err := sources.ExtractText(context.Background(), []byte("a"), KindPDF)
	require.NoError(t, err)
	assert.Equal(t, "pdf:a", got)

	got, err = sources.ExtractText(context.Background(), []byte("b"), KindImage)
	require.NoError(t, err)
	assert.Equal(t, "image:b", got)

	_, err = sources.ExtractText(context.Background(), nil, Kind("doc"))
	assert.Error(t, err)
}

func TestSources_MissingSource(t *testing.T) {
	_, err := Sources{}.ExtractText(context.Background(), []byte("a"), KindImage)
	assert.ErrorContains(t, err, "no text source")
}
