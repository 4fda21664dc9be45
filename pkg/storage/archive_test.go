package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	pkgerrors "github.com/wehubfusion/Procrustes/pkg/errors"
)

const azuriteConnString = "DefaultEndpointsProtocol=http;AccountName=devstoreaccount1;" +
	"AccountKey=Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==;" +
	"BlobEndpoint=http://127.0.0.1:10000/devstoreaccount1;"

func TestParseConnectionString(t *testing.T) {
	params := parseConnectionString(azuriteConnString)
	assert.Equal(t, "devstoreaccount1", params["AccountName"])
	assert.Equal(t, "http://127.0.0.1:10000/devstoreaccount1", params["BlobEndpoint"])
	assert.NotEmpty(t, params["AccountKey"])
}

func TestNewArchiveClient(t *testing.T) {
	logger := zap.NewNop()

	client, err := NewArchiveClient(azuriteConnString, "artifacts", logger)
	require.NoError(t, err)
	assert.NotNil(t, client)

	_, err = NewArchiveClient("", "artifacts", logger)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidConfig)

	_, err = NewArchiveClient(azuriteConnString, "", logger)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidConfig)

	_, err = NewArchiveClient(azuriteConnString, "artifacts", nil)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidConfig)

	_, err = NewArchiveClient("AccountName=only", "artifacts", logger)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidConfig)
}

func TestArtifactPath(t *testing.T) {
	assert.Equal(t, "runs/r1/out.csv", ArtifactPath("r1", "out.csv"))
}
