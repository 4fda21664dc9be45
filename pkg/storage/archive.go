// Package storage archives generated CSV artifacts to Azure Blob Storage so
// bulk-load inputs stay auditable after the load. Archival is optional and
// sits outside the conversion contract.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"go.uber.org/zap"

	pkgerrors "github.com/wehubfusion/Procrustes/pkg/errors"
)

// ArchiveClient uploads run artifacts to a blob container using shared-key
// credentials. HTTP endpoints are allowed so local Azurite instances work.
type ArchiveClient struct {
	client        *azblob.Client
	serviceURL    string
	containerName string
	logger        *zap.Logger
	containerInit bool
}

// NewArchiveClient creates an archive client from a standard connection
// string and a container name.
func NewArchiveClient(connectionString, containerName string, logger *zap.Logger) (*ArchiveClient, error) {
	if connectionString == "" {
		return nil, fmt.Errorf("%w: connection string is required", pkgerrors.ErrInvalidConfig)
	}
	if containerName == "" {
		return nil, fmt.Errorf("%w: container name is required", pkgerrors.ErrInvalidConfig)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger is required", pkgerrors.ErrInvalidConfig)
	}

	params := parseConnectionString(connectionString)
	accountName := params["AccountName"]
	accountKey := params["AccountKey"]
	serviceURL := params["BlobEndpoint"]
	if accountName == "" || accountKey == "" {
		return nil, fmt.Errorf("%w: account name and key are required in the connection string", pkgerrors.ErrInvalidConfig)
	}
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net", accountName)
	}

	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create shared key credential: %w", err)
	}

	var clientOpts *azblob.ClientOptions
	if strings.HasPrefix(strings.ToLower(serviceURL), "http://") {
		clientOpts = &azblob.ClientOptions{
			ClientOptions: azcore.ClientOptions{
				InsecureAllowCredentialWithHTTP: true,
			},
		}
	}

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}

	return &ArchiveClient{
		client:        client,
		serviceURL:    strings.TrimRight(serviceURL, "/"),
		containerName: containerName,
		logger:        logger,
	}, nil
}

// ArtifactPath returns the standard blob path for a run's CSV artifact.
func ArtifactPath(runID, fileName string) string {
	return fmt.Sprintf("runs/%s/%s", runID, fileName)
}

// UploadArtifact uploads the file at localPath to blobPath with run
// metadata and returns the blob URL.
func (a *ArchiveClient) UploadArtifact(ctx context.Context, blobPath, localPath string, metadata map[string]string) (string, error) {
	if err := a.ensureContainer(ctx); err != nil {
		return "", err
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: open artifact: %v", pkgerrors.ErrUploadFailed, err)
	}
	defer f.Close()

	metadataPtr := make(map[string]*string, len(metadata))
	for k, v := range metadata {
		metadataPtr[k] = to.Ptr(v)
	}

	containerClient := a.client.ServiceClient().NewContainerClient(a.containerName)
	blobClient := containerClient.NewBlockBlobClient(blobPath)

	_, err = blobClient.UploadFile(ctx, f, &azblob.UploadFileOptions{
		Metadata: metadataPtr,
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: to.Ptr("text/csv"),
		},
	})
	if err != nil {
		a.logger.Error("Failed to upload artifact",
			zap.String("blob_path", blobPath),
			zap.String("local_path", localPath),
			zap.Error(err))
		return "", fmt.Errorf("%w: %v", pkgerrors.ErrUploadFailed, err)
	}

	a.logger.Info("Artifact archived",
		zap.String("blob_path", blobPath),
		zap.String("local_path", localPath))

	return blobClient.URL(), nil
}

func (a *ArchiveClient) ensureContainer(ctx context.Context) error {
	if a.containerInit {
		return nil
	}

	_, err := a.client.CreateContainer(ctx, a.containerName, nil)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "containeralreadyexists") {
			a.containerInit = true
			return nil
		}
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == "ContainerAlreadyExists" {
			a.containerInit = true
			return nil
		}
		return fmt.Errorf("failed to ensure container: %w", err)
	}

	a.containerInit = true
	return nil
}

func parseConnectionString(connectionString string) map[string]string {
	parts := strings.Split(connectionString, ";")
	params := make(map[string]string, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx := strings.Index(part, "=")
		if idx <= 0 {
			continue
		}
		params[part[:idx]] = part[idx+1:]
	}
	return params
}
