package enum

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// AzureConnectionStringEnv names the variable holding the storage account
// connection string.
const AzureConnectionStringEnv = "AZURE_STORAGE_CONNECTION_STRING"

// AzureBlobEnumerator lists and downloads blobs under a container prefix.
type AzureBlobEnumerator struct {
	config    Config
	client    *azblob.Client
	container string
	prefix    string
}

// NewAzureBlobEnumerator parses an "azblob://container/prefix" URL and
// connects with the given connection string, or the one in
// AZURE_STORAGE_CONNECTION_STRING when empty.
func NewAzureBlobEnumerator(config Config, url, connStr string) (*AzureBlobEnumerator, error) {
	container, prefix, err := splitObjectURL(url, "azblob://")
	if err != nil {
		return nil, err
	}
	if connStr == "" {
		connStr = os.Getenv(AzureConnectionStringEnv)
	}
	if connStr == "" {
		return nil, fmt.Errorf("azure blob source needs a connection string (set %s)", AzureConnectionStringEnv)
	}

	client, err := azblob.NewClientFromConnectionString(connStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure blob client: %w", err)
	}
	return &AzureBlobEnumerator{config: config, client: client, container: container, prefix: prefix}, nil
}

func (e *AzureBlobEnumerator) Enumerate(ctx context.Context, fn func(Input) error) error {
	opts := &azblob.ListBlobsFlatOptions{}
	if e.prefix != "" {
		opts.Prefix = &e.prefix
	}

	pager := e.client.NewListBlobsFlatPager(e.container, opts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list container %s: %w", e.container, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			size := int64(-1)
			if item.Properties != nil && item.Properties.ContentLength != nil {
				size = *item.Properties.ContentLength
			}
			if e.config.MaxFileSize > 0 && size > e.config.MaxFileSize {
				continue
			}

			name := *item.Name
			err := fn(Input{
				Name: "azblob://" + e.container + "/" + name,
				Size: size,
				Open: func(ctx context.Context) (io.ReadCloser, error) {
					resp, err := e.client.DownloadStream(ctx, e.container, name, nil)
					if err != nil {
						return nil, fmt.Errorf("failed to download %s: %w", name, err)
					}
					return resp.Body, nil
				},
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// splitObjectURL splits "scheme://bucket/key" into bucket and key.
func splitObjectURL(url, scheme string) (string, string, error) {
	rest, ok := strings.CutPrefix(url, scheme)
	if !ok {
		return "", "", fmt.Errorf("expected %s URL, got %q", scheme, url)
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("missing bucket or container in %q", url)
	}
	return bucket, key, nil
}
