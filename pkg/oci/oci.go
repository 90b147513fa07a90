// Package oci publishes and retrieves global model parameters as OCI
// artifacts, so that checkpointed models can be shared through any
// container registry.
package oci

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/absmach/flock/wire"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content/memory"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/retry"
)

const (
	// ArtifactType marks a manifest as a serialized model.
	ArtifactType = "application/vnd.flock.model"
	// LayerMediaType is the media type of the parameter payload layer.
	LayerMediaType = "application/vnd.flock.model.params.v1+cbor"
)

var ErrNoModelLayer = errors.New("manifest contains no model parameter layer")

// Config carries registry access settings.
type Config struct {
	RegistryURL  string
	Authenticate bool
	Username     string
	Password     string
	Token        string
}

// Client moves model parameters in and out of an OCI registry.
type Client struct {
	cfg Config
}

func NewClient(cfg Config) *Client {
	return &Client{cfg: cfg}
}

// Push publishes parameters to repoPath under the given tag.
func (c *Client) Push(ctx context.Context, repoPath, tag string, params wire.Parameters) (string, error) {
	data, err := wire.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to serialize parameters: %w", err)
	}

	store := memory.New()
	layer, err := oras.PushBytes(ctx, store, LayerMediaType, data)
	if err != nil {
		return "", fmt.Errorf("failed to stage parameter layer: %w", err)
	}

	manifest, err := oras.PackManifest(ctx, store, oras.PackManifestVersion1_1, ArtifactType, oras.PackManifestOptions{
		Layers: []ocispec.Descriptor{layer},
	})
	if err != nil {
		return "", fmt.Errorf("failed to pack manifest: %w", err)
	}
	if err := store.Tag(ctx, manifest, tag); err != nil {
		return "", fmt.Errorf("failed to tag manifest: %w", err)
	}

	repo, err := c.repository(repoPath)
	if err != nil {
		return "", err
	}
	if _, err := oras.Copy(ctx, store, tag, repo, tag, oras.DefaultCopyOptions); err != nil {
		return "", fmt.Errorf("failed to push %s:%s: %w", repoPath, tag, err)
	}

	return manifest.Digest.String(), nil
}

// Pull fetches the parameters tagged in repoPath.
func (c *Client) Pull(ctx context.Context, repoPath, tag string) (wire.Parameters, error) {
	repo, err := c.repository(repoPath)
	if err != nil {
		return wire.Parameters{}, err
	}

	manifest, err := c.fetchManifest(ctx, repo, repoPath, tag)
	if err != nil {
		return wire.Parameters{}, err
	}

	layer, err := modelLayer(manifest)
	if err != nil {
		return wire.Parameters{}, fmt.Errorf("%s:%s: %w", repoPath, tag, err)
	}

	reader, err := repo.Fetch(ctx, layer)
	if err != nil {
		return wire.Parameters{}, fmt.Errorf("failed to fetch layer for %s: %w", repoPath, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return wire.Parameters{}, fmt.Errorf("failed to read layer for %s: %w", repoPath, err)
	}

	var params wire.Parameters
	if err := wire.Unmarshal(data, &params); err != nil {
		return wire.Parameters{}, fmt.Errorf("failed to decode parameters from %s: %w", repoPath, err)
	}

	return params, nil
}

func (c *Client) repository(repoPath string) (*remote.Repository, error) {
	repo, err := remote.NewRepository(repoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create repository for %s: %w", repoPath, err)
	}
	c.setupAuthentication(repo)

	return repo, nil
}

func (c *Client) setupAuthentication(repo *remote.Repository) {
	if !c.cfg.Authenticate {
		return
	}

	var cred auth.Credential
	if c.cfg.Username != "" && c.cfg.Password != "" {
		cred = auth.Credential{
			Username: c.cfg.Username,
			Password: c.cfg.Password,
		}
	} else if c.cfg.Token != "" {
		cred = auth.Credential{
			AccessToken: c.cfg.Token,
		}
	}

	repo.Client = &auth.Client{
		Client:     retry.DefaultClient,
		Cache:      auth.NewCache(),
		Credential: auth.StaticCredential(c.cfg.RegistryURL, cred),
	}
}

func (c *Client) fetchManifest(ctx context.Context, repo *remote.Repository, repoPath, tag string) (*ocispec.Manifest, error) {
	descriptor, err := repo.Resolve(ctx, tag)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve manifest for %s:%s: %w", repoPath, tag, err)
	}

	reader, err := repo.Fetch(ctx, descriptor)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch manifest for %s:%s: %w", repoPath, tag, err)
	}
	defer reader.Close()

	manifestData, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest for %s:%s: %w", repoPath, tag, err)
	}

	var manifest ocispec.Manifest
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest for %s:%s: %w", repoPath, tag, err)
	}

	return &manifest, nil
}

func modelLayer(manifest *ocispec.Manifest) (ocispec.Descriptor, error) {
	for _, layer := range manifest.Layers {
		if layer.MediaType == LayerMediaType {
			return layer, nil
		}
	}

	return ocispec.Descriptor{}, ErrNoModelLayer
}
