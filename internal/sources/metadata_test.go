package sources_test

import (
	"context"
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenart/curator/internal/domain"
	"github.com/lumenart/curator/internal/sources"
	"github.com/lumenart/curator/internal/uri"
)

func newTestRewriter() uri.Rewriter {
	return uri.NewRewriter("https://gateway.example.com/ipfs/")
}

func TestMetadataFetchRawNFT_IPFS(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodGet,
		"https://gateway.example.com/ipfs/Qm123/meta.json",
		httpmock.NewStringResponder(200, `{
			"name": "Untitled Piece",
			"description": "an artwork",
			"image": "ipfs://Qm456/img.png",
			"attributes": [{"trait_type": "Mood", "value": "Calm"}]
		}`))

	a := sources.NewMetadataAdapter(newTestHTTPClient(), newTestLimiter(), newTestRewriter())

	raw, err := a.FetchRawNFT(context.Background(), domain.SourceRef{
		Source:          domain.SourceMetadata,
		Blockchain:      domain.BlockchainEthereum,
		ContractAddress: "0xABC",
		TokenID:         "42",
		MetadataURL:     "ipfs://Qm123/meta.json",
	})
	require.NoError(t, err)

	assert.Equal(t, "0xABC", raw.ContractAddress)
	assert.Equal(t, "42", raw.TokenID)
	assert.Equal(t, "Untitled Piece", raw.Title)
	assert.Equal(t, "ipfs://Qm456/img.png", raw.ImageURL)
	assert.Len(t, raw.Traits, 1)
}

func TestMetadataFetchRawNFT_DataURI(t *testing.T) {
	document := `{"name": "Inline", "image": "data:image/png;base64,AAAA"}`
	encoded := base64.StdEncoding.EncodeToString([]byte(document))

	a := sources.NewMetadataAdapter(newTestHTTPClient(), newTestLimiter(), newTestRewriter())

	raw, err := a.FetchRawNFT(context.Background(), domain.SourceRef{
		ContractAddress: "0xABC",
		TokenID:         "1",
		MetadataURL:     "data:application/json;base64," + encoded,
	})
	require.NoError(t, err)
	assert.Equal(t, "Inline", raw.Title)
	assert.Equal(t, "data:image/png;base64,AAAA", raw.ImageURL)
}

func TestMetadataFetchRawNFT_MissingURL(t *testing.T) {
	a := sources.NewMetadataAdapter(newTestHTTPClient(), newTestLimiter(), newTestRewriter())

	_, err := a.FetchRawNFT(context.Background(), domain.SourceRef{ContractAddress: "0xABC", TokenID: "1"})
	assert.ErrorIs(t, err, domain.ErrMalformedSource)
}

func TestMetadataFetchRawNFT_TokenPlaceholder(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodGet,
		"https://meta.example.com/token/9.json",
		httpmock.NewStringResponder(200, `{"name": "Nine"}`))

	a := sources.NewMetadataAdapter(newTestHTTPClient(), newTestLimiter(), newTestRewriter())

	raw, err := a.FetchRawNFT(context.Background(), domain.SourceRef{
		ContractAddress: "0xABC",
		TokenID:         "9",
		MetadataURL:     "https://meta.example.com/token/{id}.json",
	})
	require.NoError(t, err)
	assert.Equal(t, "Nine", raw.Title)
}

func TestRegistry(t *testing.T) {
	opensea := sources.NewOpenSeaAdapter(newTestHTTPClient(), newTestLimiter(), "https://api.opensea.example", "key")
	registry := sources.NewRegistry(opensea)

	got, err := registry.Get(domain.SourceOpenSea)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceOpenSea, got.Name())

	_, err = registry.Get(domain.SourceTzKT)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
