package sources_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenart/curator/internal/domain"
	"github.com/lumenart/curator/internal/sources"
)

const objktAPIURL = "https://data.objkt.example/v3/graphql"

func TestObjktFetchRawNFT(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, objktAPIURL,
		httpmock.NewStringResponder(200, `{
			"data": {
				"token": [{
					"token_id": "123",
					"name": "Dragon Garden",
					"description": "fxhash generative piece",
					"display_uri": "ipfs://QmDisplay",
					"artifact_uri": "ipfs://QmArtifact",
					"thumbnail_uri": "ipfs://QmThumb",
					"mime": "application/x-directory",
					"supply": "256",
					"timestamp": "2021-11-05T12:00:00Z",
					"fa": {"contract": "KT1Contract", "name": "fxhash"},
					"creators": [{"holder": {"address": "tz1Artist", "alias": "ciphrd"}}],
					"attributes": [{"attribute": {"name": "Palette", "value": "Lush"}}]
				}]
			}
		}`))

	a := sources.NewObjktAdapter(newTestHTTPClient(), newTestLimiter(), objktAPIURL)

	raw, err := a.FetchRawNFT(context.Background(), domain.SourceRef{
		Source:          domain.SourceObjkt,
		Blockchain:      domain.BlockchainTezos,
		ContractAddress: "KT1Contract",
		TokenID:         "123",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StandardFA2, raw.Standard)
	assert.Equal(t, "KT1Contract", raw.ContractAddress)
	assert.Equal(t, "Dragon Garden", raw.Title)
	assert.Equal(t, "ipfs://QmDisplay", raw.ImageURL)
	assert.Equal(t, "ipfs://QmArtifact", raw.AnimationURL)
	require.Len(t, raw.Creators, 1)
	assert.Equal(t, "tz1Artist", raw.Creators[0].Address)
	assert.Equal(t, "ciphrd", raw.Creators[0].Name)
	assert.Equal(t, int64(256), raw.Supply)
	require.NotNil(t, raw.MintedAt)
	assert.Len(t, raw.Traits, 1)
	assert.Equal(t, "Palette", raw.Traits[0].TraitType)
}

func TestObjktFetchRawNFT_Collaboration(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, objktAPIURL,
		httpmock.NewStringResponder(200, `{
			"data": {
				"token": [{
					"token_id": "77",
					"name": "duet",
					"fa": {"contract": "KT1Contract"},
					"creators": [
						{"holder": {"address": "tz1First", "alias": "aoife"}},
						{"holder": {"address": "tz1Second"}}
					]
				}]
			}
		}`))

	a := sources.NewObjktAdapter(newTestHTTPClient(), newTestLimiter(), objktAPIURL)

	raw, err := a.FetchRawNFT(context.Background(), domain.SourceRef{
		ContractAddress: "KT1Contract",
		TokenID:         "77",
	})
	require.NoError(t, err)

	require.Len(t, raw.Creators, 2)
	assert.Equal(t, domain.Creator{Name: "aoife", Address: "tz1First"}, raw.Creators[0])
	assert.Equal(t, domain.Creator{Address: "tz1Second"}, raw.Creators[1])
}

func TestObjktFetchRawNFT_NotFound(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodPost, objktAPIURL,
		httpmock.NewStringResponder(200, `{"data": {"token": []}}`))

	a := sources.NewObjktAdapter(newTestHTTPClient(), newTestLimiter(), objktAPIURL)

	_, err := a.FetchRawNFT(context.Background(), domain.SourceRef{
		ContractAddress: "KT1Missing",
		TokenID:         "9",
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
