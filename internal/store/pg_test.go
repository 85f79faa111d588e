package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/lumenart/curator/internal/domain"
	"github.com/lumenart/curator/internal/store/schema"
)

var (
	testDB      *gorm.DB
	pgContainer *postgres.PostgresContainer
)

// TestMain sets up the test database before running tests
func TestMain(m *testing.M) {
	ctx := context.Background()

	// Check if we should use an external database (for CI or local development)
	dbHost := os.Getenv("TEST_DB_HOST")

	var dsn string
	var err error

	if dbHost != "" {
		dbPort := envOr("TEST_DB_PORT", "5432")
		dbUser := envOr("TEST_DB_USER", "postgres")
		dbPassword := envOr("TEST_DB_PASSWORD", "postgres")
		dbName := envOr("TEST_DB_NAME", "test_db")

		dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			dbHost, dbPort, dbUser, dbPassword, dbName)
	} else {
		pgContainer, err = postgres.Run(ctx,
			"postgres:18-alpine",
			postgres.WithDatabase("test_db"),
			postgres.WithUsername("postgres"),
			postgres.WithPassword("postgres"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			fmt.Printf("Failed to start PostgreSQL container: %v\n", err)
			os.Exit(1)
		}

		dsn, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			fmt.Printf("Failed to get connection string: %v\n", err)
			terminateContainer(ctx)
			os.Exit(1)
		}
	}

	testDB, err = gorm.Open(pgdriver.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		fmt.Printf("Failed to connect to database: %v\n", err)
		terminateContainer(ctx)
		os.Exit(1)
	}

	if err := AutoMigrate(testDB); err != nil {
		fmt.Printf("Failed to migrate database: %v\n", err)
		terminateContainer(ctx)
		os.Exit(1)
	}

	code := m.Run()

	terminateContainer(ctx)
	os.Exit(code)
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func terminateContainer(ctx context.Context) {
	if pgContainer != nil {
		if err := pgContainer.Terminate(ctx); err != nil {
			fmt.Printf("Failed to terminate PostgreSQL container: %v\n", err)
		}
	}
}

// newTestStore wraps each test in a transaction rolled back on cleanup
func newTestStore(t *testing.T) Store {
	tx := testDB.Begin()
	require.NotNil(t, tx)
	require.NoError(t, tx.Error)

	t.Cleanup(func() {
		tx.Rollback()
	})

	return NewPGStore(tx)
}

func testArtwork(uid, tokenID string) *schema.Artwork {
	return &schema.Artwork{
		UID:             uid,
		Blockchain:      domain.BlockchainEthereum,
		Standard:        domain.StandardERC721,
		ContractAddress: "0xabc0000000000000000000000000000000000001",
		TokenID:         tokenID,
		Source:          domain.SourceOpenSea,
		Title:           "First Title",
	}
}

func TestSaveImportedArtwork_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, created, err := s.SaveImportedArtwork(ctx, testArtwork("uid-1", "1"))
	require.NoError(t, err)
	assert.True(t, created)
	require.NotZero(t, first.ID)

	// A second import of the same token updates in place, never duplicates
	update := testArtwork("uid-1", "1")
	update.Title = "Second Title"
	second, created, err := s.SaveImportedArtwork(ctx, update)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	stored, err := s.GetArtworkByUID(ctx, "uid-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Second Title", stored.Title)

	byToken, err := s.GetArtworkByToken(ctx, domain.StandardERC721, "0xabc0000000000000000000000000000000000001", "1")
	require.NoError(t, err)
	require.NotNil(t, byToken)
	assert.Equal(t, first.ID, byToken.ID)
}

func TestGetArtwork_Missing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	artwork, err := s.GetArtworkByUID(ctx, "no-such-uid")
	require.NoError(t, err)
	assert.Nil(t, artwork)

	artwork, err = s.GetArtworkByID(ctx, 999999)
	require.NoError(t, err)
	assert.Nil(t, artwork)
}

func TestUpdateArtworkColumns_Sparse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saved, _, err := s.SaveImportedArtwork(ctx, testArtwork("uid-sparse", "2"))
	require.NoError(t, err)

	require.NoError(t, s.UpdateArtworkColumns(ctx, saved.ID, map[string]any{
		"description": "only this changed",
	}))

	stored, err := s.GetArtworkByUID(ctx, "uid-sparse")
	require.NoError(t, err)
	assert.Equal(t, "only this changed", stored.Description)
	assert.Equal(t, "First Title", stored.Title)
}

func TestCreateArtist_ConflictOnName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	artist := &schema.Artist{
		Name: "ciphrd",
		Addresses: []schema.ArtistAddress{
			{Blockchain: domain.BlockchainTezos, Address: "tz1Artist"},
		},
	}
	require.NoError(t, s.CreateArtist(ctx, artist))
	require.NotZero(t, artist.ID)

	err := s.CreateArtist(ctx, &schema.Artist{Name: "ciphrd"})
	assert.ErrorIs(t, err, domain.ErrIdentityConflict)

	byAddress, err := s.GetArtistByAddress(ctx, domain.BlockchainTezos, "tz1Artist")
	require.NoError(t, err)
	require.NotNil(t, byAddress)
	assert.Equal(t, artist.ID, byAddress.ID)

	byName, err := s.GetArtistByName(ctx, "ciphrd")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Len(t, byName.Addresses, 1)
}

func TestAddArtistAddress_IgnoresDuplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	artist := &schema.Artist{Name: "snowfro"}
	require.NoError(t, s.CreateArtist(ctx, artist))

	require.NoError(t, s.AddArtistAddress(ctx, artist.ID, domain.BlockchainEthereum, "0xabc"))
	require.NoError(t, s.AddArtistAddress(ctx, artist.ID, domain.BlockchainEthereum, "0xabc"))

	stored, err := s.GetArtistByName(ctx, "snowfro")
	require.NoError(t, err)
	assert.Len(t, stored.Addresses, 1)
}

func TestCreateCollection_ConflictOnSlug(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	collection := &schema.Collection{
		Slug:       "chromie-squiggle",
		Title:      "Chromie Squiggle",
		ExternalID: "chromie-squiggle",
		DataSource: domain.SourceOpenSea,
		Blockchain: domain.BlockchainEthereum,
	}
	require.NoError(t, s.CreateCollection(ctx, collection))

	err := s.CreateCollection(ctx, &schema.Collection{Slug: "chromie-squiggle", Title: "Other"})
	assert.ErrorIs(t, err, domain.ErrIdentityConflict)

	byExternal, err := s.GetCollectionByExternalID(ctx, "chromie-squiggle", domain.SourceOpenSea, domain.BlockchainEthereum)
	require.NoError(t, err)
	require.NotNil(t, byExternal)
	assert.Equal(t, collection.ID, byExternal.ID)
}

func TestRecordImportAttempt_Ledger(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.RecordImportAttempt(ctx, RecordAttemptInput{
		ContractAddress: "0xdef",
		TokenID:         "9",
		Source:          domain.SourceOpenSea,
		Blockchain:      domain.BlockchainEthereum,
		Status:          schema.ImportStatusFailed,
		FailedStep:      schema.ImportStepFetching,
		Retryable:       true,
		ErrorMessage:    "source unavailable",
		BatchID:         "01BATCH",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, first.AttemptCount)

	second, err := s.RecordImportAttempt(ctx, RecordAttemptInput{
		ContractAddress: "0xdef",
		TokenID:         "9",
		Source:          domain.SourceOpenSea,
		Blockchain:      domain.BlockchainEthereum,
		Status:          schema.ImportStatusSuccess,
		BatchID:         "01BATCH2",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.AttemptCount)
	assert.Equal(t, schema.ImportStatusSuccess, second.Status)
}

func TestListRetryableImports(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// retryable failure
	_, err := s.RecordImportAttempt(ctx, RecordAttemptInput{
		ContractAddress: "0xa", TokenID: "1",
		Source: domain.SourceOpenSea, Blockchain: domain.BlockchainEthereum,
		Status: schema.ImportStatusFailed, FailedStep: schema.ImportStepResolvingMedia, Retryable: true,
	})
	require.NoError(t, err)

	// terminal failure
	_, err = s.RecordImportAttempt(ctx, RecordAttemptInput{
		ContractAddress: "0xa", TokenID: "2",
		Source: domain.SourceOpenSea, Blockchain: domain.BlockchainEthereum,
		Status: schema.ImportStatusFailed, FailedStep: schema.ImportStepNormalizing, Retryable: false,
	})
	require.NoError(t, err)

	// success
	_, err = s.RecordImportAttempt(ctx, RecordAttemptInput{
		ContractAddress: "0xa", TokenID: "3",
		Source: domain.SourceOpenSea, Blockchain: domain.BlockchainEthereum,
		Status: schema.ImportStatusSuccess,
	})
	require.NoError(t, err)

	records, err := s.ListRetryableImports(ctx, ListRetryableInput{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "1", records[0].TokenID)

	// the attempt cap excludes records that already burned their retries
	records, err = s.ListRetryableImports(ctx, ListRetryableInput{MaxAttempts: 1})
	require.NoError(t, err)
	assert.Empty(t, records)
}
