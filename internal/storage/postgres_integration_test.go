//go:build integration

package storage_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage/storagetest"
)

func TestPostgres_CatalogQueries(t *testing.T) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"pgvector/pgvector:pg17",
		postgres.WithDatabase("catalog_engine_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://test:test@%s:%s/catalog_engine_test?sslmode=disable", host, port.Port())

	db, err := storage.Open(ctx, storage.DialectPostgres, dsn, storage.PoolConfig{MaxOpenConns: 5})
	require.NoError(t, err)
	defer db.Close()

	_, err = storage.NewMigrator(db, storage.DialectPostgres).Up(ctx)
	require.NoError(t, err)

	repos := storage.NewRepositories(db, storage.DialectPostgres)

	laptops := &storage.Category{Name: "Laptops", Slug: "laptops"}
	require.NoError(t, repos.Categories.Upsert(ctx, laptops))
	acme := &storage.Brand{Name: "Acme", Slug: "acme"}
	require.NoError(t, repos.Brands.Upsert(ctx, acme))

	pro := &storage.Product{
		SKU: "PG-1", Name: "Acme Pro", Price: storagetest.Price("1499.99"), InStock: true,
		CategoryID: &laptops.ID, BrandID: &acme.ID,
		Specifications: storage.Specs{"ram_gb": "32", "gpu": "RTX 4080"},
	}
	require.NoError(t, repos.Products.Create(ctx, pro))
	air := &storage.Product{
		SKU: "PG-2", Name: "Acme Air", Price: storagetest.Price("899"), InStock: false,
		CategoryID: &laptops.ID, BrandID: &acme.ID,
		Specifications: storage.Specs{"ram_gb": "16"},
	}
	require.NoError(t, repos.Products.Create(ctx, air))

	cat, err := repos.Categories.FindBySlugOrName(ctx, "LAPTOPS")
	require.NoError(t, err)
	assert.Equal(t, laptops.ID, cat.ID)

	got, err := repos.Products.Search(ctx, storage.ProductFilter{
		CategoryID: &laptops.ID,
		MaxPrice:   ptrFloat(1500),
		Specs:      []storage.SpecCondition{{Keys: []string{"memory", "ram_gb"}, Values: []string{"32GB", "32"}}},
	}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme Pro"}, names(got))
	assert.Equal(t, "USD 1499.99", got[0].FormattedPrice())

	counts, err := repos.Products.Count(ctx, storage.ProductFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Total)
	assert.Equal(t, 1, counts.InStock)

	vec := make([]float32, storage.EmbeddingDimension)
	vec[0] = 1
	require.NoError(t, repos.Products.UpdateEmbedding(ctx, pro.ID, vec))

	var loaded []storage.ProductEmbedding
	require.NoError(t, repos.Products.ListEmbeddings(ctx, func(e storage.ProductEmbedding) error {
		loaded = append(loaded, e)
		return nil
	}))
	require.Len(t, loaded, 1)
	assert.Equal(t, vec, loaded[0].Vector)

	conv := &storage.Conversation{}
	require.NoError(t, repos.Conversations.Create(ctx, conv))
	require.NoError(t, repos.Conversations.AppendMessage(ctx, &storage.Message{
		ConversationID: conv.ID, Role: storage.RoleAssistant, Content: "Found 1 product",
	}, storage.IDList{pro.ID}))

	reloaded, err := repos.Conversations.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.IDList{pro.ID}, reloaded.LastShownProductIDs)
}
