package transitdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"wayfinder.transitlab.org/internal/models"
)

func TestBuildStopIndexAndQuery(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Queries.UpsertAgency(ctx, models.Agency{ID: "metro", Name: "Metro"}))
	require.NoError(t, client.ReplaceAgencyData(ctx, testDataset("metro")))

	index, err := BuildStopIndex(ctx, client.Queries)
	require.NoError(t, err)
	assert.Equal(t, 3, index.Len())
}

func TestStopsNearSortsAscendingByDistance(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Queries.UpsertAgency(ctx, models.Agency{ID: "metro", Name: "Metro"}))
	require.NoError(t, client.ReplaceAgencyData(ctx, testDataset("metro")))

	index, err := BuildStopIndex(ctx, client.Queries)
	require.NoError(t, err)

	// Query point sits on the first stop; the dataset spaces stops ~1.1km apart.
	near := index.StopsNear(models.Location{Lat: 47.6, Lon: -122.33}, 2000, 10)
	require.Len(t, near, 2)
	assert.Equal(t, "metro_s1", near[0].ID)
	assert.Equal(t, "metro_s2", near[1].ID)
	assert.True(t, near[0].Distance <= near[1].Distance)
	for _, stop := range near {
		assert.LessOrEqual(t, stop.Distance, 2000.0)
	}
}

func TestStopsNearHonorsMaxResults(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Queries.UpsertAgency(ctx, models.Agency{ID: "metro", Name: "Metro"}))
	require.NoError(t, client.ReplaceAgencyData(ctx, testDataset("metro")))

	index, err := BuildStopIndex(ctx, client.Queries)
	require.NoError(t, err)

	near := index.StopsNear(models.Location{Lat: 47.61, Lon: -122.33}, 5000, 1)
	require.Len(t, near, 1)
	assert.Equal(t, "metro_s2", near[0].ID)
}

func TestStopsNearEmptyIndex(t *testing.T) {
	client := newTestClient(t)

	index, err := BuildStopIndex(context.Background(), client.Queries)
	require.NoError(t, err)
	assert.Equal(t, 0, index.Len())
	assert.Empty(t, index.StopsNear(models.Location{Lat: 47.6, Lon: -122.33}, 500, 10))
}
