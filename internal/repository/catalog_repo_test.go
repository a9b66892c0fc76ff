package repository

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/toolbox_server/internal/model"
	"github.com/qs3c/toolbox_server/internal/testutil"
)

func TestPlanRepository_CreateInactive(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewPlanRepository(db)
	plan := &model.Plan{
		Name:         "Legacy",
		PriceMonthly: decimal.RequireFromString("9.99"),
		PriceYearly:  decimal.RequireFromString("99.00"),
		ToolLimit:    10,
		Features:     model.StringArray{"a", "b"},
		IsActive:     false,
	}
	require.NoError(t, repo.Create(plan))

	found, err := repo.GetByID(plan.ID)
	require.NoError(t, err)
	assert.False(t, found.IsActive)
	assert.Equal(t, model.StringArray{"a", "b"}, found.Features)
	assert.True(t, found.PriceMonthly.Equal(decimal.RequireFromString("9.99")))
}

func TestPlanRepository_List(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewPlanRepository(db)
	testutil.TestPlan(t, db, "Business", -1, testutil.WithPrice("49.99", "499.00"))
	testutil.TestFreePlan(t, db, 5)
	testutil.TestPlan(t, db, "Pro", -1, testutil.WithPrice("19.99", "199.00"))
	testutil.TestPlan(t, db, "Old", 3, testutil.WithInactivePlan())

	all, err := repo.List(false)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	active, err := repo.List(true)
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, "Free", active[0].Name)
	assert.Equal(t, "Pro", active[1].Name)
	assert.Equal(t, "Business", active[2].Name)
}

func TestPlanRepository_ExistsByName(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewPlanRepository(db)
	pro := testutil.TestPlan(t, db, "Pro", -1)

	exists, err := repo.ExistsByName("Pro", 0)
	require.NoError(t, err)
	assert.True(t, exists)

	// 排除自身
	exists, err = repo.ExistsByName("Pro", pro.ID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestToolRepository_CRUD(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewToolRepository(db)
	tool := &model.Tool{Name: "Image Editor", Icon: model.IconImage, IsPremium: true, IsActive: false}
	require.NoError(t, repo.Create(tool))

	found, err := repo.GetByID(tool.ID)
	require.NoError(t, err)
	assert.False(t, found.IsActive)
	assert.True(t, found.IsPremium)
	assert.Equal(t, model.IconImage, found.Icon)

	found.IsActive = true
	found.Description = "edit images"
	require.NoError(t, repo.Update(found))

	testutil.TestTool(t, db, testutil.WithToolName("Data Analyzer"))
	testutil.TestTool(t, db, testutil.WithToolName("Zip"), testutil.WithInactiveTool())

	active, err := repo.List(true)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "Data Analyzer", active[0].Name)
	assert.Equal(t, "Image Editor", active[1].Name)

	count, err := repo.Count(false)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	exists, err := repo.ExistsByName("Zip", 0)
	require.NoError(t, err)
	assert.True(t, exists)
}
