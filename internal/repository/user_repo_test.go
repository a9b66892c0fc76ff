package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/toolbox_server/internal/model"
	"github.com/qs3c/toolbox_server/internal/testutil"
)

func TestUserRepository_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)

	user := &model.User{Email: "new@example.com", FullName: "New User", IsActive: true}
	require.NoError(t, repo.Create(user))
	assert.NotZero(t, user.ID)

	// 邮箱唯一
	err := repo.Create(&model.User{Email: "new@example.com"})
	assert.Error(t, err)
}

func TestUserRepository_CreateInactive(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)

	user := &model.User{Email: "disabled@example.com", FullName: "Disabled", IsActive: false}
	require.NoError(t, repo.Create(user))
	assert.False(t, user.IsActive)

	stored, err := repo.GetByID(user.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
}

func TestUserRepository_GetByID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)
	created := testutil.TestUser(t, db)

	found, err := repo.GetByID(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Email, found.Email)

	_, err = repo.GetByID(99999)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestUserRepository_GetByEmail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)
	created := testutil.TestUser(t, db, testutil.WithEmail("alice@example.com"))

	found, err := repo.GetByEmail("alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	exists, err := repo.ExistsByEmail("alice@example.com")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsByEmail("bob@example.com")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUserRepository_LockByID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)
	created := testutil.TestUser(t, db)

	err := db.Transaction(func(tx *gorm.DB) error {
		u, err := repo.WithTx(tx).LockByID(created.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, created.ID, u.ID)
		return nil
	})
	require.NoError(t, err)
}

func TestUserRepository_UpdateFields(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)
	created := testutil.TestUser(t, db)

	require.NoError(t, repo.UpdateFields(created.ID, map[string]interface{}{
		"is_active": false,
		"full_name": "Renamed",
	}))

	found, err := repo.GetByID(created.ID)
	require.NoError(t, err)
	assert.False(t, found.IsActive)
	assert.Equal(t, "Renamed", found.FullName)
}

func TestUserRepository_ListAndCount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)
	testutil.TestUser(t, db, testutil.WithEmail("alice@example.com"))
	testutil.TestUser(t, db, testutil.WithEmail("bob@example.com"))
	testutil.TestUser(t, db, testutil.WithEmail("carol@example.com"), testutil.WithInactiveUser())

	users, total, err := repo.List(1, 2, "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, users, 2)

	users, total, err = repo.List(1, 10, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "bob@example.com", users[0].Email)

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestUserRepository_CountLoggedInSince(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewUserRepository(db)
	recent := testutil.TestUser(t, db)
	old := testutil.TestUser(t, db)
	testutil.TestUser(t, db)

	now := time.Now().UTC()
	require.NoError(t, repo.UpdateFields(recent.ID, map[string]interface{}{"last_login_at": now.Add(-time.Hour)}))
	require.NoError(t, repo.UpdateFields(old.ID, map[string]interface{}{"last_login_at": now.AddDate(0, 0, -60)}))

	count, err := repo.CountLoggedInSince(now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
