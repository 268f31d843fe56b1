package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qbeAdmin/internal/models"
)

func TestSavedQueryRepo_CreateAndGet(t *testing.T) {
	_, r := setupRepos(t)
	ctx := context.Background()

	owner := createUser(t, r, "alice@example.com", false)
	created := createQuery(t, r, owner, "signups")
	assert.NotZero(t, created.ID)
	assert.False(t, created.DateCreated.IsZero())

	got, err := r.queries.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "signups", got.Name)
	assert.Equal(t, owner.ID, got.OwnerID)
	assert.Equal(t, "alice@example.com", got.OwnerEmail)
	assert.Equal(t, created.QueryData, got.QueryData)
	assert.Equal(t, "hash-signups", got.QueryHash)
}

func TestSavedQueryRepo_GetMissing(t *testing.T) {
	_, r := setupRepos(t)

	_, err := r.queries.Get(context.Background(), 42)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestSavedQueryRepo_Update(t *testing.T) {
	_, r := setupRepos(t)
	ctx := context.Background()

	owner := createUser(t, r, "alice@example.com", false)
	q := createQuery(t, r, owner, "signups")

	q.Name = "weekly signups"
	q.Description = "grouped by week"
	require.NoError(t, r.queries.Update(ctx, q))

	got, err := r.queries.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, "weekly signups", got.Name)
	assert.Equal(t, "grouped by week", got.Description)

	err = r.queries.Update(ctx, &models.SavedQuery{ID: 999, Name: "x"})
	assert.True(t, IsNotFound(err))
}

func TestSavedQueryRepo_DeleteCascadesGrants(t *testing.T) {
	_, r := setupRepos(t)
	ctx := context.Background()

	owner := createUser(t, r, "alice@example.com", false)
	bob := createUser(t, r, "bob@example.com", false)
	q := createQuery(t, r, owner, "signups")

	grant := &models.SavedQueryPermission{QueryID: q.ID, UserID: &bob.ID, CanRun: true}
	require.NoError(t, r.perms.Create(ctx, grant))

	require.NoError(t, r.queries.Delete(ctx, q.ID))

	_, err := r.perms.Get(ctx, grant.ID)
	assert.True(t, IsNotFound(err))
	assert.True(t, IsNotFound(r.queries.Delete(ctx, q.ID)))
}

func TestSavedQueryRepo_ListVisible(t *testing.T) {
	_, r := setupRepos(t)
	ctx := context.Background()

	root := createUser(t, r, "root@example.com", true)
	alice := createUser(t, r, "alice@example.com", false)
	bob := createUser(t, r, "bob@example.com", false)
	carol := createUser(t, r, "carol@example.com", false)

	own := createQuery(t, r, bob, "bob-own")
	direct := createQuery(t, r, alice, "direct")
	viaGroup := createQuery(t, r, alice, "via-group")
	denied := createQuery(t, r, alice, "denied")
	createQuery(t, r, alice, "private")

	analysts := &models.Group{Name: "analysts"}
	require.NoError(t, r.groups.Create(ctx, analysts))
	require.NoError(t, r.groups.AddMember(ctx, "analysts", bob.Email))

	require.NoError(t, r.perms.Create(ctx, &models.SavedQueryPermission{QueryID: direct.ID, UserID: &bob.ID, CanRun: true}))
	require.NoError(t, r.perms.Create(ctx, &models.SavedQueryPermission{QueryID: viaGroup.ID, GroupID: &analysts.ID, CanRun: true}))
	require.NoError(t, r.perms.Create(ctx, &models.SavedQueryPermission{QueryID: denied.ID, UserID: &bob.ID, CanRun: false}))

	visible, err := r.queries.ListVisible(ctx, bob)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{own.Name, direct.Name, viaGroup.Name}, queryNames(visible))

	visible, err = r.queries.ListVisible(ctx, carol)
	require.NoError(t, err)
	assert.Empty(t, visible)

	visible, err = r.queries.ListVisible(ctx, root)
	require.NoError(t, err)
	assert.Len(t, visible, 5)

	all, err := r.queries.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestSavedQueryRepo_UndecodableQueryData(t *testing.T) {
	db, r := setupRepos(t)
	ctx := context.Background()

	owner := createUser(t, r, "alice@example.com", false)
	q := createQuery(t, r, owner, "signups")
	_, err := db.ExecContext(ctx, `UPDATE saved_queries SET query_data = ? WHERE id = ?`, "not json", q.ID)
	require.NoError(t, err)

	_, err = r.queries.Get(ctx, q.ID)
	var dbErr *DatabaseError
	require.ErrorAs(t, err, &dbErr)
	assert.Equal(t, ErrTypeEncoding, dbErr.Type)
	assert.False(t, IsNotFound(err))

	_, err = r.queries.List(ctx)
	require.ErrorAs(t, err, &dbErr)
	assert.Equal(t, ErrTypeEncoding, dbErr.Type)
}
