package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"qbeAdmin/internal/models"
)

type repos struct {
	users   *UserRepo
	groups  *GroupRepo
	queries *SavedQueryRepo
	perms   *PermissionRepo
}

func setupRepos(t *testing.T) (*sql.DB, repos) {
	t.Helper()
	db := OpenTestDB(t)
	return db, repos{
		users:   NewUserRepo(db),
		groups:  NewGroupRepo(db),
		queries: NewSavedQueryRepo(db),
		perms:   NewPermissionRepo(db),
	}
}

func createUser(t *testing.T, r repos, email string, superuser bool) *models.User {
	t.Helper()
	u := &models.User{Email: email, IsStaff: true, IsSuperuser: superuser}
	require.NoError(t, r.users.Create(context.Background(), u))
	return u
}

func createQuery(t *testing.T, r repos, owner *models.User, name string) *models.SavedQuery {
	t.Helper()
	q := &models.SavedQuery{
		Name:    name,
		OwnerID: owner.ID,
		QueryData: models.QueryDefinition{
			Rows: []models.QueryRow{{Model: "auth.User", Field: name, Show: true}},
		},
		QueryHash: "hash-" + name,
	}
	require.NoError(t, r.queries.Create(context.Background(), q))
	return q
}

func queryNames(queries []models.SavedQuery) []string {
	names := make([]string, 0, len(queries))
	for _, q := range queries {
		names = append(names, q.Name)
	}
	return names
}
