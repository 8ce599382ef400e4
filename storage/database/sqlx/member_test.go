//go:build integration

package sqlxrepos

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/member"
	"github.com/trezcool/maktaba/tests"
)

func TestMemberRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.PreparePostgres(t)
	repo := NewMemberRepository(sqlx.NewDb(db, "postgres"))

	amina := testutil.CreateMember(t, repo, "greenwood", member.KindStudent, "Amina", testutil.InClass("5A"))
	otieno := testutil.CreateMember(t, repo, "greenwood", member.KindTeacher, "Otieno")
	testutil.CreateMember(t, repo, "riverside", member.KindStudent, "Baraka", testutil.InClass("5A"))

	got, err := repo.GetMember(ctx, member.GetFilter{ID: amina.ID, School: "greenwood", Kinds: []member.Kind{member.KindStudent}})
	require.NoError(t, err)
	assert.Equal(t, amina.Name, got.Name)

	_, err = repo.GetMember(ctx, member.GetFilter{ID: amina.ID, Kinds: []member.Kind{member.KindTeacher, member.KindLibrarian}})
	assert.Equal(t, member.ErrNotFound, err)

	members, err := repo.QueryMembers(ctx, member.QueryFilter{School: "greenwood", Class: "5a"}, nil)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, amina.ID, members[0].ID)

	members, err = repo.QueryMembers(ctx, member.QueryFilter{School: "greenwood"}, []core.DBOrdering{{Field: "name", Ascending: false}, {Field: "bogus; DROP TABLE members"}})
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, otieno.ID, members[0].ID)

	members, err = repo.GetMembersByID(ctx, "greenwood", []string{amina.ID, otieno.ID, "ghost"})
	require.NoError(t, err)
	assert.Len(t, members, 2)
}
