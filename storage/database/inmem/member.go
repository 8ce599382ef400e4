package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/member"
)

type memberRepository struct {
	db *memberTable
}

var _ member.Repository = (*memberRepository)(nil) // interface compliance check

func NewMemberRepository(db *DB) member.Repository {
	return &memberRepository{db: db.member}
}

func (repo *memberRepository) CreateMember(_ context.Context, m member.Member) (member.Member, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	repo.db.table[m.ID] = &m
	return m, nil
}

func (repo *memberRepository) GetMember(_ context.Context, filter member.GetFilter) (member.Member, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	m, ok := repo.db.table[filter.ID]
	if !ok || (filter.School != "" && m.School != filter.School) {
		return member.Member{}, member.ErrNotFound
	}
	if len(filter.Kinds) > 0 {
		var match bool
		for _, k := range filter.Kinds {
			if m.Kind == k {
				match = true
				break
			}
		}
		if !match {
			return member.Member{}, member.ErrNotFound
		}
	}
	return *m, nil
}

func (repo *memberRepository) QueryMembers(_ context.Context, filter member.QueryFilter, ordering []core.DBOrdering) ([]member.Member, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	search := strings.ToLower(filter.Search)
	members := make([]member.Member, 0)
	for _, m := range repo.db.table {
		if filter.School != "" && m.School != filter.School {
			continue
		}
		if filter.Kind != "" && m.Kind != filter.Kind {
			continue
		}
		if filter.Class != "" && !strings.EqualFold(m.Class, filter.Class) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(m.Name), search) && !strings.Contains(m.Email, search) {
			continue
		}
		members = append(members, *m)
	}

	sort.SliceStable(members, func(i, j int) bool {
		for _, ord := range ordering {
			a, b := memberColumn(members[i], ord.Field), memberColumn(members[j], ord.Field)
			if a == b {
				continue
			}
			if ord.Ascending {
				return a < b
			}
			return a > b
		}
		return members[i].Name < members[j].Name
	})
	return members, nil
}

func (repo *memberRepository) GetMembersByID(_ context.Context, school string, ids []string) ([]member.Member, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	members := make([]member.Member, 0, len(ids))
	for _, id := range ids {
		if m, ok := repo.db.table[id]; ok && (school == "" || m.School == school) {
			members = append(members, *m)
		}
	}
	return members, nil
}

func memberColumn(m member.Member, col string) string {
	switch col {
	case "kind":
		return string(m.Kind)
	case "class":
		return m.Class
	case "email":
		return m.Email
	case "created_at":
		return m.CreatedAt.Format("2006-01-02T15:04:05.000000000")
	default:
		return strings.ToLower(m.Name)
	}
}
