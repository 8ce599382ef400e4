package member

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/maktaba/core"
)

var (
	// errors
	ErrNotFound = errors.New("member not found")
)

type (
	Repository interface {
		CreateMember(ctx context.Context, m Member) (Member, error)
		GetMember(ctx context.Context, filter GetFilter) (Member, error)
		// QueryMembers applies AND operation on the available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on Member.Name or Member.Email.
		QueryMembers(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Member, error)
		GetMembersByID(ctx context.Context, school string, ids []string) ([]Member, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Create(ctx context.Context, nm NewMember) (Member, error) {
	now := time.Now().UTC()
	m := Member{
		School:    nm.School,
		Kind:      nm.Kind,
		Name:      nm.Name,
		Email:     nm.Email,
		IsAdmin:   nm.IsAdmin && nm.Kind == KindLibrarian,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if nm.Kind == KindStudent {
		m.Class = nm.Class
	}
	return svc.repo.CreateMember(ctx, m)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Member, error) {
	return svc.repo.GetMember(ctx, GetFilter{ID: id})
}

// Find looks a member up in the directory of the given kind within a school.
func (svc *Service) Find(ctx context.Context, school string, kind Kind, id string) (Member, error) {
	if !kind.IsValid() || id == "" {
		return Member{}, ErrNotFound
	}
	return svc.repo.GetMember(ctx, GetFilter{ID: id, School: school, Kinds: []Kind{kind}})
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Member, error) {
	return svc.repo.QueryMembers(ctx, filter, ordering)
}

// GetMany returns the members of a school found among ids, keyed by ID. Unknown IDs are skipped.
func (svc *Service) GetMany(ctx context.Context, school string, ids []string) (map[string]Member, error) {
	res := make(map[string]Member, len(ids))
	if len(ids) == 0 {
		return res, nil
	}
	members, err := svc.repo.GetMembersByID(ctx, school, uniqueStrings(ids))
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		res[m.ID] = m
	}
	return res, nil
}

func uniqueStrings(ss []string) []string {
	seen := make(map[string]struct{}, len(ss))
	res := make([]string, 0, len(ss))
	for _, s := range ss {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		res = append(res, s)
	}
	return res
}
