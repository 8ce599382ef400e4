package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/member"
)

const memberColumns = "id, school, kind, name, email, class, is_admin, is_active, created_at, updated_at"

// memberOrderingColumns are the columns members may be sorted by.
var memberOrderingColumns = map[string]bool{
	"name": true, "kind": true, "class": true, "email": true, "created_at": true,
}

type memberRow struct {
	ID        string    `db:"id"`
	School    string    `db:"school"`
	Kind      string    `db:"kind"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	Class     string    `db:"class"`
	IsAdmin   bool      `db:"is_admin"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r memberRow) member() member.Member {
	return member.Member{
		ID:        r.ID,
		School:    r.School,
		Kind:      member.Kind(r.Kind),
		Name:      r.Name,
		Email:     r.Email,
		Class:     r.Class,
		IsAdmin:   r.IsAdmin,
		IsActive:  r.IsActive,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func toMembers(rows []memberRow) []member.Member {
	members := make([]member.Member, 0, len(rows))
	for _, r := range rows {
		members = append(members, r.member())
	}
	return members
}

type memberRepository struct {
	db *sqlx.DB
}

var _ member.Repository = (*memberRepository)(nil) // interface compliance check

func NewMemberRepository(db *sqlx.DB) *memberRepository {
	return &memberRepository{db: db}
}

func (repo memberRepository) CreateMember(ctx context.Context, m member.Member) (member.Member, error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	row := memberRow{
		ID:        m.ID,
		School:    m.School,
		Kind:      string(m.Kind),
		Name:      m.Name,
		Email:     m.Email,
		Class:     m.Class,
		IsAdmin:   m.IsAdmin,
		IsActive:  m.IsActive,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
	q := `INSERT INTO members (` + memberColumns + `)
		VALUES (:id, :school, :kind, :name, :email, :class, :is_admin, :is_active, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return member.Member{}, errors.Wrap(err, "inserting member")
	}
	return row.member(), nil
}

func (repo memberRepository) GetMember(ctx context.Context, filter member.GetFilter) (member.Member, error) {
	where := []string{"id = ?"}
	args := []interface{}{filter.ID}
	if filter.School != "" {
		where = append(where, "school = ?")
		args = append(args, filter.School)
	}
	if len(filter.Kinds) > 0 {
		kinds := make([]string, 0, len(filter.Kinds))
		for _, k := range filter.Kinds {
			kinds = append(kinds, string(k))
		}
		where = append(where, "kind IN (?)")
		args = append(args, kinds)
	}

	q, args, err := sqlx.In(`SELECT `+memberColumns+` FROM members WHERE `+strings.Join(where, " AND "), args...)
	if err != nil {
		return member.Member{}, errors.Wrap(err, "building member query")
	}

	var row memberRow
	if err = repo.db.GetContext(ctx, &row, repo.db.Rebind(q), args...); err != nil {
		if err == sql.ErrNoRows {
			return member.Member{}, member.ErrNotFound
		}
		return member.Member{}, errors.Wrap(err, "finding member")
	}
	return row.member(), nil
}

func (repo memberRepository) QueryMembers(ctx context.Context, filter member.QueryFilter, ordering []core.DBOrdering) ([]member.Member, error) {
	where := []string{"TRUE"}
	var args []interface{}
	if filter.School != "" {
		where = append(where, "school = ?")
		args = append(args, filter.School)
	}
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.Class != "" {
		where = append(where, "LOWER(class) = LOWER(?)")
		args = append(args, filter.Class)
	}
	// members with Name or Email matching the search keyword
	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		where = append(where, "(name ILIKE ? OR email ILIKE ?)")
		args = append(args, val, val)
	}

	orderList := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if memberOrderingColumns[ord.Field] {
			orderList = append(orderList, ord.String())
		}
	}
	orderList = append(orderList, "name ASC")

	q := `SELECT ` + memberColumns + ` FROM members WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY ` + strings.Join(orderList, ", ")

	var rows []memberRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying members")
	}
	return toMembers(rows), nil
}

func (repo memberRepository) GetMembersByID(ctx context.Context, school string, ids []string) ([]member.Member, error) {
	if len(ids) == 0 {
		return []member.Member{}, nil
	}

	query := `SELECT ` + memberColumns + ` FROM members WHERE id IN (?)`
	args := []interface{}{ids}
	if school != "" {
		query += ` AND school = ?`
		args = append(args, school)
	}
	q, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "building members query")
	}

	var rows []memberRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "finding members")
	}
	return toMembers(rows), nil
}
