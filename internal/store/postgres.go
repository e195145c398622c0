package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DoyleJ11/fantasy-draft-backend/internal/config"
	"github.com/DoyleJ11/fantasy-draft-backend/internal/engine"
)

// querier is the subset of *pgxpool.Pool the store uses.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore implements DraftStore over the league application's tables.
type PostgresStore struct {
	db querier
}

func NewPostgresStore(db querier) *PostgresStore {
	return &PostgresStore{db: db}
}

// BuildConnString builds a PostgreSQL connection string from config. A
// configured DSN is used as is.
func BuildConnString(cfg config.DatabaseConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:     "/" + cfg.Name,
		RawQuery: "sslmode=" + url.QueryEscape(sslMode),
	}
	return u.String()
}

// Connect creates a connection pool and pings it.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(BuildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

const (
	selectDraft = `
SELECT league_id, rounds, pick_time_limit_seconds, auto_pick_enabled
FROM drafts
WHERE id = $1`

	selectDraftTeams = `
SELECT team_id, owner_user_id
FROM draft_teams
WHERE draft_id = $1
ORDER BY draft_position`

	selectDraftPlayers = `
SELECT player_id
FROM draft_players
WHERE draft_id = $1
ORDER BY rank`

	selectDraftPicks = `
SELECT pick_number, round, team_id, player_id, auto, made_at
FROM draft_picks
WHERE draft_id = $1
ORDER BY pick_number`

	insertDraftPick = `
INSERT INTO draft_picks (draft_id, pick_number, round, team_id, player_id, auto, made_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (draft_id, pick_number) DO NOTHING`

	selectAutoPickList = `
SELECT player_id
FROM team_autopick_preferences
WHERE team_id = $1
ORDER BY preference`
)

// LoadDraftRoster loads teams, the full ranked player pool and committed
// picks. Drafted players stay in Players; engine.Replay removes them.
func (s *PostgresStore) LoadDraftRoster(ctx context.Context, draftID string) (Roster, error) {
	r := Roster{DraftID: draftID}

	err := s.db.QueryRow(ctx, selectDraft, draftID).Scan(
		&r.LeagueID, &r.Settings.Rounds, &r.Settings.PickTimeLimitSeconds, &r.Settings.AutoPickEnabled,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Roster{}, fmt.Errorf("load roster %s: %w", draftID, ErrDraftNotFound)
	}
	if err != nil {
		return Roster{}, fmt.Errorf("load draft %s: %w", draftID, err)
	}

	rows, err := s.db.Query(ctx, selectDraftTeams, draftID)
	if err != nil {
		return Roster{}, fmt.Errorf("load teams: %w", err)
	}
	r.Teams, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (engine.TeamRecord, error) {
		var t engine.TeamRecord
		err := row.Scan(&t.ID, &t.OwnerID)
		return t, err
	})
	if err != nil {
		return Roster{}, fmt.Errorf("scan teams: %w", err)
	}

	rows, err = s.db.Query(ctx, selectDraftPlayers, draftID)
	if err != nil {
		return Roster{}, fmt.Errorf("load players: %w", err)
	}
	r.Players, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return Roster{}, fmt.Errorf("scan players: %w", err)
	}

	rows, err = s.db.Query(ctx, selectDraftPicks, draftID)
	if err != nil {
		return Roster{}, fmt.Errorf("load picks: %w", err)
	}
	r.Picks, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (engine.Pick, error) {
		var p engine.Pick
		err := row.Scan(&p.Number, &p.Round, &p.TeamID, &p.PlayerID, &p.Auto, &p.MadeAt)
		return p, err
	})
	if err != nil {
		return Roster{}, fmt.Errorf("scan picks: %w", err)
	}
	return r, nil
}

// AppendPick is idempotent per (draft, pick number).
func (s *PostgresStore) AppendPick(ctx context.Context, draftID string, p engine.Pick) error {
	_, err := s.db.Exec(ctx, insertDraftPick, draftID, p.Number, p.Round, p.TeamID, p.PlayerID, p.Auto, p.MadeAt)
	if err != nil {
		return fmt.Errorf("append pick %d to %s: %w", p.Number, draftID, err)
	}
	return nil
}

func (s *PostgresStore) LoadAutoPickList(ctx context.Context, teamID string) ([]string, error) {
	rows, err := s.db.Query(ctx, selectAutoPickList, teamID)
	if err != nil {
		return nil, fmt.Errorf("load autopick list %s: %w", teamID, err)
	}
	list, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan autopick list %s: %w", teamID, err)
	}
	return list, nil
}
