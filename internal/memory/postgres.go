package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists the session tier in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			tenant_id TEXT NOT NULL,
			external_user_id TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			channel TEXT NOT NULL,
			member_id TEXT NOT NULL DEFAULT '',
			last_active_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (tenant_id, external_user_id),
			UNIQUE (tenant_id, conversation_id)
		);`,
		`CREATE TABLE IF NOT EXISTS turns (
			id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			channel TEXT NOT NULL DEFAULT '',
			intent_label TEXT NOT NULL DEFAULT '',
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (tenant_id, conversation_id, sequence),
			FOREIGN KEY (tenant_id, conversation_id)
				REFERENCES conversations (tenant_id, conversation_id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_turns_created ON turns (tenant_id, conversation_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS override_audits (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			draft_id TEXT NOT NULL,
			operator_id TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			original_text TEXT NOT NULL,
			override_text TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_override_audits_conv ON override_audits (tenant_id, conversation_id, created_at DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) UpsertConversation(ctx context.Context, rec ConversationRecord) error {
	if rec.LastActiveAt.IsZero() {
		rec.LastActiveAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (tenant_id, external_user_id, conversation_id, channel, member_id, last_active_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (tenant_id, external_user_id) DO UPDATE SET
			channel = EXCLUDED.channel,
			member_id = EXCLUDED.member_id,
			last_active_at = EXCLUDED.last_active_at`,
		rec.TenantID,
		rec.ExternalUserID,
		rec.ConversationID,
		rec.Channel,
		rec.MemberID,
		rec.LastActiveAt,
	)
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveTurn(ctx context.Context, turn Turn) error {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO turns (id, tenant_id, conversation_id, sequence, role, content, channel, intent_label, confidence, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (tenant_id, conversation_id, sequence) DO NOTHING`,
		turn.ID,
		turn.TenantID,
		turn.ConversationID,
		turn.Sequence,
		string(turn.Role),
		turn.Text,
		turn.Channel,
		turn.IntentLabel,
		turn.Confidence,
		turn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save turn: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentTurns(ctx context.Context, key Key, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, conversation_id, sequence, role, content, channel, intent_label, confidence, created_at
		 FROM turns WHERE tenant_id=$1 AND conversation_id=$2
		 ORDER BY sequence DESC LIMIT $3`,
		key.TenantID,
		key.ConversationID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent turns: %w", err)
	}
	defer rows.Close()

	items := make([]Turn, 0, limit)
	for rows.Next() {
		var t Turn
		var role string
		if err := rows.Scan(&t.ID, &t.TenantID, &t.ConversationID, &t.Sequence, &role, &t.Text, &t.Channel, &t.IntentLabel, &t.Confidence, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		t.Role = Role(role)
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}

	// Reverse into chronological order for prompt coherence.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}

	return items, nil
}

func (s *PostgresStore) DeleteConversation(ctx context.Context, key Key) error {
	// Turns cascade from the conversation row; audits are removed explicitly.
	_, err := s.pool.Exec(ctx,
		`DELETE FROM override_audits WHERE tenant_id=$1 AND conversation_id=$2`,
		key.TenantID, key.ConversationID,
	)
	if err != nil {
		return fmt.Errorf("delete override audits: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`DELETE FROM conversations WHERE tenant_id=$1 AND conversation_id=$2`,
		key.TenantID, key.ConversationID,
	)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveOverrideAudit(ctx context.Context, audit OverrideAudit) error {
	if audit.ID == "" {
		audit.ID = uuid.NewString()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO override_audits (id, tenant_id, conversation_id, draft_id, operator_id, reason, original_text, override_text, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		audit.ID,
		audit.TenantID,
		audit.ConversationID,
		audit.DraftID,
		audit.OperatorID,
		audit.Reason,
		audit.OriginalText,
		audit.OverrideText,
		audit.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save override audit: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListOverrideAudits(ctx context.Context, key Key, limit int) ([]OverrideAudit, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, conversation_id, draft_id, operator_id, reason, original_text, override_text, created_at
		 FROM override_audits WHERE tenant_id=$1 AND conversation_id=$2
		 ORDER BY created_at DESC LIMIT $3`,
		key.TenantID, key.ConversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query override audits: %w", err)
	}
	defer rows.Close()

	items := make([]OverrideAudit, 0, limit)
	for rows.Next() {
		var a OverrideAudit
		if err := rows.Scan(&a.ID, &a.TenantID, &a.ConversationID, &a.DraftID, &a.OperatorID, &a.Reason, &a.OriginalText, &a.OverrideText, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
