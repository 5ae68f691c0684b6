package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect opens the database and runs migrations.
func Connect(ctx context.Context, dsn string, logger *slog.Logger) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations applied", "count", len(migrations))
	return db, nil
}

var migrations = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto;`,
	`DO $$ BEGIN
        CREATE TYPE trading_platform AS ENUM ('mt4', 'mt5', 'ctrader');
    EXCEPTION WHEN duplicate_object THEN NULL;
    END $$;`,
	`CREATE TABLE IF NOT EXISTS users (
        id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
        email TEXT NOT NULL UNIQUE,
        password_hash TEXT NOT NULL,
        account_type TEXT NOT NULL CHECK (account_type IN ('buyer', 'seller')),
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`,
	`CREATE TABLE IF NOT EXISTS profiles (
        id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
        username TEXT NOT NULL,
        avatar_url TEXT NOT NULL DEFAULT '',
        account_type TEXT NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`,
	`CREATE TABLE IF NOT EXISTS sessions (
        token TEXT PRIMARY KEY,
        user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        expires_at TIMESTAMPTZ NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`,
	`CREATE TABLE IF NOT EXISTS robots (
        id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
        seller_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        title TEXT NOT NULL,
        description TEXT NOT NULL,
        long_description TEXT NOT NULL DEFAULT '',
        price NUMERIC(12, 2) NOT NULL CHECK (price >= 0),
        platform trading_platform NOT NULL,
        features TEXT[] NOT NULL DEFAULT '{}',
        compatibility TEXT[] NOT NULL DEFAULT '{}',
        images TEXT[] NOT NULL DEFAULT '{}',
        active BOOLEAN NOT NULL DEFAULT TRUE,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`,
	`CREATE TABLE IF NOT EXISTS robot_ratings (
        robot_id UUID NOT NULL REFERENCES robots(id) ON DELETE CASCADE,
        user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        rating SMALLINT NOT NULL CHECK (rating BETWEEN 1 AND 5),
        comment TEXT NOT NULL DEFAULT '',
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        PRIMARY KEY (robot_id, user_id)
    );`,
	`CREATE TABLE IF NOT EXISTS conversations (
        id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
        robot_id UUID NOT NULL REFERENCES robots(id) ON DELETE CASCADE,
        buyer_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        seller_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        CONSTRAINT conversations_triple_key UNIQUE (buyer_id, seller_id, robot_id)
    );`,
	`CREATE TABLE IF NOT EXISTS conversation_messages (
        id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
        conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
        sender_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
        content TEXT NOT NULL CHECK (length(btrim(content)) > 0),
        created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
    );`,
	`CREATE INDEX IF NOT EXISTS conversation_messages_conversation_created_idx
        ON conversation_messages (conversation_id, created_at);`,
	`CREATE OR REPLACE FUNCTION get_robot_rating(robot_id UUID) RETURNS NUMERIC AS $$
        SELECT COALESCE(ROUND(AVG(r.rating)::NUMERIC, 1), 0)
        FROM robot_ratings r WHERE r.robot_id = get_robot_rating.robot_id;
    $$ LANGUAGE sql STABLE;`,
	`CREATE OR REPLACE FUNCTION upsert_robot_rating(p_robot_id UUID, p_user_id UUID, p_rating SMALLINT, p_comment TEXT)
    RETURNS VOID AS $$
        INSERT INTO robot_ratings (robot_id, user_id, rating, comment)
        VALUES (p_robot_id, p_user_id, p_rating, COALESCE(p_comment, ''))
        ON CONFLICT (robot_id, user_id)
        DO UPDATE SET rating = EXCLUDED.rating, comment = EXCLUDED.comment, updated_at = NOW();
    $$ LANGUAGE sql VOLATILE;`,
}

func runMigrations(ctx context.Context, db *sqlx.DB) error {
	for i, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
