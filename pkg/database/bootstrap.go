package database

import (
	"context"
	"fmt"
)

// globalSchema holds the tables shared by every tenant. They live in the
// public namespace and are never copied into tenant namespaces.
var globalSchema = []string{
	`CREATE TABLE IF NOT EXISTS public.users (
		id            BIGSERIAL PRIMARY KEY,
		username      VARCHAR(100) NOT NULL UNIQUE,
		email         VARCHAR(255) NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		first_name    VARCHAR(100) NOT NULL DEFAULT '',
		last_name     VARCHAR(100) NOT NULL DEFAULT '',
		tenant_id     BIGINT,
		is_approved   BOOLEAN NOT NULL DEFAULT TRUE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS public.tenants (
		id         BIGSERIAL PRIMARY KEY,
		name       VARCHAR(255) NOT NULL,
		namespace  VARCHAR(63) NOT NULL UNIQUE CHECK (namespace ~ '^[a-zA-Z0-9_]+$'),
		owner_id   BIGINT REFERENCES public.users(id) ON DELETE SET NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS tenants_name_lower_idx ON public.tenants (lower(name))`,
	`DO $$ BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'users_tenant_id_fkey') THEN
			ALTER TABLE public.users ADD CONSTRAINT users_tenant_id_fkey
				FOREIGN KEY (tenant_id) REFERENCES public.tenants(id) ON DELETE SET NULL;
		END IF;
	END $$`,
	`CREATE TABLE IF NOT EXISTS public.roles (
		id   SERIAL PRIMARY KEY,
		name VARCHAR(50) NOT NULL UNIQUE
	)`,
	`INSERT INTO public.roles (name) VALUES
		('Store Owner'), ('Admin'), ('Baker'), ('Cashier'), ('Super Admin')
	 ON CONFLICT (name) DO NOTHING`,
	`CREATE TABLE IF NOT EXISTS public.user_roles (
		user_id BIGINT NOT NULL REFERENCES public.users(id) ON DELETE CASCADE,
		role_id INT NOT NULL REFERENCES public.roles(id) ON DELETE CASCADE,
		PRIMARY KEY (user_id, role_id)
	)`,
	`CREATE TABLE IF NOT EXISTS public.pending_registrations (
		token_hash    CHAR(64) PRIMARY KEY,
		user_id       BIGINT NOT NULL UNIQUE REFERENCES public.users(id) ON DELETE CASCADE,
		business_name VARCHAR(255) NOT NULL,
		expires_at    TIMESTAMPTZ NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS pending_registrations_name_lower_idx
		ON public.pending_registrations (lower(business_name))`,
}

// Bootstrap creates the global tables if they do not exist yet. It is safe
// to run on every start.
func Bootstrap(ctx context.Context, db DBTX) error {
	for i, stmt := range globalSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap statement %d: %w", i+1, err)
		}
	}
	return nil
}
