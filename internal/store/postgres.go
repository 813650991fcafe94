package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"logistrans/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(ctx context.Context, dsn string, maxOpen int) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

// schema is applied by Migrate. Every statement is idempotent.
var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
	`CREATE TABLE IF NOT EXISTS locations (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		route_id UUID NOT NULL,
		vehicle_id UUID NOT NULL,
		driver_id UUID NOT NULL,
		latitude DOUBLE PRECISION NOT NULL,
		longitude DOUBLE PRECISION NOT NULL,
		speed DOUBLE PRECISION NOT NULL DEFAULT 0,
		heading DOUBLE PRECISION NOT NULL DEFAULT 0,
		timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_locations_route_id ON locations(route_id)`,
	`CREATE INDEX IF NOT EXISTS idx_locations_timestamp ON locations(timestamp)`,
}

// Migrate creates the tables and indexes the store needs.
func (p *Postgres) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	return nil
}

const locationColumns = `id, route_id, vehicle_id, driver_id, latitude, longitude, speed, heading, timestamp`

func (p *Postgres) InsertLocation(ctx context.Context, in model.UpdateLocationRequest) (model.Location, error) {
	row := p.db.QueryRowContext(ctx,
		`INSERT INTO locations (id, route_id, vehicle_id, driver_id, latitude, longitude, speed, heading)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 RETURNING `+locationColumns,
		uuid.New(), in.RouteID, in.VehicleID, in.DriverID, in.Latitude, in.Longitude, in.Speed, in.Heading)
	loc, err := scanLocation(row)
	if err != nil {
		return model.Location{}, fmt.Errorf("insert location: %w", err)
	}
	return loc, nil
}

func (p *Postgres) LatestLocation(ctx context.Context, routeID uuid.UUID) (model.Location, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+locationColumns+` FROM locations WHERE route_id=$1 ORDER BY timestamp DESC LIMIT 1`, routeID)
	loc, err := scanLocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Location{}, ErrNotFound
	}
	if err != nil {
		return model.Location{}, fmt.Errorf("latest location: %w", err)
	}
	return loc, nil
}

func (p *Postgres) LocationHistory(ctx context.Context, routeID uuid.UUID) ([]model.Location, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+locationColumns+` FROM locations WHERE route_id=$1 ORDER BY timestamp ASC`, routeID)
	if err != nil {
		return nil, fmt.Errorf("location history: %w", err)
	}
	defer rows.Close()
	out := []model.Location{}
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, rows.Err()
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanLocation(s scanner) (model.Location, error) {
	var l model.Location
	err := s.Scan(&l.ID, &l.RouteID, &l.VehicleID, &l.DriverID,
		&l.Latitude, &l.Longitude, &l.Speed, &l.Heading, &l.Timestamp)
	if err == nil {
		l.Timestamp = l.Timestamp.UTC()
	}
	return l, err
}
