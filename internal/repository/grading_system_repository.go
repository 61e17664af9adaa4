package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/basic-school-api/internal/models"
)

const gradingSystemColumns = "id, name, description, is_active, created_at, updated_at"

// GradingSystemRepository persists grading systems and their bands.
type GradingSystemRepository struct {
	db *sqlx.DB
}

// NewGradingSystemRepository creates a new repository instance.
func NewGradingSystemRepository(db *sqlx.DB) *GradingSystemRepository {
	return &GradingSystemRepository{db: db}
}

// List returns every grading system with its bands, active first.
func (r *GradingSystemRepository) List(ctx context.Context) ([]models.GradingSystem, error) {
	query := fmt.Sprintf("SELECT %s FROM grading_systems ORDER BY is_active DESC, updated_at DESC", gradingSystemColumns)
	var systems []models.GradingSystem
	if err := r.db.SelectContext(ctx, &systems, query); err != nil {
		return nil, fmt.Errorf("list grading systems: %w", err)
	}
	for i := range systems {
		bands, err := r.loadBands(ctx, systems[i].ID)
		if err != nil {
			return nil, err
		}
		systems[i].Bands = bands
	}
	return systems, nil
}

// FindByID returns a grading system by ID with bands.
func (r *GradingSystemRepository) FindByID(ctx context.Context, id string) (*models.GradingSystem, error) {
	query := fmt.Sprintf("SELECT %s FROM grading_systems WHERE id = $1", gradingSystemColumns)
	return r.findOne(ctx, query, id)
}

// FindActive returns the active grading system. sql.ErrNoRows when none is active.
func (r *GradingSystemRepository) FindActive(ctx context.Context) (*models.GradingSystem, error) {
	query := fmt.Sprintf("SELECT %s FROM grading_systems WHERE is_active = TRUE ORDER BY updated_at DESC LIMIT 1", gradingSystemColumns)
	return r.findOne(ctx, query)
}

func (r *GradingSystemRepository) findOne(ctx context.Context, query string, args ...interface{}) (*models.GradingSystem, error) {
	var system models.GradingSystem
	if err := r.db.GetContext(ctx, &system, query, args...); err != nil {
		return nil, err
	}
	bands, err := r.loadBands(ctx, system.ID)
	if err != nil {
		return nil, err
	}
	system.Bands = bands
	return &system, nil
}

// Create inserts a grading system with its bands. When the system is active,
// every other system is deactivated in the same transaction.
func (r *GradingSystemRepository) Create(ctx context.Context, system *models.GradingSystem) error {
	if system.ID == "" {
		system.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if system.CreatedAt.IsZero() {
		system.CreatedAt = now
	}
	system.UpdatedAt = now

	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		if system.IsActive {
			if err := deactivateOthersTx(ctx, tx, system.ID, now); err != nil {
				return err
			}
		}
		const insert = `INSERT INTO grading_systems (id, name, description, is_active, created_at, updated_at)
        VALUES (:id, :name, :description, :is_active, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, insert, system); err != nil {
			return fmt.Errorf("insert grading system: %w", err)
		}
		return r.replaceBandsTx(ctx, tx, system.ID, system.Bands)
	})
}

// Update rewrites name, description and the whole band list atomically.
// sql.ErrNoRows when the system does not exist.
func (r *GradingSystemRepository) Update(ctx context.Context, system *models.GradingSystem) error {
	system.UpdatedAt = time.Now().UTC()
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		const update = `UPDATE grading_systems SET name = :name, description = :description, updated_at = :updated_at WHERE id = :id`
		res, err := tx.NamedExecContext(ctx, update, system)
		if err != nil {
			return fmt.Errorf("update grading system: %w", err)
		}
		if err := requireAffected(res); err != nil {
			return err
		}
		return r.replaceBandsTx(ctx, tx, system.ID, system.Bands)
	})
}

// Activate makes id the only active grading system.
func (r *GradingSystemRepository) Activate(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := deactivateOthersTx(ctx, tx, id, now); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "UPDATE grading_systems SET is_active = TRUE, updated_at = $2 WHERE id = $1", id, now)
		if err != nil {
			return fmt.Errorf("activate grading system: %w", err)
		}
		return requireAffected(res)
	})
}

func (r *GradingSystemRepository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit grading system: %w", err)
	}
	return nil
}

func deactivateOthersTx(ctx context.Context, tx *sqlx.Tx, keepID string, now time.Time) error {
	const query = `UPDATE grading_systems SET is_active = FALSE, updated_at = $2 WHERE is_active = TRUE AND id <> $1`
	if _, err := tx.ExecContext(ctx, query, keepID, now); err != nil {
		return fmt.Errorf("deactivate grading systems: %w", err)
	}
	return nil
}

// replaceBandsTx rewrites the bands of a grading system in a transaction.
func (r *GradingSystemRepository) replaceBandsTx(ctx context.Context, tx *sqlx.Tx, systemID string, bands []models.GradingSystemBand) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM grading_system_bands WHERE grading_system_id = $1", systemID); err != nil {
		return fmt.Errorf("clear grading system bands: %w", err)
	}
	const insertBand = `INSERT INTO grading_system_bands (id, grading_system_id, code, name, min_percentage, max_percentage, sort_order)
        VALUES (:id, :grading_system_id, :code, :name, :min_percentage, :max_percentage, :sort_order)`
	for i := range bands {
		if bands[i].ID == "" {
			bands[i].ID = uuid.NewString()
		}
		bands[i].GradingSystemID = systemID
		if _, err := tx.NamedExecContext(ctx, insertBand, bands[i]); err != nil {
			return fmt.Errorf("insert grading system band: %w", err)
		}
	}
	return nil
}

func (r *GradingSystemRepository) loadBands(ctx context.Context, systemID string) ([]models.GradingSystemBand, error) {
	const query = `SELECT id, grading_system_id, code, name, min_percentage, max_percentage, sort_order
        FROM grading_system_bands WHERE grading_system_id = $1 ORDER BY sort_order, min_percentage DESC`
	var bands []models.GradingSystemBand
	if err := r.db.SelectContext(ctx, &bands, query, systemID); err != nil {
		return nil, fmt.Errorf("load grading system bands: %w", err)
	}
	return bands, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
