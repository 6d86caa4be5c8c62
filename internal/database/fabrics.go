package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/maltedev/fabric-catalog/internal/models"
)

var (
	ErrNotFound      = errors.New("fabric not found")
	ErrDuplicateURL  = errors.New("fabric url already exists")
	ErrInvalidRating = errors.New("invalid rating")
)

const (
	DefaultCurrency = "USD"
	DefaultLimit    = 100
	MaxLimit        = 1000

	uniqueViolation = "23505"
)

const fabricColumns = `id, name, url, origin, rating, price, currency, composition,
	description, image_path, image_paths, width, weight, care_instructions,
	color, pattern, brand, extra_info, created_at, updated_at, last_scraped`

// FabricRepository stores catalog entries. Every write also records an
// outbox event in the same transaction.
type FabricRepository struct {
	db     *DB
	outbox *OutboxRepository
}

func NewFabricRepository(db *DB, outbox *OutboxRepository) *FabricRepository {
	return &FabricRepository{db: db, outbox: outbox}
}

func scanFabric(row pgx.Row) (*models.Fabric, error) {
	var (
		f          models.Fabric
		rating     string
		imagePaths []byte
	)
	err := row.Scan(
		&f.ID, &f.Name, &f.URL, &f.Origin, &rating, &f.Price, &f.Currency, &f.Composition,
		&f.Description, &f.ImagePath, &imagePaths, &f.Width, &f.Weight, &f.CareInstructions,
		&f.Color, &f.Pattern, &f.Brand, &f.ExtraInfo, &f.CreatedAt, &f.UpdatedAt, &f.LastScraped,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan fabric: %w", err)
	}

	f.Rating = models.Rating(rating)
	if len(imagePaths) > 0 {
		if err := json.Unmarshal(imagePaths, &f.ImagePaths); err != nil {
			return nil, fmt.Errorf("failed to decode image paths: %w", err)
		}
	}
	return &f, nil
}

func imagePathsJSON(imagePath *string) []byte {
	if imagePath == nil || *imagePath == "" {
		return nil
	}
	data, _ := json.Marshal([]string{*imagePath})
	return data
}

func (r *FabricRepository) ExistsByURL(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := r.db.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM fabrics WHERE url = $1)", url).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check fabric url: %w", err)
	}
	return exists, nil
}

func (r *FabricRepository) GetByURL(ctx context.Context, url string) (*models.Fabric, error) {
	return scanFabric(r.db.pool.QueryRow(ctx,
		"SELECT "+fabricColumns+" FROM fabrics WHERE url = $1", url))
}

func (r *FabricRepository) Get(ctx context.Context, id int64) (*models.Fabric, error) {
	return scanFabric(r.db.pool.QueryRow(ctx,
		"SELECT "+fabricColumns+" FROM fabrics WHERE id = $1", id))
}

// Create inserts a new fabric from a scraped record. A record without a
// currency is stored with DefaultCurrency.
func (r *FabricRepository) Create(ctx context.Context, url, origin string, rec *models.Record, imagePath *string) (*models.Fabric, error) {
	if rec == nil {
		rec = &models.Record{}
	}

	query := `
		INSERT INTO fabrics (
			name, url, origin, price, currency, composition, description,
			image_path, image_paths, width, weight, last_scraped
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW()
		)
		RETURNING ` + fabricColumns

	var fabric *models.Fabric
	err := r.db.Transaction(ctx, func(tx pgx.Tx) error {
		var err error
		fabric, err = scanFabric(tx.QueryRow(ctx, query,
			rec.NameOr(models.UnknownName), url, origin, rec.Price, rec.CurrencyOr(DefaultCurrency),
			rec.Composition, rec.Description, imagePath, imagePathsJSON(imagePath),
			rec.Width, rec.Weight,
		))
		if err != nil {
			return err
		}
		return r.recordEvent(ctx, tx, EventFabricCreated, fabric.ID, fabric)
	})

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return nil, ErrDuplicateURL
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create fabric: %w", err)
	}
	return fabric, nil
}

// UpdateFromRecord refreshes an existing fabric. Fields absent from rec keep
// their stored value, the image is only set when none is stored yet and
// last_scraped is always refreshed.
func (r *FabricRepository) UpdateFromRecord(ctx context.Context, id int64, rec *models.Record, imagePath *string) (*models.Fabric, error) {
	if rec == nil {
		rec = &models.Record{}
	}

	var name *string
	if rec.HasName() {
		name = rec.Name
	}

	query := `
		UPDATE fabrics SET
			name = COALESCE($2, name),
			price = COALESCE($3, price),
			currency = COALESCE($4, currency),
			composition = COALESCE($5, composition),
			description = COALESCE($6, description),
			width = COALESCE($7, width),
			weight = COALESCE($8, weight),
			image_paths = CASE
				WHEN image_path IS NULL AND $9::text IS NOT NULL THEN jsonb_build_array($9::text)
				ELSE image_paths
			END,
			image_path = COALESCE(image_path, $9::text),
			last_scraped = NOW(),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + fabricColumns

	var fabric *models.Fabric
	err := r.db.Transaction(ctx, func(tx pgx.Tx) error {
		var err error
		fabric, err = scanFabric(tx.QueryRow(ctx, query,
			id, name, rec.Price, rec.Currency, rec.Composition, rec.Description,
			rec.Width, rec.Weight, imagePath,
		))
		if err != nil {
			return err
		}
		return r.recordEvent(ctx, tx, EventFabricUpdated, fabric.ID, fabric)
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update fabric: %w", err)
	}
	return fabric, nil
}

func (r *FabricRepository) UpdateRating(ctx context.Context, id int64, rating models.Rating) (*models.Fabric, error) {
	if !rating.IsValid() {
		return nil, ErrInvalidRating
	}

	query := `
		UPDATE fabrics SET rating = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + fabricColumns

	var fabric *models.Fabric
	err := r.db.Transaction(ctx, func(tx pgx.Tx) error {
		var err error
		fabric, err = scanFabric(tx.QueryRow(ctx, query, id, string(rating)))
		if err != nil {
			return err
		}
		return r.recordEvent(ctx, tx, EventFabricUpdated, fabric.ID, fabric)
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update rating: %w", err)
	}
	return fabric, nil
}

// Delete removes a fabric and returns the deleted row.
func (r *FabricRepository) Delete(ctx context.Context, id int64) (*models.Fabric, error) {
	var fabric *models.Fabric
	err := r.db.Transaction(ctx, func(tx pgx.Tx) error {
		var err error
		fabric, err = scanFabric(tx.QueryRow(ctx,
			"DELETE FROM fabrics WHERE id = $1 RETURNING "+fabricColumns, id))
		if err != nil {
			return err
		}
		return r.recordEvent(ctx, tx, EventFabricDeleted, fabric.ID, map[string]any{
			"id":  fabric.ID,
			"url": fabric.URL,
		})
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete fabric: %w", err)
	}
	return fabric, nil
}

func (r *FabricRepository) List(ctx context.Context, filter models.FabricFilter) ([]*models.Fabric, error) {
	query, args := buildListQuery(filter)

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list fabrics: %w", err)
	}
	defer rows.Close()

	fabrics := []*models.Fabric{}
	for rows.Next() {
		f, err := scanFabric(rows)
		if err != nil {
			return nil, err
		}
		fabrics = append(fabrics, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return fabrics, nil
}

func buildListQuery(filter models.FabricFilter) (string, []any) {
	var (
		where []string
		args  []any
	)

	if filter.Rating != "" {
		args = append(args, string(filter.Rating))
		where = append(where, fmt.Sprintf("rating = $%d", len(args)))
	}
	if origin := strings.TrimSpace(filter.Origin); origin != "" {
		args = append(args, origin)
		where = append(where, fmt.Sprintf("origin ILIKE '%%' || $%d || '%%'", len(args)))
	}

	var b strings.Builder
	b.WriteString("SELECT " + fabricColumns + " FROM fabrics")
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, id DESC")

	args = append(args, max(filter.Skip, 0))
	fmt.Fprintf(&b, " OFFSET $%d", len(args))
	args = append(args, clampLimit(filter.Limit))
	fmt.Fprintf(&b, " LIMIT $%d", len(args))

	return b.String(), args
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}

func (r *FabricRepository) Stats(ctx context.Context) (*models.FabricStats, error) {
	stats := &models.FabricStats{
		Ratings: map[models.Rating]int{
			models.RatingYes:     0,
			models.RatingNo:      0,
			models.RatingMaybe:   0,
			models.RatingUnrated: 0,
		},
		Origins: map[string]int{},
	}

	rows, err := r.db.pool.Query(ctx, "SELECT rating, COUNT(*) FROM fabrics GROUP BY rating")
	if err != nil {
		return nil, fmt.Errorf("failed to count ratings: %w", err)
	}
	for rows.Next() {
		var (
			rating string
			count  int
		)
		if err := rows.Scan(&rating, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan rating count: %w", err)
		}
		stats.Ratings[models.Rating(rating)] = count
		stats.Total += count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	rows, err = r.db.pool.Query(ctx, "SELECT origin, COUNT(*) FROM fabrics GROUP BY origin")
	if err != nil {
		return nil, fmt.Errorf("failed to count origins: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			origin string
			count  int
		)
		if err := rows.Scan(&origin, &count); err != nil {
			return nil, fmt.Errorf("failed to scan origin count: %w", err)
		}
		stats.Origins[origin] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return stats, nil
}

func (r *FabricRepository) recordEvent(ctx context.Context, tx pgx.Tx, eventType string, id int64, body any) error {
	event, err := NewFabricEvent(eventType, id, body)
	if err != nil {
		return err
	}
	return r.outbox.InsertWithTx(ctx, tx, event)
}
