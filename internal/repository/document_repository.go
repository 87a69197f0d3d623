package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const documentChangesChannel = "document_changes"

var (
	ErrDocumentNotFound = errors.New("document not found")
)

// DocumentRepository defines the interface for the remote document store
type DocumentRepository interface {
	List(ctx context.Context, collection string) ([]*domain.Document, error)
	Get(ctx context.Context, collection, id string) (*domain.Document, error)
	Put(ctx context.Context, collection, id string, data json.RawMessage) error
	Delete(ctx context.Context, collection, id string) error
	Listen(ctx context.Context, collection string) (<-chan domain.DocumentChange, error)
}

type documentRepository struct {
	db     *sql.DB
	dsn    string
	logger *zap.Logger
}

// NewDocumentRepository creates a new instance of DocumentRepository.
// dsn is used to open a dedicated connection per listener.
func NewDocumentRepository(db *sql.DB, dsn string, logger *zap.Logger) DocumentRepository {
	return &documentRepository{db: db, dsn: dsn, logger: logger}
}

// List returns every document of a collection ordered by id
func (r *documentRepository) List(ctx context.Context, collection string) ([]*domain.Document, error) {
	query := `
		SELECT collection, id, data, updated_at
		FROM documents
		WHERE collection = $1
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := []*domain.Document{}
	for rows.Next() {
		doc := &domain.Document{}
		var data []byte
		if err := rows.Scan(&doc.Collection, &doc.ID, &data, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc.Data = json.RawMessage(data)
		docs = append(docs, doc)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}

	return docs, nil
}

// Get retrieves one document
func (r *documentRepository) Get(ctx context.Context, collection, id string) (*domain.Document, error) {
	query := `
		SELECT collection, id, data, updated_at
		FROM documents
		WHERE collection = $1 AND id = $2
	`

	doc := &domain.Document{}
	var data []byte
	err := r.db.QueryRowContext(ctx, query, collection, id).Scan(&doc.Collection, &doc.ID, &data, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to find document: %w", err)
	}
	doc.Data = json.RawMessage(data)

	return doc, nil
}

// Put creates or replaces a document
func (r *documentRepository) Put(ctx context.Context, collection, id string, data json.RawMessage) error {
	if !json.Valid(data) {
		return fmt.Errorf("failed to put document %s/%s: invalid JSON", collection, id)
	}

	query := `
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, $4, $4)
		ON CONFLICT (collection, id)
		DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
	`

	if _, err := r.db.ExecContext(ctx, query, collection, id, string(data), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to put document: %w", err)
	}

	return nil
}

// Delete removes a document; deleting a missing document is not an error
func (r *documentRepository) Delete(ctx context.Context, collection, id string) error {
	query := `DELETE FROM documents WHERE collection = $1 AND id = $2`

	if _, err := r.db.ExecContext(ctx, query, collection, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	return nil
}

// Listen streams changes of one collection until ctx is cancelled
func (r *documentRepository) Listen(ctx context.Context, collection string) (<-chan domain.DocumentChange, error) {
	conn, err := pgx.Connect(ctx, r.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open listener connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "LISTEN "+documentChangesChannel); err != nil {
		conn.Close(context.Background())
		return nil, fmt.Errorf("failed to listen for document changes: %w", err)
	}

	out := make(chan domain.DocumentChange, 16)
	go func() {
		defer close(out)
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			conn.Close(closeCtx)
		}()

		for {
			notification, err := conn.WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					r.logger.Warn("Document listener stopped", zap.String("collection", collection), zap.Error(err))
				}
				return
			}

			var change domain.DocumentChange
			if err := json.Unmarshal([]byte(notification.Payload), &change); err != nil {
				r.logger.Debug("Ignoring malformed document notification", zap.Error(err))
				continue
			}
			if change.Collection != collection {
				continue
			}

			select {
			case out <- change:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
