// Package repository provides the data access layer over GORM.
package repository

import (
	"context"
	"errors"
	"strings"

	"lastday/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store groups the community repositories bound to one database handle. Repositories
// obtained inside Transaction share the transaction.
type Store interface {
	Users() UserRepository
	Posts() PostRepository
	Boards() BoardRepository
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

type gormStore struct {
	db *gorm.DB
}

// NewStore returns a Store over db.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Users() UserRepository   { return &userRepository{db: s.db} }
func (s *gormStore) Posts() PostRepository   { return &postRepository{db: s.db} }
func (s *gormStore) Boards() BoardRepository { return &boardRepository{db: s.db} }

// Transaction runs fn in a database transaction. fn's error rolls everything back and is
// returned unchanged.
func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

// forUpdate adds SELECT ... FOR UPDATE. Dialects without row locks (SQLite) drop the clause.
func forUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
}

func isPostgres(db *gorm.DB) bool {
	return db.Dialector.Name() == "postgres"
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "SQLSTATE 23505")
}

func notFoundOr(err error, resource string, id interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError(resource, id)
	}
	return models.NewInternalError(err)
}

func chunk[T any](items []T, size int) [][]T {
	var out [][]T
	for size < len(items) {
		items, out = items[size:], append(out, items[:size])
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}

const inClauseChunk = 500
