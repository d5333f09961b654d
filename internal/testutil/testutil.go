// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cave.view/internal/db"
	"github.com/banshee-data/cave.view/internal/environment"
)

// Epoch is the instant mock clocks start at.
var Epoch = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

// NewDB returns a migrated database in a temporary directory. It is closed
// when the test ends.
func NewDB(t testing.TB) *db.DB {
	t.Helper()
	database, err := db.NewDB(filepath.Join(t.TempDir(), "cave.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

// Inline runs environment commands immediately on the caller's goroutine,
// standing in for a running pipeline.
type Inline struct {
	Env   *environment.Environment
	Calls int
}

// NewInline returns an Inline over a default environment.
func NewInline() *Inline {
	return &Inline{Env: environment.New(environment.Options{})}
}

// Do runs fn unless ctx is already done.
func (x *Inline) Do(ctx context.Context, fn func(*environment.Environment)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	x.Calls++
	fn(x.Env)
	return nil
}
