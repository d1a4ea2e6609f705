package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"ferrepos/backend/internal/store"
)

func TestTxErrorMapsSerializationFailuresToConflict(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "serialization failure",
			err:  &pgconn.PgError{Code: "40001", Message: "could not serialize access due to concurrent update"},
			want: store.ErrConflict,
		},
		{
			name: "deadlock detected",
			err:  &pgconn.PgError{Code: "40P01", Message: "deadlock detected"},
			want: store.ErrConflict,
		},
		{
			name: "wrapped serialization failure",
			err:  fmt.Errorf("apply settlement: %w", &pgconn.PgError{Code: "40001"}),
			want: store.ErrConflict,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := txError(tc.err)
			if !errors.Is(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestTxErrorPassesThroughOtherErrors(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
	if got := txError(unique); got != error(unique) {
		t.Fatalf("expected unique violation untouched, got %v", got)
	}
	plain := errors.New("connection reset")
	if got := txError(plain); got != plain {
		t.Fatalf("expected plain error untouched, got %v", got)
	}
}
