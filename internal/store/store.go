package store

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	// ErrNotFound is the findOrFail failure.
	ErrNotFound = errors.New("store: record not found")
	// ErrConflict reports a storage-level uniqueness violation.
	ErrConflict = errors.New("store: conflict")
	// ErrInvalidColumn rejects anything that is not a plain identifier.
	ErrInvalidColumn = errors.New("store: invalid column")
)

// Page is one page of a paginated query.
type Page struct {
	Records []*Record
	Total   int64
	Page    int
	PerPage int
}

// LastPage is the number of the final page (at least 1).
func (p *Page) LastPage() int {
	if p.PerPage <= 0 || p.Total == 0 {
		return 1
	}
	return int((p.Total + int64(p.PerPage) - 1) / int64(p.PerPage))
}

// Store is the persistence collaborator the resource service drives.
// Implementations must treat every table/column name as untrusted and
// validate it with ValidIdentifier.
type Store interface {
	// Paginate runs q and returns the requested page with q.Loads eager loaded.
	Paginate(ctx context.Context, q *Query, page, perPage int) (*Page, error)
	// Find returns the row or ErrNotFound.
	Find(ctx context.Context, m *Model, id string, with ...string) (*Record, error)
	// FindMany returns the rows that exist, in the order of ids.
	FindMany(ctx context.Context, m *Model, ids []string, with ...string) ([]*Record, error)
	// Create inserts attrs, assigning id and timestamps, and returns the row.
	Create(ctx context.Context, m *Model, attrs map[string]any) (*Record, error)
	// Update writes attrs to one row or returns ErrNotFound.
	Update(ctx context.Context, m *Model, id string, attrs map[string]any) error
	// UpdateMany writes attrs to every row in ids with one statement.
	UpdateMany(ctx context.Context, m *Model, ids []string, attrs map[string]any) (int64, error)
	// DeleteMany removes every row in ids with one statement, together with
	// their pivot rows.
	DeleteMany(ctx context.Context, m *Model, ids []string) (int64, error)
	// Exists reports whether table has a row with column = value, ignoring
	// the row whose id is exceptID.
	Exists(ctx context.Context, table, column string, value any, exceptID string) (bool, error)
	// RelatedIDs lists the related ids attached to parentID through p.
	RelatedIDs(ctx context.Context, p Pivot, parentID string) ([]string, error)
	// Sync makes relatedIDs the exact related set of parentID.
	Sync(ctx context.Context, p Pivot, parentID string, relatedIDs []string) error
	// DetachFromOthers removes pivot rows linking any of relatedIDs to a
	// parent other than parentID.
	DetachFromOthers(ctx context.Context, p Pivot, parentID string, relatedIDs []string) (int64, error)
	// Transaction runs fn as one unit of work: any error undoes every write
	// made through tx.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// NewID returns a new ULID string. Ids are text so every store shares them.
func NewID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

func validPivot(p Pivot) error {
	for _, name := range []string{p.Table, p.ParentKey, p.RelatedKey} {
		if !ValidIdentifier(name) {
			return errors.Join(ErrInvalidColumn, errors.New(name))
		}
	}
	return nil
}
