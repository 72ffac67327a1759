package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	jsoniter "github.com/json-iterator/go"
	"github.com/lib/pq"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vfg2006/audience-delivery-api/infrastructure/database/postgres"
	"github.com/vfg2006/audience-delivery-api/pkg/utils"
)

const (
	documentsTable = "documents"

	// timeLayout is how timestamps inside the JSONB column round-trip
	timeLayout = time.RFC3339Nano

	// Bounded retry for transient store failures only
	maxAttempts  = 3
	retryBackoff = 250 * time.Millisecond

	defaultPageSize = 25
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var selectColumns = []string{
	"id", "fields", "created_by", "create_time", "updated_by", "update_time", "deleted",
}

// Document is the store's native representation: a field-keyed mapping
// with string-typed ids
type Document map[string]any

// ID returns the document's generated id
func (d Document) ID() string {
	id, _ := d[FieldID].(string)
	return id
}

// QueryOptions controls GetMany
type QueryOptions struct {
	Filter         map[string]any
	Projection     []string
	SortBy         string
	SortDescending bool
	PageSize       int
	PageNumber     int
	IncludeDeleted bool
	// ExcludeExpired drops documents whose expire_time has passed.
	// Applies to the page and the total alike.
	ExcludeExpired bool
}

// Page is one page of documents plus the unpaged total
type Page struct {
	Total     int64      `json:"total"`
	Documents []Document `json:"documents"`
}

// DocumentStore is the single mutation path for every component; no
// component bypasses it to touch raw rows.
type DocumentStore interface {
	Create(ctx context.Context, collection string, fields map[string]any, actor string) (Document, error)
	Get(ctx context.Context, collection string, filter map[string]any, includeDeleted bool) (Document, error)
	GetMany(ctx context.Context, collection string, opts QueryOptions) (*Page, error)
	Update(ctx context.Context, collection string, id string, fields map[string]any, actor string) (Document, error)
	Delete(ctx context.Context, collection string, filter map[string]any, actor string, hard bool) (bool, error)
}

type documentStore struct {
	conn *postgres.Connection
}

func NewDocumentStore(conn *postgres.Connection) DocumentStore {
	return &documentStore{conn: conn}
}

// Create validates the fields against the collection's whitelist,
// enforces uniqueness among non-deleted documents and persists the
// document with its metadata stamps.
func (s *documentStore) Create(ctx context.Context, collection string, fields map[string]any, actor string) (Document, error) {
	schema, err := schemaFor(collection)
	if err != nil {
		return nil, err
	}

	if err := validateFields(collection, fields, true); err != nil {
		return nil, err
	}

	if len(schema.unique) > 0 {
		dupFilter := make(map[string]any, len(schema.unique))
		for _, key := range schema.unique {
			if v, ok := fields[key]; ok {
				dupFilter[key] = v
			}
		}
		if len(dupFilter) == len(schema.unique) {
			existing, err := s.Get(ctx, collection, dupFilter, false)
			if err != nil {
				return nil, err
			}
			if existing != nil {
				return nil, errors.Wrapf(ErrDuplicateDocument,
					"collection %q, keys %v", collection, schema.unique)
			}
		}
	}

	id, err := utils.GenerateID()
	if err != nil {
		return nil, errors.Wrap(err, "generating document id")
	}

	blob, err := json.Marshal(fields)
	if err != nil {
		return nil, errors.Wrap(err, "encoding document fields")
	}

	now := time.Now().UTC()

	insertSQL, args, err := squirrel.
		Insert(documentsTable).
		Columns("id", "collection", "fields", "created_by", "create_time", "updated_by", "update_time", "deleted").
		Values(id, collection, squirrel.Expr("?::jsonb", string(blob)), actor, now, actor, now, false).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building insert query")
	}

	err = s.withRetry(ctx, "create", func() error {
		_, execErr := s.conn.Exec(ctx, insertSQL, args...)
		return execErr
	})
	if err != nil {
		return nil, operationFailure(err, "creating document")
	}

	doc := make(Document, len(fields)+6)
	for k, v := range fields {
		doc[k] = v
	}
	doc[FieldID] = id
	doc[FieldCreatedBy] = actor
	doc[FieldCreateTime] = now
	doc[FieldUpdatedBy] = actor
	doc[FieldUpdateTime] = now
	doc[FieldDeleted] = false

	return doc, nil
}

// Get returns the first document matching the filter, or nil when none
// matches. Soft-deleted documents are excluded unless includeDeleted.
func (s *documentStore) Get(ctx context.Context, collection string, filter map[string]any, includeDeleted bool) (Document, error) {
	if _, err := schemaFor(collection); err != nil {
		return nil, err
	}

	where, err := s.whereFor(collection, filter, includeDeleted)
	if err != nil {
		return nil, err
	}

	querySQL, args, err := squirrel.
		Select(selectColumns...).
		From(documentsTable).
		Where(where).
		Limit(1).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building select query")
	}

	var doc Document
	err = s.withRetry(ctx, "get", func() error {
		row := s.conn.QueryRow(ctx, querySQL, args...)
		scanned, scanErr := scanDocument(row)
		if scanErr != nil {
			return scanErr
		}
		doc = scanned
		return nil
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, operationFailure(err, "reading document")
	}

	return doc, nil
}

// GetMany returns one page of matching documents plus the total count.
// Pagination is offset based: skip = page_size * (page_number - 1).
func (s *documentStore) GetMany(ctx context.Context, collection string, opts QueryOptions) (*Page, error) {
	if _, err := schemaFor(collection); err != nil {
		return nil, err
	}

	where, err := s.whereFor(collection, opts.Filter, opts.IncludeDeleted)
	if err != nil {
		return nil, err
	}
	if opts.ExcludeExpired {
		where = append(where, squirrel.Expr(
			"(fields->>'expire_time' IS NULL OR (fields->>'expire_time')::timestamptz > now())"))
	}

	countSQL, countArgs, err := squirrel.
		Select("COUNT(*)").
		From(documentsTable).
		Where(where).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building count query")
	}

	page := &Page{Documents: make([]Document, 0)}

	err = s.withRetry(ctx, "count", func() error {
		return s.conn.QueryRow(ctx, countSQL, countArgs...).Scan(&page.Total)
	})
	if err != nil {
		return nil, operationFailure(err, "counting documents")
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	pageNumber := opts.PageNumber
	if pageNumber < 1 {
		pageNumber = 1
	}

	sortExpr, err := sortExpression(opts.SortBy, opts.SortDescending)
	if err != nil {
		return nil, err
	}

	querySQL, args, err := squirrel.
		Select(selectColumns...).
		From(documentsTable).
		Where(where).
		OrderBy(sortExpr).
		Limit(uint64(pageSize)).
		Offset(uint64(pageSize * (pageNumber - 1))).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building select query")
	}

	err = s.withRetry(ctx, "get_many", func() error {
		rows, queryErr := s.conn.Query(ctx, querySQL, args...)
		if queryErr != nil {
			return queryErr
		}
		defer rows.Close()

		docs := make([]Document, 0, pageSize)
		for rows.Next() {
			doc, scanErr := scanDocument(rows)
			if scanErr != nil {
				return scanErr
			}
			docs = append(docs, doc)
		}
		if rowsErr := rows.Err(); rowsErr != nil {
			return rowsErr
		}

		page.Documents = docs
		return nil
	})
	if err != nil {
		return nil, operationFailure(err, "listing documents")
	}

	if len(opts.Projection) > 0 {
		for i, doc := range page.Documents {
			page.Documents[i] = project(doc, opts.Projection)
		}
	}

	return page, nil
}

// Update merges the supplied fields into the document in one atomic
// statement and stamps update_time/updated_by. Returns nil when the id
// does not resolve to a non-deleted document.
func (s *documentStore) Update(ctx context.Context, collection string, id string, fields map[string]any, actor string) (Document, error) {
	if _, err := schemaFor(collection); err != nil {
		return nil, err
	}

	if err := validateFields(collection, fields, false); err != nil {
		return nil, err
	}

	blob, err := json.Marshal(fields)
	if err != nil {
		return nil, errors.Wrap(err, "encoding document fields")
	}

	updateSQL, args, err := squirrel.
		Update(documentsTable).
		Set("fields", squirrel.Expr("fields || ?::jsonb", string(blob))).
		Set("update_time", time.Now().UTC()).
		Set("updated_by", actor).
		Where(squirrel.Eq{"id": id, "collection": collection, "deleted": false}).
		Suffix("RETURNING " + strings.Join(selectColumns, ", ")).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building update query")
	}

	var doc Document
	err = s.withRetry(ctx, "update", func() error {
		row := s.conn.QueryRow(ctx, updateSQL, args...)
		scanned, scanErr := scanDocument(row)
		if scanErr != nil {
			return scanErr
		}
		doc = scanned
		return nil
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, operationFailure(err, "updating document")
	}

	return doc, nil
}

// Delete soft-deletes matching documents (sets deleted and stamps the
// actor) or, with hard, physically removes them. Returns false when
// nothing matched.
func (s *documentStore) Delete(ctx context.Context, collection string, filter map[string]any, actor string, hard bool) (bool, error) {
	if _, err := schemaFor(collection); err != nil {
		return false, err
	}

	var deleteSQL string
	var args []interface{}
	var err error

	if hard {
		where, whereErr := s.whereFor(collection, filter, true)
		if whereErr != nil {
			return false, whereErr
		}
		deleteSQL, args, err = squirrel.
			Delete(documentsTable).
			Where(where).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
	} else {
		where, whereErr := s.whereFor(collection, filter, false)
		if whereErr != nil {
			return false, whereErr
		}
		deleteSQL, args, err = squirrel.
			Update(documentsTable).
			Set("deleted", true).
			Set("update_time", time.Now().UTC()).
			Set("updated_by", actor).
			Where(where).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
	}
	if err != nil {
		return false, errors.Wrap(err, "building delete query")
	}

	var affected int64
	err = s.withRetry(ctx, "delete", func() error {
		result, execErr := s.conn.Exec(ctx, deleteSQL, args...)
		if execErr != nil {
			return execErr
		}
		affected, execErr = result.RowsAffected()
		return execErr
	})
	if err != nil {
		return false, operationFailure(err, "deleting document")
	}

	return affected > 0, nil
}

// whereFor builds the predicate set for a collection + filter. Filters
// on metadata keys hit their columns; everything else becomes a JSONB
// containment predicate.
func (s *documentStore) whereFor(collection string, filter map[string]any, includeDeleted bool) (squirrel.And, error) {
	where := squirrel.And{squirrel.Eq{"collection": collection}}
	if !includeDeleted {
		where = append(where, squirrel.Eq{"deleted": false})
	}

	contained := make(map[string]any)
	for key, value := range filter {
		switch key {
		case FieldID:
			where = append(where, squirrel.Eq{"id": value})
		case FieldDeleted:
			where = append(where, squirrel.Eq{"deleted": value})
		case FieldCreatedBy:
			where = append(where, squirrel.Eq{"created_by": value})
		case FieldUpdatedBy:
			where = append(where, squirrel.Eq{"updated_by": value})
		default:
			contained[key] = value
		}
	}

	if len(contained) > 0 {
		blob, err := json.Marshal(contained)
		if err != nil {
			return nil, errors.Wrap(err, "encoding filter")
		}
		where = append(where, squirrel.Expr("fields @> ?::jsonb", string(blob)))
	}

	return where, nil
}

// withRetry retries the operation for a small, explicit set of
// transient store errors with a fixed backoff. Everything else
// propagates immediately.
func (s *documentStore) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if err == nil || !isTransient(err) {
			return err
		}

		logrus.WithFields(logrus.Fields{
			"operation": op,
			"attempt":   attempt,
			"error":     err.Error(),
		}).Warn("transient document store failure, retrying")

		if attempt < maxAttempts {
			select {
			case <-time.After(retryBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return err
}

// isTransient recognizes auto-reconnect-class failures: bad
// connections and postgres connection-exception / shutdown codes
func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		if strings.HasPrefix(code, "08") {
			return true
		}
		switch code {
		case "57P01", "57P02", "57P03":
			return true
		}
	}

	return false
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (Document, error) {
	var (
		id         string
		blob       []byte
		createdBy  sql.NullString
		updatedBy  sql.NullString
		createTime sql.NullTime
		updateTime sql.NullTime
		deleted    bool
	)

	if err := row.Scan(&id, &blob, &createdBy, &createTime, &updatedBy, &updateTime, &deleted); err != nil {
		return nil, err
	}

	fields := make(map[string]any)
	if len(blob) > 0 {
		if err := json.Unmarshal(blob, &fields); err != nil {
			return nil, errors.Wrap(err, "decoding document fields")
		}
	}

	doc := make(Document, len(fields)+6)
	for k, v := range fields {
		doc[k] = v
	}
	doc[FieldID] = id
	doc[FieldDeleted] = deleted
	if createdBy.Valid {
		doc[FieldCreatedBy] = createdBy.String
	}
	if createTime.Valid {
		doc[FieldCreateTime] = createTime.Time
	}
	if updatedBy.Valid {
		doc[FieldUpdatedBy] = updatedBy.String
	}
	if updateTime.Valid {
		doc[FieldUpdateTime] = updateTime.Time
	}

	return doc, nil
}

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// sortExpression validates the sort key and maps it onto a column or
// a JSONB field access
func sortExpression(sortBy string, descending bool) (string, error) {
	if sortBy == "" {
		sortBy = FieldCreateTime
	}
	if !identifierPattern.MatchString(sortBy) {
		return "", invalidFields("sort", []string{sortBy})
	}

	direction := "ASC"
	if descending {
		direction = "DESC"
	}

	switch sortBy {
	case FieldID, FieldCreateTime, FieldUpdateTime, FieldCreatedBy, FieldUpdatedBy:
		return fmt.Sprintf("%s %s", sortBy, direction), nil
	default:
		return fmt.Sprintf("fields->>'%s' %s", sortBy, direction), nil
	}
}

// project keeps only the requested fields; the id always survives
func project(doc Document, projection []string) Document {
	out := Document{FieldID: doc[FieldID]}
	for _, key := range projection {
		if value, ok := doc[key]; ok {
			out[key] = value
		}
	}
	return out
}

// DecodeDocument decodes a document into a typed struct. Timestamps
// that round-tripped through JSONB come back as RFC3339 strings and
// are converted by the decode hook.
func DecodeDocument(doc Document, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     out,
		DecodeHook: mapstructure.StringToTimeHookFunc(timeLayout),
	})
	if err != nil {
		return err
	}
	return decoder.Decode(map[string]any(doc))
}
