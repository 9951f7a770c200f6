package docstore

import (
	"context"
	"fmt"
	"reflect"
)

type condition struct {
	field string
	value any
}

// Query selects documents by field equality. Conditions are AND-ed; a query
// without conditions matches every document.
type Query struct {
	c          *Collection
	conditions []condition
}

// Where adds an equality condition on field.
func (q *Query) Where(field string, value any) *Query {
	q.conditions = append(q.conditions, condition{field: field, value: value})
	return q
}

func (q *Query) matches(doc Document) bool {
	for _, cond := range q.conditions {
		v, ok := doc[cond.field]
		if !ok || !equal(v, cond.value) {
			return false
		}
	}
	return true
}

// Fetch returns every matching document in insertion order.
func (q *Query) Fetch(ctx context.Context) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.c.mu.RLock()
	defer q.c.mu.RUnlock()

	docs, err := q.c.all()
	if err != nil {
		return nil, err
	}
	return q.filter(docs), nil
}

// First returns the first matching document or ErrNoDocument.
func (q *Query) First(ctx context.Context) (Document, error) {
	docs, err := q.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNoDocument
	}
	return docs[0], nil
}

// Update merges fields into every matching document and returns how many
// were written. The _id field cannot be changed.
func (q *Query) Update(ctx context.Context, fields Document) (int, error) {
	return q.update(ctx, fields, "")
}

// UpdateUnique is Update that fails with ErrDuplicate, writing nothing, when
// a document outside the query already holds fields' value for field.
func (q *Query) UpdateUnique(ctx context.Context, field string, fields Document) (int, error) {
	return q.update(ctx, fields, field)
}

func (q *Query) update(ctx context.Context, fields Document, unique string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	q.c.mu.Lock()
	defer q.c.mu.Unlock()

	docs, err := q.c.all()
	if err != nil {
		return 0, err
	}
	matched := q.filter(docs)

	if unique != "" {
		skip := make(map[string]bool, len(matched))
		for _, doc := range matched {
			skip[doc.ID()] = true
		}
		if holder := holding(docs, unique, fields, skip); holder != "" {
			return 0, fmt.Errorf("%w: %s already used by %s", ErrDuplicate, unique, holder)
		}
	}

	n := 0
	for _, doc := range matched {
		for k, v := range fields {
			if k == IDField {
				continue
			}
			doc[k] = v
		}
		if err := q.c.write(doc); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Delete removes every matching document and returns how many were removed.
func (q *Query) Delete(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	q.c.mu.Lock()
	defer q.c.mu.Unlock()

	docs, err := q.c.all()
	if err != nil {
		return 0, err
	}

	n := 0
	for _, doc := range q.filter(docs) {
		if err := q.c.remove(doc.ID()); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (q *Query) filter(docs []Document) []Document {
	if len(q.conditions) == 0 {
		return docs
	}
	out := docs[:0:0]
	for _, doc := range docs {
		if q.matches(doc) {
			out = append(out, doc)
		}
	}
	return out
}

// equal compares a decoded JSON value with a caller-supplied one. Numbers
// decode as float64, so integer arguments are widened before comparing.
func equal(stored, want any) bool {
	switch w := want.(type) {
	case string:
		s, ok := stored.(string)
		return ok && s == w
	case int:
		f, ok := stored.(float64)
		return ok && f == float64(w)
	case int64:
		f, ok := stored.(float64)
		return ok && f == float64(w)
	case float64:
		f, ok := stored.(float64)
		return ok && f == w
	case bool:
		b, ok := stored.(bool)
		return ok && b == w
	case nil:
		return stored == nil
	default:
		return reflect.DeepEqual(stored, want)
	}
}
