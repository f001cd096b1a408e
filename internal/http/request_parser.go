// Package http exposes the ledger as a JSON API.
//
// This file holds the request parsing helpers shared by the handlers:
// owner extraction, query parameters, path ids and JSON bodies.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"expensetracker/internal/core"
)

// OwnerHeader names the header an upstream proxy sets to the
// authenticated user.
const OwnerHeader = "X-Owner"

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

var errMissingOwner = &core.ValidationError{Field: "owner", Err: errors.New("missing " + OwnerHeader + " header")}

// ownerFrom returns the sanitized owner header or a validation error.
func ownerFrom(r *http.Request) (string, error) {
	owner := sanitizeInput(r.Header.Get(OwnerHeader))
	if owner == "" {
		return "", errMissingOwner
	}
	return owner, nil
}

// MonthParams holds parsed year/month values from request parameters.
type MonthParams struct {
	Year  int
	Month int
}

// ParseMonthParams reads year and month from the query, defaulting each to
// today's. Malformed or out-of-range values are validation errors.
func ParseMonthParams(query url.Values, today core.Date) (MonthParams, error) {
	params := MonthParams{Year: today.Year(), Month: today.Month()}

	year, err := intParam(query, "year", params.Year)
	if err != nil {
		return MonthParams{}, err
	}
	month, err := intParam(query, "month", params.Month)
	if err != nil {
		return MonthParams{}, err
	}
	if month < 1 || month > 12 {
		return MonthParams{}, &core.ValidationError{Field: "month", Err: fmt.Errorf("month %d out of range", month)}
	}
	if year < 1 || year > 9999 {
		return MonthParams{}, &core.ValidationError{Field: "year", Err: fmt.Errorf("year %d out of range", year)}
	}
	params.Year, params.Month = year, month
	return params, nil
}

// intParam returns def when key is absent.
func intParam(query url.Values, key string, def int) (int, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &core.ValidationError{Field: key, Err: fmt.Errorf("not a number: %q", v)}
	}
	return n, nil
}

// boundedIntParam is intParam restricted to [lo, hi].
func boundedIntParam(query url.Values, key string, def, lo, hi int) (int, error) {
	n, err := intParam(query, key, def)
	if err != nil {
		return 0, err
	}
	if n < lo || n > hi {
		return 0, &core.ValidationError{Field: key, Err: fmt.Errorf("must be between %d and %d", lo, hi)}
	}
	return n, nil
}

// pathID parses a positive integer path wildcard.
func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &core.ValidationError{Field: name, Err: fmt.Errorf("invalid id %q", raw)}
	}
	return id, nil
}

// ParseExpenseFilter builds a search filter from query parameters. Absent
// parameters do not constrain.
func ParseExpenseFilter(query url.Values) (core.ExpenseFilter, error) {
	f := core.ExpenseFilter{
		Category: sanitizeInput(query.Get("category")),
		Keyword:  sanitizeInput(query.Get("keyword")),
	}

	for _, p := range []struct {
		key string
		dst **core.Money
	}{{"min_amount", &f.MinAmount}, {"max_amount", &f.MaxAmount}} {
		v := strings.TrimSpace(query.Get(p.key))
		if v == "" {
			continue
		}
		m, err := core.ParseMoney(v)
		if err != nil {
			return core.ExpenseFilter{}, &core.ValidationError{Field: p.key, Err: err}
		}
		*p.dst = &m
	}

	for _, p := range []struct {
		key string
		dst **core.Date
	}{{"from", &f.From}, {"to", &f.To}} {
		v := strings.TrimSpace(query.Get(p.key))
		if v == "" {
			continue
		}
		d, err := core.ParseDate(v)
		if err != nil {
			return core.ExpenseFilter{}, &core.ValidationError{Field: p.key, Err: err}
		}
		*p.dst = &d
	}

	limit, err := boundedIntParam(query, "limit", 0, 0, 10000)
	if err != nil {
		return core.ExpenseFilter{}, err
	}
	f.Limit = limit

	return f, f.Validate()
}

// decodeJSON reads a single JSON object into dst, rejecting unknown
// fields and trailing data.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &core.ValidationError{Field: "body", Err: fmt.Errorf("malformed JSON: %w", err)}
	}
	if dec.More() {
		return &core.ValidationError{Field: "body", Err: errors.New("unexpected data after JSON object")}
	}
	return nil
}
