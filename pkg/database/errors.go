package database

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"

	"github.com/nephi-asha/kishkumen/internal/apperr"
)

// Postgres SQLSTATE codes the API distinguishes.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeNotNullViolation    = "23502"
	codeCheckViolation      = "23514"
	codeInvalidText         = "22P02"
	codeNumericOutOfRange   = "22003"
	codeUndefinedTable      = "42P01"
	codeInvalidSchema       = "3F000"
)

// TranslateError maps driver errors onto the API taxonomy. subject names the
// entity involved, e.g. "product". Errors already carrying a kind and
// unknown errors are returned unchanged.
func TranslateError(err error, subject string) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Wrap(apperr.KindNotFound, subject+" not found", err)
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}

	switch pqErr.Code {
	case codeUniqueViolation:
		return apperr.Wrap(apperr.KindConflict, subject+" already exists", err)
	case codeForeignKeyViolation:
		// Deleting a referenced row is a conflict; inserting a dangling
		// reference is a bad request.
		if pqErr.Detail != "" && strings.Contains(pqErr.Detail, "is still referenced") {
			return apperr.Wrap(apperr.KindConflict, subject+" is still in use", err)
		}
		return apperr.Wrap(apperr.KindBadRequest, subject+" references a record that does not exist", err)
	case codeNotNullViolation, codeCheckViolation, codeInvalidText, codeNumericOutOfRange:
		return apperr.Wrap(apperr.KindBadRequest, "invalid "+subject, err)
	case codeUndefinedTable, codeInvalidSchema:
		return apperr.Unavailable("tenant namespace unavailable", err)
	}
	return err
}

// IsUniqueViolation reports whether err is a unique-constraint failure.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeUniqueViolation
}
