package storage

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/apptbook/libs/db"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict means a scheduled appointment for the same staff member overlaps.
	ErrConflict = errors.New("appointment overlaps an existing booking")
	// ErrAlreadyExists means an appointment with the same id was inserted before.
	ErrAlreadyExists = errors.New("appointment already exists")
	// ErrStatusFinal means the appointment left the scheduled state earlier.
	ErrStatusFinal = errors.New("appointment status is final")
)

func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows), db.IsInvalidText(err), db.IsForeignKeyViolation(err):
		return ErrNotFound
	case db.IsExclusionViolation(err):
		return ErrConflict
	case db.IsUniqueViolation(err):
		return ErrAlreadyExists
	}
	return err
}
