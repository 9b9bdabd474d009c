package models

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// EncodeCursor упаковывает позицию (created_at, id) в непрозрачную строку.
func EncodeCursor(createdAt time.Time, id string) string {
	raw := createdAt.UTC().Format(time.RFC3339Nano) + "|" + id
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func DecodeCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: malformed cursor", ErrValidation)
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return time.Time{}, "", fmt.Errorf("%w: malformed cursor", ErrValidation)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: malformed cursor", ErrValidation)
	}
	return createdAt, id, nil
}

// Before - порядок "сначала новые": true, если (t, id) идёт после курсора.
func Before(t time.Time, id string, curT time.Time, curID string) bool {
	if t.Equal(curT) {
		return id < curID
	}
	return t.Before(curT)
}
