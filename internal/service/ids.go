package service

import (
	"fmt"
	"strings"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
)

// newID returns a UUIDv7, so ids sort by creation time.
func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// anonymousHandle generates an "adjective-animal-NNNN" display name for
// posts without a signed-in author.
func anonymousHandle() string {
	slug := func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "-")
	}
	return fmt.Sprintf("%s-%s-%04d", slug(gofakeit.Adjective()), slug(gofakeit.Animal()), gofakeit.Number(0, 9999))
}
