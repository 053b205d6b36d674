package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatMessage_SimpleCategory(t *testing.T) {
	loc := time.UTC
	publishedAt := time.Date(2024, 6, 1, 10, 15, 0, 0, loc)

	got := FormatMessage("S", publishedAt, loc, "https://www.crhoy.com/u1", "nacionales")

	want := "S\n\n_2024/06/01 10:15_\n\nhttps://www.crhoy.com/u1\n#nacionales"
	assert.Equal(t, want, got)
}

func TestFormatMessage_NestedCategorySplitsIntoTwoHashtags(t *testing.T) {
	loc := time.UTC
	publishedAt := time.Date(2024, 6, 1, 10, 15, 0, 0, loc)

	got := FormatMessage("S", publishedAt, loc, "https://www.crhoy.com/u1", "deportes/futbol")

	assert.Contains(t, got, "#deportes #futbol")
}
