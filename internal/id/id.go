package id

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Efebektas23/QUICKYEL-sub000/internal/model"
)

var bookPrefix = map[model.Book]string{
	model.BookExpense: "exp",
	model.BookRevenue: "rev",
}

// NewRecordID returns a fresh record ID like "exp-202503-9f1c2a7b".
func NewRecordID(book model.Book, date time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return FormatRecordID(book, date.Year(), int(date.Month()), suffix)
}

// FormatRecordID joins the parts of a record ID.
func FormatRecordID(book model.Book, year, month int, suffix string) string {
	return fmt.Sprintf("%s-%04d%02d-%s", bookPrefix[book], year, month, suffix)
}

// ParseRecordID splits "exp-202503-9f1c2a7b" into its book and month.
func ParseRecordID(id string) (book model.Book, year, month int, err error) {
	parts := strings.SplitN(id, "-", 3)
	if len(parts) != 3 || len(parts[1]) != 6 || parts[2] == "" {
		return "", 0, 0, fmt.Errorf("invalid record ID format: %q", id)
	}

	switch parts[0] {
	case "exp":
		book = model.BookExpense
	case "rev":
		book = model.BookRevenue
	default:
		return "", 0, 0, fmt.Errorf("invalid book prefix in record ID %q", id)
	}

	year, err = strconv.Atoi(parts[1][:4])
	if err != nil {
		return "", 0, 0, fmt.Errorf("invalid year in record ID %q: %w", id, err)
	}

	month, err = strconv.Atoi(parts[1][4:])
	if err != nil {
		return "", 0, 0, fmt.Errorf("invalid month in record ID %q: %w", id, err)
	}
	if month < 1 || month > 12 {
		return "", 0, 0, fmt.Errorf("month %d out of range in record ID %q", month, id)
	}

	return book, year, month, nil
}
