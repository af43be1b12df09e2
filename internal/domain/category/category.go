package category

import (
	"fmt"
	"strings"

	"github.com/heritage-labs/usagemeter/internal/domain"
)

// Category is a metered tool.
type Category string

// Tool categories in display order.
const (
	Document    Category = "document"
	DNA         Category = "dna"
	Tree        Category = "tree"
	Research    Category = "research"
	Photo       Category = "photo"
	Translation Category = "translation"
)

var ordered = []Category{Document, DNA, Tree, Research, Photo, Translation}

// All returns every category in the fixed display order.
func All() []Category {
	out := make([]Category, len(ordered))
	copy(out, ordered)
	return out
}

// IsValid checks if the category is one of the known values.
func (c Category) IsValid() bool {
	for _, v := range ordered {
		if v == c {
			return true
		}
	}
	return false
}

// Parse converts a case-insensitive category name.
func Parse(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidCategory, s)
	}
	return c, nil
}
