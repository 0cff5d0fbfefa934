// Package classify labels paper text with a research category.
package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/paper-harvester/internal/harvest"
)

// ErrDisabled is returned by Disabled.
var ErrDisabled = errors.New("classifier disabled: no api key configured")

// Prompt renders the classification request sent to the model.
func Prompt(categories []string, text string) string {
	if len(categories) == 0 {
		categories = harvest.DefaultCategories
	}
	return fmt.Sprintf(
		"Classify this research paper into one of the following categories: [%s].\n\n%s",
		strings.Join(categories, ", "),
		text,
	)
}

// Disabled is used when no provider is configured. Every call fails, which
// harvest.Label turns into harvest.UnknownCategory.
type Disabled struct{}

// Classify always returns ErrDisabled.
func (Disabled) Classify(context.Context, string) (string, error) {
	return "", ErrDisabled
}
