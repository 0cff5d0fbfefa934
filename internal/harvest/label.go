package harvest

import (
	"context"
	"strings"
)

// Label classifies text and always yields a usable category: empty input,
// classifier errors and empty answers all become UnknownCategory. The error,
// if any, is returned for logging only.
func Label(ctx context.Context, c Classifier, text string) (string, error) {
	if c == nil || strings.TrimSpace(text) == "" {
		return UnknownCategory, nil
	}
	label, err := c.Classify(ctx, text)
	if err != nil {
		return UnknownCategory, err
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return UnknownCategory, nil
	}
	return label, nil
}
