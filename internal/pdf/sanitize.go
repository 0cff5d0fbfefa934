package pdf

import (
	"strconv"
	"strings"
)

var unsafeChars = strings.NewReplacer(
	"<", "_",
	">", "_",
	":", "_",
	`"`, "_",
	"/", "_",
	`\`, "_",
	"|", "_",
	"?", "_",
	"*", "_",
)

// Sanitize turns a paper title into a filename stem by replacing each of
// <>:"/\|?* with an underscore. Nothing else is changed.
func Sanitize(title string) string {
	return unsafeChars.Replace(title)
}

// ObjectPath returns the blob path for a paper: {year}/{sanitized title}.pdf.
func ObjectPath(year int, title string) string {
	return strconv.Itoa(year) + "/" + Sanitize(title) + ".pdf"
}
