package relay

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jholhewres/relaybot/pkg/relaybot/database"
)

// ApplyCaption removes the clean words from caption and appends the
// custom caption.
func ApplyCaption(caption string, st database.Settings) string {
	caption = CleanText(caption, st.CleanWords)
	if st.Caption == "" {
		return caption
	}
	if caption == "" {
		return st.Caption
	}
	return caption + "\n\n" + st.Caption
}

// RenameFile cleans name and inserts the rename tag before the extension.
func RenameFile(name string, st database.Settings) string {
	if name == "" {
		return ""
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	base = strings.TrimSpace(CleanText(base, st.CleanWords))
	if base == "" {
		base = "file"
	}
	if st.RenameTag != "" {
		base = base + " " + st.RenameTag
	}
	return base + ext
}

// CleanText removes every occurrence of each word.
func CleanText(s string, words []string) string {
	for _, w := range words {
		if w == "" {
			continue
		}
		s = strings.ReplaceAll(s, w, "")
	}
	return strings.TrimSpace(s)
}

// PartCaption is the caption of part n of a split upload.
func PartCaption(caption string, n int) string {
	return fmt.Sprintf("%s \n\n**Part : %d**", caption, n)
}
