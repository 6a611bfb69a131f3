package fetch

import (
	"path/filepath"
	"strings"
	"unicode"

	"github.com/shanehull/filingscraper/internal/types"
)

// SanitizeFileName keeps letters (any script), digits and "._-".
func SanitizeFileName(name string) string {
	var sb strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_' || r == '-' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// FileName derives the on-disk name for a registry announcement. The same
// announcement always maps to the same name, which is what lets a re-run
// skip documents it already has.
func FileName(a types.Announcement) string {
	name := strings.NewReplacer("*", "s", "/", "-").Replace(a.SecurityName)
	title := strings.NewReplacer("/", "-", `\`, "-").Replace(a.Title)

	ext := ".pdf"
	if a.DocumentType == types.DocumentHTML {
		ext = ".html"
	}

	return SanitizeFileName(a.SecurityCode + "_" + name + "_" + title + "_" + a.AnnouncementID + ext)
}

// Tasks builds retrieval tasks into dir for every announcement the scheduler
// can store. Non-document attachments are skipped.
func Tasks(dir string, anns []types.Announcement) []types.RetrievalTask {
	tasks := make([]types.RetrievalTask, 0, len(anns))
	for _, a := range anns {
		if a.DocumentType != types.DocumentPDF {
			continue
		}
		tasks = append(tasks, types.RetrievalTask{
			Announcement: a,
			Destination:  filepath.Join(dir, FileName(a)),
		})
	}
	return tasks
}
