package service

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxSanitizedNameLength = 120

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// sanitizeFileName оставляет в имени только безопасные для ключа символы
func sanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Base(strings.TrimSpace(name))
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._-")
	if len(name) > maxSanitizedNameLength {
		name = name[len(name)-maxSanitizedNameLength:]
	}
	if name == "" {
		return "file"
	}
	return name
}

// buildObjectKey формирует ключ вида
// submissions/{submissionId}/{questionId}/{unixMillis}-{randomId}-{name}
func buildObjectKey(submissionID uuid.UUID, questionID string, now time.Time, fileName string) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("submissions/%s/%s/%d-%s-%s",
		submissionID, questionID, now.UnixMilli(), random, sanitizeFileName(fileName))
}
