package storage

import (
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/common"
)

var imageTypes = []string{"image/png", "image/jpeg"}

// DetectDocument sniffs head (the first bytes of a document) and checks
// the detected type against the extension of filename. It returns the
// detected content type.
func DetectDocument(head []byte, filename string) (string, error) {
	m := mimetype.Detect(head)

	switch constants.MapExtToFormat(filepath.Ext(filename)) {
	case constants.PDF:
		if !m.Is("application/pdf") {
			return "", common.InvalidInputf("%s is not a PDF document (detected %s)", filename, m.String())
		}
	case constants.IMAGE:
		ok := false
		for _, t := range imageTypes {
			if m.Is(t) {
				ok = true
				break
			}
		}
		if !ok {
			return "", common.InvalidInputf("%s is not a PNG or JPEG image (detected %s)", filename, m.String())
		}
	default:
		return "", common.InvalidInputf("unsupported file type %q", filepath.Ext(filename))
	}
	return m.String(), nil
}
