// Package export turns finished jobs into files: one text file per image plus
// a JSON manifest.
package export

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"shotlate/internal/domain"
	"shotlate/pkg/zip"
)

// ManifestName is the archive entry holding the job record.
const ManifestName = "manifest.json"

// FileName names the text file for one result, e.g. "003_chapter12.txt".
func FileName(res domain.TranslationResult) string {
	stem := strings.ReplaceAll(strings.TrimSpace(res.Name), "\\", "/")
	stem = path.Base(stem)
	stem = strings.TrimSuffix(stem, path.Ext(stem))
	stem = strings.Map(func(r rune) rune {
		switch r {
		case '/', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, stem)
	if stem == "" || stem == "." || stem == ".." {
		stem = "image"
	}
	return fmt.Sprintf("%03d_%s.txt", res.Index+1, stem)
}

// Body renders a result as file content. Failed items keep their detail so
// the file set stays aligned with the submitted images.
func Body(res domain.TranslationResult) []byte {
	if res.Status == domain.StatusSuccess {
		return []byte(res.Text)
	}
	line := "[" + string(res.Status) + "]"
	if res.Detail != "" {
		line += " " + res.Detail
	}
	return []byte(line + "\n")
}

// Archive packs the manifest followed by one entry per result in index order.
func Archive(rec domain.JobRecord) ([]byte, error) {
	manifest, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export: manifest: %w", err)
	}
	entries := make([]zip.Entry, 0, len(rec.Results)+1)
	entries = append(entries, zip.Entry{Name: ManifestName, Data: manifest, Modified: rec.FinishedAt})
	for _, res := range rec.Results {
		entries = append(entries, zip.Entry{Name: FileName(res), Data: Body(res), Modified: rec.FinishedAt})
	}
	return zip.Archive(entries)
}
