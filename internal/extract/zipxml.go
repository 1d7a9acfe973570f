package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
)

// maxZipEntryBytes caps how much of a single archive member is read.
const maxZipEntryBytes = 64 << 20

var anyTag = regexp.MustCompile(`<[^>]+>`)

func openZip(content []byte, kind string) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("extract %s: not a zip: %w", kind, err)
	}
	return zr, nil
}

// readZipEntry returns the bytes of the named member, or nil when absent.
func readZipEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(io.LimitReader(rc, maxZipEntryBytes))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		return data, nil
	}
	return nil, nil
}

// xmlText strips markup from an XML fragment and decodes entities.
func xmlText(fragment string) string {
	return html.UnescapeString(anyTag.ReplaceAllString(fragment, ""))
}

// joinRuns concatenates the first submatch of every match of re in s.
func joinRuns(re *regexp.Regexp, s string) string {
	var b strings.Builder
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		b.WriteString(m[1])
	}
	return html.UnescapeString(b.String())
}
