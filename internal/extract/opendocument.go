package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// odfContentPath is the body part shared by .odt, .odp and .ods packages.
const odfContentPath = "content.xml"

var (
	// odfBlock matches text:p and text:h elements, closing tag included.
	odfBlock = regexp.MustCompile(`(?s)<text:(p|h)(?:\s[^>]*)?>(.*?)</text:(?:p|h)>`)
	// odfSpace matches the explicit whitespace elements of OpenDocument text.
	odfSpace = regexp.MustCompile(`<text:(?:s|tab|line-break)\b[^>]*/>`)
)

// extractOpenDocument handles text documents, presentations and spreadsheets
// alike: every paragraph or heading becomes one line.
func extractOpenDocument(content []byte) (string, error) {
	zr, err := openZip(content, "OpenDocument")
	if err != nil {
		return "", err
	}
	data, err := readZipEntry(zr, odfContentPath)
	if err != nil {
		return "", fmt.Errorf("extract OpenDocument: %w", err)
	}
	if data == nil {
		return "", fmt.Errorf("extract OpenDocument: %s not found", odfContentPath)
	}
	var lines []string
	for _, m := range odfBlock.FindAllStringSubmatch(string(data), -1) {
		inner := odfSpace.ReplaceAllString(m[2], " ")
		if line := strings.TrimSpace(xmlText(inner)); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}
