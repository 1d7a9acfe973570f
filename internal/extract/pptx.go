package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// pptxSlide matches slide parts and captures the slide number.
var pptxSlide = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

var (
	// apTag matches one DrawingML paragraph.
	apTag = regexp.MustCompile(`(?s)<a:p[ >].*?</a:p>`)
	// atTag matches <a:t>text</a:t> or <a:t xml:space="preserve">text</a:t>.
	atTag = regexp.MustCompile(`<a:t(?:\s[^>]*)?>([^<]*)</a:t>`)
)

// extractPPTX returns slide text in slide order, paragraphs on separate lines
// and a blank line between slides.
func extractPPTX(content []byte) (string, error) {
	zr, err := openZip(content, "PPTX")
	if err != nil {
		return "", err
	}
	type slide struct {
		num  int
		name string
	}
	var slides []slide
	for _, f := range zr.File {
		m := pptxSlide.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{num: n, name: f.Name})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var out []string
	for _, s := range slides {
		data, err := readZipEntry(zr, s.name)
		if err != nil {
			return "", fmt.Errorf("extract PPTX: %w", err)
		}
		var lines []string
		for _, para := range apTag.FindAllString(string(data), -1) {
			if line := joinRuns(atTag, para); strings.TrimSpace(line) != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			out = append(out, strings.Join(lines, "\n"))
		}
	}
	return strings.Join(out, "\n\n"), nil
}
