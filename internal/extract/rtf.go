package extract

import (
	"bytes"
	"fmt"

	"github.com/lu4p/cat/rtftxt"
)

func extractRTF(content []byte) (string, error) {
	buf, err := rtftxt.Text(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("parse RTF: %w", err)
	}
	return buf.String(), nil
}
