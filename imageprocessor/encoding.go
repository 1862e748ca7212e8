package imageprocessor

import (
	"encoding/base64"
	"fmt"
	"strings"

	"gocv.io/x/gocv"
)

// DecodeBase64 decodes a base64 payload, accepting a "data:<mime>;base64,"
// prefix as sent by browsers
func DecodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 {
			return nil, fmt.Errorf("malformed data uri")
		}
		s = s[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return data, nil
}

// EncodeBase64PNG re-encodes the image at path as a base64 PNG
func EncodeBase64PNG(path string) (string, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		img.Close()
		return "", fmt.Errorf("opencv could not read %s", path)
	}
	defer img.Close()

	buf, err := gocv.IMEncode(gocv.PNGFileExt, img)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", path, err)
	}
	defer buf.Close()

	return base64.StdEncoding.EncodeToString(buf.GetBytes()), nil
}
