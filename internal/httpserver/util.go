package httpserver

import (
	"encoding/json"
	"errors"
	"io"
)

// decodeJSON decodes a JSON request body into the destination struct. An
// empty body decodes to the zero value, so endpoints with all-optional
// fields accept bodiless requests. The reader is closed after decoding.
func decodeJSON(r io.ReadCloser, dest any) error {
	defer r.Close()
	err := json.NewDecoder(r).Decode(dest)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
