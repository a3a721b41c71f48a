package ndjson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

type userErrorsPayload struct {
	UserErrors []struct {
		Message string `json:"message"`
	} `json:"userErrors"`
}

type mutationLine struct {
	Data struct {
		Update *userErrorsPayload `json:"productVariantsBulkUpdate"`
	} `json:"data"`
	Update *userErrorsPayload `json:"productVariantsBulkUpdate"`
}

// MutationErrors collects the first user error message of every line of a
// bulk mutation result file. Lines that fail to parse or exceed the size limit
// are dropped.
func (d *Decoder) MutationErrors(r io.Reader) ([]string, error) {
	messages := []string{}
	err := d.eachLine(r, func(lineNo int, line []byte, oversized bool) {
		if oversized {
			d.drop(lineNo, errLineTooLong, "dropping oversized mutation result line")
			return
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			return
		}
		var parsed mutationLine
		if err := json.Unmarshal(line, &parsed); err != nil {
			d.drop(lineNo, err, "dropping malformed mutation result line")
			return
		}
		payload := parsed.Data.Update
		if payload == nil {
			payload = parsed.Update
		}
		if payload == nil || len(payload.UserErrors) == 0 {
			return
		}
		messages = append(messages, strings.TrimSpace(payload.UserErrors[0].Message))
	})
	if err != nil {
		return messages, fmt.Errorf("read mutation result: %w", err)
	}
	return messages, nil
}
