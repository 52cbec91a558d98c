package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/kidzoona/kiosk/internal/output"
)

const outputSchemaVersion = output.SchemaVersion

// outputErrorCommon normalizes error emission across commands: an NDJSON
// error record on stdout, or a text line on stderr.
func outputErrorCommon(globals *Globals, code, message string, hint ...string) error {
	if globals != nil && globals.Format == "ndjson" {
		_ = output.NewNDJSONWriter(globals.Stdout).WriteError(code, message, hint...)
	} else if globals != nil {
		_ = output.NewTextWriter(globals.Stderr).WriteError(code, message, hint...)
	}
	return errors.New(message)
}

// writerFor returns the writer for regular command output
func writerFor(globals *Globals) output.Writer {
	return output.New(globals.Format, globals.Stdout)
}

func emitJSON(w io.Writer, v any) error {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
