// Package block implements the concrete handlers behind the shared block
// contract: var, env, directory, script, pause, terminal, sub_runbook,
// ai_chat, plus sql/http down to the shared contract only.
package block

import (
	"encoding/json"
	"fmt"

	"github.com/opsrunbook/engine/pkg/document"
)

// decodeProps round-trips n.Props through JSON into dst, the quickest path
// from the loosely-typed document.Node.Props map to a block's typed
// configuration struct.
func decodeProps(n document.Node, dst any) error {
	data, err := json.Marshal(n.Props)
	if err != nil {
		return fmt.Errorf("block: marshal props: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("block: decode props for %q: %w", n.Type, err)
	}
	return nil
}
