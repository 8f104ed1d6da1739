package cli

import (
	"context"

	"github.com/tjper/yashd/internal/yashd/reexec"
)

func runReexec() int {
	_, err := reexec.Exec(context.Background())
	if err != nil {
		logger.Errorf("reexec; error: %s", err)
		return ecCommandSyntax
	}
	// Exec only returns on failure: on success it replaces this process
	// image and never comes back here.
	return ecSuccess
}
