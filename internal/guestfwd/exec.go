package guestfwd

import (
	"bytes"
	"context"
	"os/exec"
)

// Run shells out to the controller binary with a CommandContext call, so
// cancelling ctx kills the process. The Forwarder's relay invocations pass
// context.Background(), so they carry no deadline and are never cancelled.
func (r *execRunner) Run(ctx context.Context, args ...string) (stdout string, stderr string, err error) {
	cmd := exec.CommandContext(ctx, r.binaryPath, args...)

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err = cmd.Run()
	return outBuf.String(), errBuf.String(), err
}
