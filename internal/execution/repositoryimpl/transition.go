package repositoryimpl

import (
	"fmt"

	"github.com/kazz187/agentforge/internal/execution"
	"github.com/kazz187/agentforge/pkg/cerr"
)

// checkTransition allows rewriting a record in place or moving it one step
// along the status graph.
func checkTransition(from, to execution.Status) error {
	if from == to || from.CanTransition(to) {
		return nil
	}
	return cerr.NewError(cerr.FailedPrecondition,
		fmt.Sprintf("execution cannot move from %s to %s", from, to), nil)
}
