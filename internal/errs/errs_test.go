package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCodesAreDistinctPerClass(t *testing.T) {
	cases := map[Kind]int{
		ConfigInvalid:       ExitConfig,
		RepoNotFound:        ExitNotFound,
		BranchNotFound:      ExitNotFound,
		PaneNotFound:        ExitNotFound,
		TimedOut:            ExitTimeout,
		VcsOperationFailed:  ExitTool,
		SessionCreateFailed: ExitTool,
		WorktreeDirty:       ExitUser,
		Cancelled:           ExitCancelled,
	}
	for kind, want := range cases {
		assert.Equal(t, want, ExitCode(New(kind, "x")), kind)
	}
	assert.Equal(t, ExitOK, ExitCode(nil))
}

func TestKindOfFollowsWrapping(t *testing.T) {
	inner := Wrap(VcsOperationFailed, ErrLockContention, "git worktree add")
	outer := fmt.Errorf("open: %w", inner)

	assert.Equal(t, VcsOperationFailed, KindOf(outer))
	assert.True(t, errors.Is(outer, ErrLockContention))
	assert.Equal(t, "git worktree add: repository lock held by another process", inner.Error())
}

func TestKindOfContextErrors(t *testing.T) {
	assert.Equal(t, Cancelled, KindOf(context.Canceled))
	assert.Equal(t, TimedOut, KindOf(fmt.Errorf("poll: %w", context.DeadlineExceeded)))
	assert.Equal(t, Internal, KindOf(errors.New("boom")))
}
