package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommitSpecValidate(t *testing.T) {
	assert.Error(t, (&CommitSpec{}).Validate())
	assert.NoError(t, (&CommitSpec{Message: "add widget"}).Validate())
}

func TestCommitSpecIsEmpty(t *testing.T) {
	assert.True(t, (&CommitSpec{}).IsEmpty())
	assert.False(t, (&CommitSpec{Message: "x"}).IsEmpty())
}

func TestCommitSpecBuildMessage(t *testing.T) {
	c := &CommitSpec{Type: "feat", Message: "add widget"}
	assert.Equal(t, "feat: add widget", c.BuildCommitMessage())

	c2 := &CommitSpec{Message: "add widget"}
	assert.Equal(t, "add widget", c2.BuildCommitMessage())
}

func TestCommitSpecBuildFullMessage(t *testing.T) {
	c := &CommitSpec{Type: "fix", Message: "bug", Body: "details here"}
	assert.Equal(t, "fix: bug\n\ndetails here", c.BuildFullCommitMessage())
}
