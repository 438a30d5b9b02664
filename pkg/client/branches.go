package client

import (
	"errors"
	"fmt"

	"assistant-backend/pkg/api"
)

// Branches is an arena of alternative continuations of one chat. The server
// only ever stores one linear sequence; every other branch lives here until
// the process forgets it. Switching branches is a local operation.
type Branches struct {
	branches [][]api.Message
	active   int
	pivot    int
}

func NewBranches(messages []api.Message) *Branches {
	return &Branches{branches: [][]api.Message{cloneMessages(messages)}, pivot: -1}
}

func cloneMessages(messages []api.Message) []api.Message {
	return append([]api.Message(nil), messages...)
}

func (b *Branches) Len() int {
	return len(b.branches)
}

func (b *Branches) ActiveIndex() int {
	return b.active
}

// Pivot returns the index of the message the branches fork at, if any fork
// happened yet.
func (b *Branches) Pivot() (int, bool) {
	return b.pivot, b.pivot >= 0
}

func (b *Branches) Active() []api.Message {
	return cloneMessages(b.branches[b.active])
}

// Replace overwrites the active branch, e.g. after a reply has been streamed
// into it.
func (b *Branches) Replace(messages []api.Message) {
	b.branches[b.active] = cloneMessages(messages)
}

func (b *Branches) Append(messages ...api.Message) {
	b.branches[b.active] = append(b.branches[b.active], messages...)
}

// Fork adds messages as a new branch forking at pivot and makes it active.
func (b *Branches) Fork(pivot int, messages []api.Message) int {
	b.branches = append(b.branches, cloneMessages(messages))
	b.active = len(b.branches) - 1
	b.pivot = pivot
	return b.active
}

// Switch moves the active branch by delta and reports whether it moved.
func (b *Branches) Switch(delta int) bool {
	if b.pivot < 0 {
		return false
	}
	next := b.active + delta
	if next < 0 || next >= len(b.branches) || next == b.active {
		return false
	}
	b.active = next
	return true
}

func (b *Branches) Prev() bool { return b.Switch(-1) }

func (b *Branches) Next() bool { return b.Switch(1) }

var ErrNotEditable = errors.New("message cannot be edited or regenerated")

// EditBranch returns the branch produced by replacing the user message at
// index with newContent and dropping everything after it.
func EditBranch(messages []api.Message, index int, newContent string) ([]api.Message, error) {
	if index < 0 || index >= len(messages) || messages[index].Role != "user" {
		return nil, fmt.Errorf("%w: index %d is not a user message", ErrNotEditable, index)
	}

	branch := cloneMessages(messages[:index+1])
	edited := branch[index]
	if !edited.IsEdited {
		edited.OriginalContent = edited.Content
	}
	edited.EditHistory = append(append([]api.EditRecord(nil), edited.EditHistory...), api.EditRecord{Content: edited.Content})
	edited.Content = newContent
	edited.IsEdited = true
	branch[index] = edited
	return branch, nil
}

// RegenerateBranch returns the branch produced by dropping the assistant
// message at index and everything after it. The pivot is the user message it
// answered.
func RegenerateBranch(messages []api.Message, index int) ([]api.Message, int, error) {
	if index <= 0 || index >= len(messages) || messages[index].Role != "assistant" {
		return nil, 0, fmt.Errorf("%w: index %d is not an assistant reply", ErrNotEditable, index)
	}
	pivot := index - 1
	if messages[pivot].Role != "user" {
		return nil, 0, fmt.Errorf("%w: message %d does not answer a user message", ErrNotEditable, index)
	}
	return cloneMessages(messages[:index]), pivot, nil
}
