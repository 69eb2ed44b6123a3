package access

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mockfold/mockfold/core"
	"github.com/mockfold/mockfold/core/record"
	"github.com/mockfold/mockfold/core/resource"
)

func postsConfig() *resource.Config {
	return &resource.Config{
		Name: "posts",
		Access: map[string][]string{
			"read":   {"*"},
			"create": {"editor", "admin"},
			"update": {"owner", "admin"},
			"delete": {"owner"},
		},
		OwnedBy: "authorId",
	}
}

func TestCheck_Unrestricted(t *testing.T) {

	cfg := &resource.Config{Name: "posts"}

	result := Check(cfg, core.ActionDelete, nil)
	assert.Equal(t, Allow, result.Decision)
	assert.NoError(t, result.Err())
}

func TestCheck_Wildcard(t *testing.T) {

	cfg := postsConfig()

	// "*" allows anonymous callers
	result := Check(cfg, core.ActionRead, nil)
	assert.Equal(t, Allow, result.Decision)

	result = Check(cfg, core.ActionRead, &Principal{ID: 3, Role: "member"})
	assert.Equal(t, Allow, result.Decision)
}

func TestCheck_Unauthenticated(t *testing.T) {

	cfg := postsConfig()

	result := Check(cfg, core.ActionCreate, nil)
	assert.Equal(t, DenyUnauthenticated, result.Decision)
	if !errors.Is(result.Err(), core.ErrUnauthenticated) {
		t.Fatal("expected unauthenticated error kind")
	}
}

func TestCheck_RoleListed(t *testing.T) {

	cfg := postsConfig()

	result := Check(cfg, core.ActionCreate, &Principal{ID: 3, Role: "editor"})
	assert.Equal(t, Allow, result.Decision)

	result = Check(cfg, core.ActionCreate, &Principal{ID: 3, Role: "member"})
	assert.Equal(t, DenyForbidden, result.Decision)
	if !errors.Is(result.Err(), core.ErrForbidden) {
		t.Fatal("expected forbidden error kind")
	}
}

func TestCheck_OwnerDefers(t *testing.T) {

	cfg := postsConfig()

	// admin is listed alongside owner, no record needed
	result := Check(cfg, core.ActionUpdate, &Principal{ID: 3, Role: "admin"})
	assert.Equal(t, Allow, result.Decision)

	// everyone else defers to the ownership check
	result = Check(cfg, core.ActionUpdate, &Principal{ID: 3, Role: "member"})
	assert.Equal(t, NeedsOwnerCheck, result.Decision)
	assert.Equal(t, "authorId", result.OwnerField)
	assert.False(t, result.Strict, "update lists an alternative role")

	result = Check(cfg, core.ActionDelete, &Principal{ID: 3, Role: "member"})
	assert.Equal(t, NeedsOwnerCheck, result.Decision)
	assert.True(t, result.Strict, "delete grants by ownership only")

	// a principal whose role is literally "owner" gets no shortcut
	result = Check(cfg, core.ActionDelete, &Principal{ID: 3, Role: "owner"})
	assert.Equal(t, NeedsOwnerCheck, result.Decision)
}

func TestCheck_OwnerWithoutOwnershipField(t *testing.T) {

	cfg := &resource.Config{
		Name:   "posts",
		Access: map[string][]string{"update": {"owner"}},
	}

	// owner in the role list without a declared ownership field cannot defer
	result := Check(cfg, core.ActionUpdate, &Principal{ID: 3, Role: "member"})
	assert.Equal(t, DenyForbidden, result.Decision)
}

func TestCheckOwnership(t *testing.T) {

	rec := record.Record{"id": float64(10), "authorId": float64(3)}

	assert.True(t, CheckOwnership("authorId", rec, &Principal{ID: float64(3)}))
	assert.False(t, CheckOwnership("authorId", rec, &Principal{ID: float64(4)}))

	// differently-typed ids still match
	assert.True(t, CheckOwnership("authorId", rec, &Principal{ID: "3"}))
	assert.True(t, CheckOwnership("authorId", record.Record{"authorId": "3"}, &Principal{ID: float64(3)}))

	// missing owner field denies
	assert.False(t, CheckOwnership("authorId", record.Record{"id": float64(10)}, &Principal{ID: float64(3)}))
	assert.False(t, CheckOwnership("authorId", record.Record{"authorId": nil}, &Principal{ID: float64(3)}))
	assert.False(t, CheckOwnership("authorId", nil, &Principal{ID: float64(3)}))
	assert.False(t, CheckOwnership("authorId", rec, nil))
}

// the full two-phase flow for an owner-gated update
func TestCheck_TwoPhase(t *testing.T) {

	cfg := postsConfig()
	rec := record.Record{"id": float64(10), "authorId": float64(3)}

	owner := &Principal{ID: "3", Username: "ann", Role: "member"}
	result := Check(cfg, core.ActionUpdate, owner)
	if result.Decision != NeedsOwnerCheck {
		t.Fatal("expected deferred decision")
	}
	assert.True(t, CheckOwnership(result.OwnerField, rec, owner))

	stranger := &Principal{ID: float64(4), Username: "bob", Role: "member"}
	result = Check(cfg, core.ActionUpdate, stranger)
	if result.Decision != NeedsOwnerCheck {
		t.Fatal("expected deferred decision")
	}
	assert.False(t, CheckOwnership(result.OwnerField, rec, stranger))
}
