package model

import "testing"

func TestCanApprove(t *testing.T) {
	mod := &Administrator{Moderates: map[NewsgroupName]bool{"overchan.test": true}}
	if !mod.CanApprove("overchan.test") {
		t.Fatal("expected moderator of overchan.test to be able to approve")
	}
	if mod.CanApprove("overchan.other") {
		t.Fatal("did not expect moderator of overchan.test to approve overchan.other")
	}

	admin := &Administrator{CanApproveAny: true}
	if !admin.CanApprove("overchan.anything") {
		t.Fatal("CanApproveAny should approve any group")
	}

	injector := &Administrator{CanInject: true}
	if !injector.CanApprove("overchan.anything") {
		t.Fatal("CanInject should approve any group")
	}

	plain := &Administrator{}
	if plain.CanApprove("overchan.test") {
		t.Fatal("principal with no capabilities should not approve")
	}
}
