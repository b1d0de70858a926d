package transcript

import (
	"testing"

	"github.com/chartvoice/chartvoice/pkg/realtime/protocol"
)

func delta(id, role, text string, final bool) protocol.TranscriptDelta {
	return protocol.TranscriptDelta{ItemID: id, Role: role, Text: text, IsFinal: final}
}

func TestReconciler_AccumulatesPerID(t *testing.T) {
	r := NewReconciler(Callbacks{}, nil)

	r.ApplyDelta(delta("a", protocol.RoleUser, "show ", false))
	r.ApplyDelta(delta("a", protocol.RoleUser, "me ", false))
	r.ApplyDelta(delta("a", protocol.RoleUser, "Tesla", true))

	msgs := r.Messages()
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	if msgs[0].Text != "show me Tesla" {
		t.Fatalf("text = %q", msgs[0].Text)
	}
	if !msgs[0].Final {
		t.Fatal("message not finalized")
	}
}

func TestReconciler_DisplayOrderFollowsFirstArrival(t *testing.T) {
	r := NewReconciler(Callbacks{}, nil)

	// b finishes before a, but a arrived first.
	r.ApplyDelta(delta("a", protocol.RoleUser, "what about ", false))
	r.ApplyDelta(delta("b", protocol.RoleAssistant, "TSLA is up 3%", true))
	r.ApplyDelta(delta("a", protocol.RoleUser, "Nvidia", true))

	msgs := r.Messages()
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if msgs[0].ID != "a" || msgs[1].ID != "b" {
		t.Fatalf("order = [%s %s], want [a b]", msgs[0].ID, msgs[1].ID)
	}
	if msgs[0].Text != "what about Nvidia" {
		t.Fatalf("text = %q", msgs[0].Text)
	}
}

func TestReconciler_InterleavedIDsStayIndependent(t *testing.T) {
	r := NewReconciler(Callbacks{}, nil)

	r.ApplyDelta(delta("x", protocol.RoleUser, "d1 ", false))
	r.ApplyDelta(delta("y", protocol.RoleAssistant, "other ", false))
	r.ApplyDelta(delta("x", protocol.RoleUser, "d2 ", false))
	r.ApplyDelta(delta("y", protocol.RoleAssistant, "turn", true))
	r.ApplyDelta(delta("x", protocol.RoleUser, "d3", true))

	msgs := r.Messages()
	if msgs[0].Text != "d1 d2 d3" {
		t.Fatalf("x text = %q, want %q", msgs[0].Text, "d1 d2 d3")
	}
	if msgs[1].Text != "other turn" {
		t.Fatalf("y text = %q, want %q", msgs[1].Text, "other turn")
	}
}

func TestReconciler_UserFinalTriggersForward(t *testing.T) {
	var forwarded []string
	r := NewReconciler(Callbacks{
		OnUserFinal: func(m Message) { forwarded = append(forwarded, m.Text) },
	}, nil)

	r.ApplyDelta(delta("u1", protocol.RoleUser, "add RSI", true))
	r.ApplyDelta(delta("a1", protocol.RoleAssistant, "done", true))

	if len(forwarded) != 1 || forwarded[0] != "add RSI" {
		t.Fatalf("forwarded = %v, want [add RSI]", forwarded)
	}
}

func TestReconciler_DeltasAfterFinalizationDropped(t *testing.T) {
	r := NewReconciler(Callbacks{}, nil)

	r.ApplyDelta(delta("a", protocol.RoleUser, "hello", true))
	r.ApplyDelta(delta("a", protocol.RoleUser, " world", false))

	msgs := r.Messages()
	if msgs[0].Text != "hello" {
		t.Fatalf("text = %q, want %q", msgs[0].Text, "hello")
	}
}

func TestReconciler_UnknownCompletionIgnored(t *testing.T) {
	r := NewReconciler(Callbacks{}, nil)
	r.ApplyDelta(delta("ghost", protocol.RoleUser, "", true))
	if n := len(r.Messages()); n != 0 {
		t.Fatalf("messages = %d, want 0", n)
	}
}

func TestReconciler_CorrectionReplacesMostRecentAssistant(t *testing.T) {
	r := NewReconciler(Callbacks{}, nil)

	r.ApplyDelta(delta("a1", protocol.RoleAssistant, "first answer", true))
	r.ApplyDelta(delta("u1", protocol.RoleUser, "and then?", true))
	r.ApplyDelta(delta("a2", protocol.RoleAssistant, "secnod answer", true))

	r.ApplyCorrection(protocol.TranscriptCorrection{Text: "second answer"})

	msgs := r.Messages()
	if msgs[0].Text != "first answer" {
		t.Fatalf("earlier assistant message changed: %q", msgs[0].Text)
	}
	if msgs[2].Text != "second answer" {
		t.Fatalf("corrected text = %q", msgs[2].Text)
	}
	if !msgs[2].Corrected {
		t.Fatal("corrected flag not set")
	}
}

func TestReconciler_CorrectionIsOneShot(t *testing.T) {
	r := NewReconciler(Callbacks{}, nil)

	r.ApplyDelta(delta("a1", protocol.RoleAssistant, "draft", true))
	r.ApplyCorrection(protocol.TranscriptCorrection{ItemID: "a1", Text: "fixed"})
	r.ApplyCorrection(protocol.TranscriptCorrection{ItemID: "a1", Text: "fixed again"})

	if got := r.Messages()[0].Text; got != "fixed" {
		t.Fatalf("text = %q, want %q", got, "fixed")
	}
}

func TestReconciler_CorrectionWithNoAssistantTargetIgnored(t *testing.T) {
	r := NewReconciler(Callbacks{}, nil)
	r.ApplyDelta(delta("u1", protocol.RoleUser, "hello", true))
	r.ApplyCorrection(protocol.TranscriptCorrection{Text: "nope"})
	if got := r.Messages()[0].Text; got != "hello" {
		t.Fatalf("text = %q, want %q", got, "hello")
	}
}

func TestReconciler_Reset(t *testing.T) {
	r := NewReconciler(Callbacks{}, nil)
	r.ApplyDelta(delta("a", protocol.RoleUser, "hi", true))
	r.Reset()
	if n := len(r.Messages()); n != 0 {
		t.Fatalf("messages after reset = %d, want 0", n)
	}
	r.ApplyDelta(delta("a", protocol.RoleUser, "again", false))
	if got := r.Messages()[0].Text; got != "again" {
		t.Fatalf("text = %q, want %q", got, "again")
	}
}
