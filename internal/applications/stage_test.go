package applications

import "testing"

func TestIsValidStage(t *testing.T) {
	for _, s := range Stages() {
		if !IsValidStage(string(s)) {
			t.Errorf("IsValidStage(%q) = false", s)
		}
	}

	for _, s := range []string{"", "applied", "APPLIED", "Phone screen", "Ghosted", " Offer"} {
		if IsValidStage(s) {
			t.Errorf("IsValidStage(%q) = true, want false", s)
		}
	}
}

func TestStages_OrderAndCopy(t *testing.T) {
	got := Stages()
	if len(got) != 9 {
		t.Fatalf("len(Stages()) = %d, want 9", len(got))
	}
	if got[0] != StageInterested || got[8] != StageAccepted {
		t.Errorf("Stages() order = %v", got)
	}

	got[0] = "Mutated"
	if Stages()[0] != StageInterested {
		t.Error("Stages() exposes internal slice")
	}
}
