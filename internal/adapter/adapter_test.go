package adapter

import "testing"

func TestLinkBase(t *testing.T) {
	base := &LinkBase{Name: "sitl:127.0.0.1:5501", Kind: "sitl"}

	if base.GetName() != "sitl:127.0.0.1:5501" {
		t.Errorf("GetName() = %q", base.GetName())
	}
	if base.GetKind() != "sitl" {
		t.Errorf("GetKind() = %q", base.GetKind())
	}
	if base.GetStatus() != StatusOffline {
		t.Errorf("GetStatus() before SetStatus = %q, want %q", base.GetStatus(), StatusOffline)
	}

	base.SetStatus(StatusOnline)
	if base.GetStatus() != StatusOnline {
		t.Errorf("GetStatus() = %q, want %q", base.GetStatus(), StatusOnline)
	}
}
