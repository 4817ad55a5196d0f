package registry

import "testing"

func TestLoadDefaultsRegistersGemini(t *testing.T) {
	r := NewRegistry(nil)
	r.LoadDefaults()

	p, err := r.Get("gemini")
	if err != nil {
		t.Fatalf("Get(gemini) error = %v", err)
	}
	if p.Executable != "gemini" {
		t.Errorf("Executable = %q, want gemini", p.Executable)
	}
	if len(p.ResumeArgs) == 0 {
		t.Error("gemini profile has no resume args")
	}
	if !p.Enabled {
		t.Error("gemini profile is not enabled")
	}
}

func TestGetDefaultPrefersGemini(t *testing.T) {
	r := NewRegistry(nil)
	r.LoadDefaults()
	if err := r.Register(&Profile{
		ID:           "other",
		Name:         "Other Agent",
		Executable:   "other",
		PromptFlag:   "-p",
		StateHomeEnv: "HOME",
		Enabled:      true,
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	p, err := r.GetDefault()
	if err != nil {
		t.Fatalf("GetDefault() error = %v", err)
	}
	if p.ID != "gemini" {
		t.Errorf("GetDefault().ID = %q, want gemini", p.ID)
	}
}

func TestRegisterRejectsDuplicateAndInvalid(t *testing.T) {
	r := NewRegistry(nil)
	r.LoadDefaults()

	if err := r.Register(&Profile{ID: "gemini", Name: "x", Executable: "x", PromptFlag: "-p", StateHomeEnv: "HOME"}); err == nil {
		t.Error("Register() accepted a duplicate profile ID")
	}
	if err := r.Register(&Profile{ID: "noexec", Name: "x", PromptFlag: "-p", StateHomeEnv: "HOME"}); err == nil {
		t.Error("Register() accepted a profile without an executable")
	}
}
