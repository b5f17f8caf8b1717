package analyze

import "testing"

func TestClassifierMatchesQuotaMarkers(t *testing.T) {
	c := NewClassifier(DefaultQuotaMarkers())

	cases := []struct {
		name      string
		message   string
		prominent bool
	}{
		{"quota exhausted russian", "Лимит исчерпан", true},
		{"unknown user russian", "Пользователь не найден", true},
		{"unknown user english", "User not found", true},
		{"generic failure", GenericFailureMessage, false},
		{"model failure", "Ошибка обращения к модели", false},
		{"empty", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.Prominent(tc.message); got != tc.prominent {
				t.Fatalf("Prominent(%q) = %v; want %v", tc.message, got, tc.prominent)
			}
		})
	}
}

func TestClassifierIsCaseInsensitive(t *testing.T) {
	c := NewClassifier([]string{"Limit Reached"})
	if !c.Prominent("daily LIMIT reached for account") {
		t.Fatal("expected case-insensitive marker match")
	}
}

func TestClassifierIgnoresBlankMarkers(t *testing.T) {
	c := NewClassifier([]string{"  ", ""})
	if c.Prominent("anything at all") {
		t.Fatal("blank markers must not match everything")
	}
}
