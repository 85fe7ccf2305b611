package classifier

import (
	"strings"
	"testing"
)

func TestNewPromptValidator(t *testing.T) {
	validator := NewPromptValidator()

	if validator == nil {
		t.Fatal("NewPromptValidator returned nil")
	}

	if len(validator.technical) != 5 {
		t.Errorf("Expected 5 technical term groups, got %d", len(validator.technical))
	}

	for _, group := range validator.technical {
		if len(group.terms) == 0 {
			t.Errorf("Expected terms in group %s", group.name)
		}
	}

	if len(validator.ambiguous.terms) == 0 {
		t.Error("Expected ambiguous terms to be populated")
	}

	if len(validator.unrelated.terms) == 0 {
		t.Error("Expected unrelated terms to be populated")
	}
}

func TestValidate_DecisionTable(t *testing.T) {
	validator := NewPromptValidator()

	testCases := []struct {
		name               string
		prompt             string
		expectedValid      bool
		expectedCategory   Category
		expectedConfidence int
	}{
		{
			name:               "French nginx request",
			prompt:             "Installer nginx avec SSL sur Ubuntu",
			expectedValid:      true,
			expectedCategory:   CategoryTechnical,
			expectedConfidence: 100,
		},
		{
			name:               "single technical service",
			prompt:             "set up redis",
			expectedValid:      true,
			expectedCategory:   CategoryTechnical,
			expectedConfidence: 50,
		},
		{
			name:               "technical wins over negative terms",
			prompt:             "nginx recipe for my blog",
			expectedValid:      true,
			expectedCategory:   CategoryTechnical,
			expectedConfidence: 50,
		},
		{
			name:               "weak technical with ambiguous domain",
			prompt:             "a server for my blog",
			expectedValid:      true,
			expectedCategory:   CategoryAmbiguous,
			expectedConfidence: 60,
		},
		{
			name:               "ambiguous without technical signal",
			prompt:             "Create a website",
			expectedValid:      false,
			expectedCategory:   CategoryAmbiguous,
			expectedConfidence: 30,
		},
		{
			name:               "off-topic request",
			prompt:             "chocolate cake recipe",
			expectedValid:      false,
			expectedCategory:   CategoryInvalid,
			expectedConfidence: 0,
		},
		{
			name:               "no signal at all",
			prompt:             "hello world",
			expectedValid:      false,
			expectedCategory:   CategoryInvalid,
			expectedConfidence: 0,
		},
		{
			name:               "blank prompt",
			prompt:             "   \t ",
			expectedValid:      false,
			expectedCategory:   CategoryEmpty,
			expectedConfidence: 0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			verdict := validator.Validate(tc.prompt)

			if verdict.IsValid != tc.expectedValid {
				t.Errorf("Expected IsValid=%v for %q, got %v", tc.expectedValid, tc.prompt, verdict.IsValid)
			}

			if verdict.Category != tc.expectedCategory {
				t.Errorf("Expected category %q for %q, got %q", tc.expectedCategory, tc.prompt, verdict.Category)
			}

			if verdict.Confidence != tc.expectedConfidence {
				t.Errorf("Expected confidence %d for %q, got %d", tc.expectedConfidence, tc.prompt, verdict.Confidence)
			}
		})
	}
}

func TestValidate_DetectedTerms(t *testing.T) {
	validator := NewPromptValidator()

	verdict := validator.Validate("Installer nginx avec SSL sur Ubuntu")

	expected := []string{"nginx", "ssl", "ubuntu"}
	if strings.Join(verdict.DetectedTerms, ",") != strings.Join(expected, ",") {
		t.Errorf("Expected detected terms %v, got %v", expected, verdict.DetectedTerms)
	}

	if verdict.TechnicalScore != 27 {
		t.Errorf("Expected technical score 27, got %d", verdict.TechnicalScore)
	}
}

func TestValidate_WholeTokenMatching(t *testing.T) {
	validator := NewPromptValidator()

	// "website" must not count as the ambiguous term "site" nor "app" inside "happy"
	verdict := validator.Validate("happy website")
	if verdict.AmbiguousScore != AmbiguousTermWeight {
		t.Errorf("Expected ambiguous score %d, got %d", AmbiguousTermWeight, verdict.AmbiguousScore)
	}

	verdict = validator.Validate("configure the reverse-proxy")
	if verdict.TechnicalScore != SysadminWeight {
		t.Errorf("Expected hyphenated phrase to match, got score %d", verdict.TechnicalScore)
	}
}

func TestValidate_WeakTechnicalBoundary(t *testing.T) {
	validator := NewPromptValidator()

	testCases := []struct {
		name             string
		prompt           string
		expectedValid    bool
		expectedCategory Category
	}{
		{"exactly five with ambiguous", "a database for my shop", true, CategoryAmbiguous},
		{"exactly five alone", "a database please", false, CategoryInvalid},
		{"nine with ambiguous", "ssh for the project", true, CategoryAmbiguous},
		{"nine alone", "ssh please", false, CategoryInvalid},
		{"ambiguous and unrelated", "a blog about football", false, CategoryAmbiguous},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			verdict := validator.Validate(tc.prompt)
			if verdict.IsValid != tc.expectedValid || verdict.Category != tc.expectedCategory {
				t.Errorf("Expected (%v, %s) for %q, got (%v, %s)",
					tc.expectedValid, tc.expectedCategory, tc.prompt, verdict.IsValid, verdict.Category)
			}
		})
	}
}

func TestValidate_ZeroSignalIsInvalid(t *testing.T) {
	validator := NewPromptValidator()

	prompts := []string{
		"hello world",
		"bonjour tout le monde",
		"the quick brown fox",
		"1234 5678",
		"???",
	}

	for _, prompt := range prompts {
		verdict := validator.Validate(prompt)
		if verdict.TechnicalScore+verdict.AmbiguousScore+verdict.InvalidScore != 0 {
			t.Errorf("Expected zero scores for %q, got %+v", prompt, verdict)
			continue
		}
		if verdict.IsValid || verdict.Confidence != 0 {
			t.Errorf("Expected invalid verdict with confidence 0 for %q, got %+v", prompt, verdict)
		}
	}
}

func TestValidate_StrongTechnicalAlwaysValid(t *testing.T) {
	validator := NewPromptValidator()

	prompts := []string{
		"postgresql",
		"aws weather",
		"docker for my shop and a cake recipe",
		"kubernetes football movie music blog project",
	}

	for _, prompt := range prompts {
		verdict := validator.Validate(prompt)
		if verdict.TechnicalScore < TechnicalThreshold {
			t.Fatalf("Expected technical score >= %d for %q, got %d", TechnicalThreshold, prompt, verdict.TechnicalScore)
		}
		if !verdict.IsValid || verdict.Category != CategoryTechnical {
			t.Errorf("Expected technical verdict for %q, got %+v", prompt, verdict)
		}
	}
}

func TestValidate_Suggestions(t *testing.T) {
	validator := NewPromptValidator()

	if got := validator.Validate("a server for my blog").Suggestions; len(got) != 3 {
		t.Errorf("Expected 3 improvement suggestions, got %v", got)
	}

	if got := validator.Validate("Create a website").Suggestions; len(got) != 3 {
		t.Errorf("Expected 3 example prompts, got %v", got)
	}

	if got := validator.Validate("Installer nginx").Suggestions; len(got) != 0 {
		t.Errorf("Expected no suggestions for technical prompt, got %v", got)
	}
}

func TestRejectionMessage(t *testing.T) {
	validator := NewPromptValidator()

	testCases := []struct {
		prompt   string
		contains string
	}{
		{"", "describe the infrastructure task"},
		{"Create a website", "too vague"},
		{"chocolate cake recipe", "infrastructure playbooks"},
	}

	for _, tc := range testCases {
		message := validator.RejectionMessage(validator.Validate(tc.prompt))
		if !strings.Contains(message, tc.contains) {
			t.Errorf("Expected rejection message for %q to contain %q, got %q", tc.prompt, tc.contains, message)
		}
	}
}
