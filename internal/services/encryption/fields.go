package encryption

// FieldConfig names which nested paths of an object are sensitive and
// which data-key domain protects them. Paths are dot-separated.
type FieldConfig struct {
	Domain string
	Paths  []string
}

// Predefined configurations for the object shapes the rest of the
// application stores.
var (
	// ProviderCredentialFields covers AI-provider credentials.
	ProviderCredentialFields = FieldConfig{
		Domain: "api-keys",
		Paths:  []string{"apiKey", "config.headers.authorization"},
	}

	// UserProfileFields covers personally identifying profile fields.
	UserProfileFields = FieldConfig{
		Domain: "profile",
		Paths:  []string{"email", "phone"},
	}

	// ConversationFields covers conversation titles and message bodies.
	ConversationFields = FieldConfig{
		Domain: "conversations",
		Paths:  []string{"title", "messages"},
	}

	// FileContentFields covers text extracted from uploaded files.
	FileContentFields = FieldConfig{
		Domain: "files",
		Paths:  []string{"extractedText"},
	}
)
