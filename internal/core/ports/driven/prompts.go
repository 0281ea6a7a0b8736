package driven

// PromptStore provides access to prompt templates.
// Implementations may load prompts from files or embed them in the binary.
type PromptStore interface {
	// Load returns the prompt template for the given name.
	Load(name string) (string, error)

	// Reload clears any cached prompts, forcing fresh loads on next access.
	// This is useful when prompts may have been edited on disk.
	Reload()
}

// Well-known prompt names.
const (
	// PromptOutputContract is the fixed output-format instruction appended
	// to every assembled prompt. It has no format placeholders.
	PromptOutputContract = "output_contract"

	// PromptSystemPreamble opens every assembled prompt.
	PromptSystemPreamble = "system_preamble"
)
