package api

// AgentSpec is the declared metadata of one agent definition, parsed from the
// YAML frontmatter block at the top of the artifact file. The sync engine
// treats every field as opaque; only Name participates in identity
// resolution (after normalization by the discovery layer).
type AgentSpec struct {
	// Name is the declared agent name, e.g. "Code Reviewer".
	Name string `yaml:"name"`
	// Description summarizes what the agent does and when to route to it.
	Description string `yaml:"description,omitempty"`
	// Model is an optional model hint, e.g. "sonnet" or "opus".
	Model string `yaml:"model,omitempty"`
	// Tools lists the tool names the agent is allowed to use.
	Tools []string `yaml:"tools,omitempty"`
}
