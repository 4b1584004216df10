package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Setting describes one user-editable configuration value.
type Setting struct {
	Key         string
	Description string
	Get         func(c *Config) any
	Set         func(c *Config, value string) error
}

// Value renders the current value of s in c.
func (s Setting) Value(c *Config) string {
	return fmt.Sprint(s.Get(c))
}

func intSetting(key, desc string, field func(c *Config) *int) Setting {
	return Setting{
		Key:         key,
		Description: desc,
		Get:         func(c *Config) any { return *field(c) },
		Set: func(c *Config, value string) error {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return fmt.Errorf("%s: %q is not a whole number", key, value)
			}
			*field(c) = n
			return nil
		},
	}
}

func boolSetting(key, desc string, field func(c *Config) *bool) Setting {
	return Setting{
		Key:         key,
		Description: desc,
		Get:         func(c *Config) any { return *field(c) },
		Set: func(c *Config, value string) error {
			b, err := strconv.ParseBool(strings.TrimSpace(value))
			if err != nil {
				return fmt.Errorf("%s: %q is not true or false", key, value)
			}
			*field(c) = b
			return nil
		},
	}
}

func floatSetting(key, desc string, field func(c *Config) *float64) Setting {
	return Setting{
		Key:         key,
		Description: desc,
		Get:         func(c *Config) any { return *field(c) },
		Set: func(c *Config, value string) error {
			f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
			if err != nil {
				return fmt.Errorf("%s: %q is not a number", key, value)
			}
			*field(c) = f
			return nil
		},
	}
}

func stringSetting(key, desc string, field func(c *Config) *string, allowed ...string) Setting {
	return Setting{
		Key:         key,
		Description: desc,
		Get:         func(c *Config) any { return *field(c) },
		Set: func(c *Config, value string) error {
			value = strings.TrimSpace(value)
			if len(allowed) > 0 {
				ok := false
				for _, a := range allowed {
					if value == a {
						ok = true
						break
					}
				}
				if !ok {
					return fmt.Errorf("%s: %q must be one of %s", key, value, strings.Join(allowed, ", "))
				}
			}
			*field(c) = value
			return nil
		},
	}
}

// Settings returns the editable settings in display order.
func Settings() []Setting {
	return []Setting{
		stringSetting("anthropic.model", "Claude model used for completions",
			func(c *Config) *string { return &c.Anthropic.Model }),
		boolSetting("anthropic.use_bedrock", "Send requests through AWS Bedrock",
			func(c *Config) *bool { return &c.Anthropic.UseBedrock }),
		stringSetting("anthropic.aws_region", "AWS region for Bedrock",
			func(c *Config) *string { return &c.Anthropic.AWSRegion }),
		intSetting("expand.max_depth", "Deepest level that is still expanded",
			func(c *Config) *int { return &c.Expand.MaxDepth }),
		stringSetting("expand.mode", "Expansion strategy",
			func(c *Config) *string { return &c.Expand.Mode }, ModeOneByOne, ModeAsAList),
		intSetting("expand.max_concurrent_requests", "Backend calls allowed in flight at once",
			func(c *Config) *int { return &c.Expand.MaxConcurrentRequests }),
		intSetting("expand.candidate_count", "Candidate decompositions requested per node",
			func(c *Config) *int { return &c.Expand.CandidateCount }),
		floatSetting("expand.temperature", "Sampling temperature for expansion requests",
			func(c *Config) *float64 { return &c.Expand.Temperature }),
		intSetting("expand.max_tokens", "Token limit per completion",
			func(c *Config) *int { return &c.Expand.MaxTokens }),
		stringSetting("expand.subtask_count", "How many subtasks to ask for, as prompt text",
			func(c *Config) *string { return &c.Expand.SubtaskCount }),
		boolSetting("expand.use_cache", "Offer previously chosen decompositions",
			func(c *Config) *bool { return &c.Expand.UseCache }),
		boolSetting("expand.use_examples", "Use worked examples when ranking candidates",
			func(c *Config) *bool { return &c.Expand.UseExamples }),
		stringSetting("expand.chooser", "Who picks the best candidate",
			func(c *Config) *string { return &c.Expand.Chooser }, ChooserBackend, ChooserHuman),
		boolSetting("expand.use_grounding", "Prefix prompts with related documents",
			func(c *Config) *bool { return &c.Expand.UseGrounding }),
		intSetting("expand.grounding_max_words", "Word budget for prompt plus documents",
			func(c *Config) *int { return &c.Expand.GroundingMaxWords }),
		intSetting("expand.grounding_max_results", "Documents retrieved per prompt",
			func(c *Config) *int { return &c.Expand.GroundingMaxResults }),
		boolSetting("expand.post_process", "Ask the backend to remove equivalent steps after expansion",
			func(c *Config) *bool { return &c.Expand.PostProcess }),
		boolSetting("display.show_prompts", "Print prompts as they are sent",
			func(c *Config) *bool { return &c.Display.ShowPrompts }),
		boolSetting("display.show_results", "Print completions as they arrive",
			func(c *Config) *bool { return &c.Display.ShowResults }),
		boolSetting("display.show_grounding", "Print retrieved documents",
			func(c *Config) *bool { return &c.Display.ShowGrounding }),
		boolSetting("display.show_progress", "Show the live progress view",
			func(c *Config) *bool { return &c.Display.ShowProgress }),
		stringSetting("paths.data_dir", "Directory for cache, examples, index and logs",
			func(c *Config) *string { return &c.Paths.DataDir }),
		stringSetting("paths.output_dir", "Directory plans are written to",
			func(c *Config) *string { return &c.Paths.OutputDir }),
	}
}

// Lookup finds a setting by key or by its 1-based position in Settings.
func Lookup(nameOrIndex string) (Setting, bool) {
	all := Settings()
	nameOrIndex = strings.TrimSpace(nameOrIndex)
	if n, err := strconv.Atoi(nameOrIndex); err == nil {
		if n >= 1 && n <= len(all) {
			return all[n-1], true
		}
		return Setting{}, false
	}
	for _, s := range all {
		if s.Key == nameOrIndex {
			return s, true
		}
	}
	return Setting{}, false
}

// Apply sets key to value and validates the result. On error cfg is unchanged.
func (c *Config) Apply(key, value string) error {
	s, ok := Lookup(key)
	if !ok {
		return fmt.Errorf("unknown setting %q", key)
	}
	next := *c
	if err := s.Set(&next, value); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}
