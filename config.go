package main

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const defaultConfigDir = ".logqwest"

//go:embed defaults/settings.yaml
var defaultSettings string

//go:embed defaults/prompts/*.txt
var defaultPrompts embed.FS

// ConfigOverrides holds command-line overrides for settings values
type ConfigOverrides struct {
	SettingsPath *string
	Model        *string
	CheckModel   *string
	DataDir      *string
}

// LogSettings configures the rotating log file
type LogSettings struct {
	File       string `yaml:"file"`
	Level      string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
}

// LLMSettings selects models and sampling parameters
type LLMSettings struct {
	Model             string        `yaml:"model" validate:"required"`
	CheckModel        string        `yaml:"check_model"`
	Temperature       float64       `yaml:"temperature" validate:"gte=0,lte=2"`
	CheckTemperature  float64       `yaml:"check_temperature" validate:"gte=0,lte=2"`
	MaxTokens         int           `yaml:"max_tokens" validate:"min=1"`
	MinInterval       time.Duration `yaml:"min_interval" validate:"gte=0"`
	OpenRouterBaseURL string        `yaml:"openrouter_base_url" validate:"omitempty,url"`
}

// Outcome is one entry of the adventure outcome plan
type Outcome struct {
	Result string `yaml:"result" validate:"required"`
	Count  int    `yaml:"count" validate:"min=1"`
}

// ContentSettings shapes what generators produce and checkers accept
type ContentSettings struct {
	AreaTarget           int       `yaml:"area_target" validate:"min=1"`
	ReferenceAreas       int       `yaml:"reference_areas" validate:"gte=0"`
	Chapters             int       `yaml:"chapters" validate:"min=1"`
	Outcomes             []Outcome `yaml:"outcomes" validate:"min=1,dive"`
	MinChapterLines      int       `yaml:"min_chapter_lines" validate:"gte=1"`
	MinLogLines          int       `yaml:"min_log_lines" validate:"gte=1"`
	NGWords              []string  `yaml:"ng_words"`
	AreaNameInvalidChars string    `yaml:"area_name_invalid_chars"`
	AreaNamePrompt       string    `yaml:"area_name_prompt"`
	CheckMarks           []string  `yaml:"check_marks" validate:"min=1"`
}

// CheckSettings lists the review criteria asked of the check model per kind.
// A kind with no criteria is checked by the structural rules only.
type CheckSettings struct {
	Area      []string `yaml:"area"`
	Adventure []string `yaml:"adventure"`
	Log       []string `yaml:"log"`
	Location  []string `yaml:"location"`
}

// Keys returns the review criteria for kind
func (c CheckSettings) Keys(kind Kind) []string {
	switch kind.Base() {
	case KindArea:
		return c.Area
	case KindAdventure:
		return c.Adventure
	case KindLog:
		return c.Log
	case KindLocation:
		return c.Location
	}
	return nil
}

// Settings represents the YAML configuration structure
type Settings struct {
	DataDir    string          `yaml:"data_dir" validate:"required"`
	PromptsDir string          `yaml:"prompts_dir"`
	Log        LogSettings     `yaml:"log"`
	LLM        LLMSettings     `yaml:"llm"`
	Retry      RetryPolicy     `yaml:"retry"`
	Content    ContentSettings `yaml:"content"`
	Checks     CheckSettings   `yaml:"checks"`
}

// Config holds configuration and overrides
type Config struct {
	Settings  *Settings
	Overrides *ConfigOverrides
}

// NewConfig loads settings from the default location, or from the
// overridden path which must then exist, and applies overrides.
func NewConfig(overrides *ConfigOverrides) (*Config, error) {
	var (
		settings *Settings
		err      error
	)
	if overrides != nil && overrides.SettingsPath != nil {
		settings, err = loadSettingsRequired(*overrides.SettingsPath)
	} else {
		if err := ensureConfigExists(defaultConfigDir); err != nil {
			return nil, fmt.Errorf("ensuring config files exist: %w", err)
		}
		settings, err = loadSettingsRequired(getConfigPath("settings.yaml"))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	if overrides != nil {
		if overrides.Model != nil && *overrides.Model != "" {
			settings.LLM.Model = *overrides.Model
		}
		if overrides.CheckModel != nil && *overrides.CheckModel != "" {
			settings.LLM.CheckModel = *overrides.CheckModel
		}
		if overrides.DataDir != nil && *overrides.DataDir != "" {
			settings.DataDir = *overrides.DataDir
		}
	}

	if err := validateSettings(settings); err != nil {
		return nil, err
	}

	return &Config{
		Settings:  settings,
		Overrides: overrides,
	}, nil
}

// CheckModel returns the model used for review, falling back to the generation model
func (c *Config) CheckModel() string {
	if c.Settings.LLM.CheckModel != "" {
		return c.Settings.LLM.CheckModel
	}
	return c.Settings.LLM.Model
}

// Prompt returns the template text for name. Locked kinds look for a
// locked_ variant first. Files in prompts_dir take precedence over the
// embedded defaults.
func (c *Config) Prompt(kind Kind, name string) (string, error) {
	candidates := []string{name}
	if kind.Locked() {
		candidates = []string{lockedPrefix + name, name}
	}

	for _, candidate := range candidates {
		filename := candidate + ".txt"
		if c.Settings.PromptsDir != "" {
			content, err := os.ReadFile(filepath.Join(c.Settings.PromptsDir, filename))
			if err == nil {
				return string(content), nil
			}
			if !errors.Is(err, fs.ErrNotExist) {
				return "", fmt.Errorf("reading prompt %s: %w", filename, err)
			}
		}
		content, err := defaultPrompts.ReadFile("defaults/prompts/" + filename)
		if err == nil {
			return string(content), nil
		}
	}
	return "", fmt.Errorf("prompt %q not found", name)
}

// parseDefaultSettings returns the embedded defaults
func parseDefaultSettings() (*Settings, error) {
	var settings Settings
	if err := yaml.Unmarshal([]byte(defaultSettings), &settings); err != nil {
		return nil, fmt.Errorf("parsing embedded settings: %w", err)
	}
	return &settings, nil
}

// loadSettingsRequired loads settings from a YAML file layered over the
// embedded defaults, failing if the file doesn't exist
func loadSettingsRequired(settingsPath string) (*Settings, error) {
	data, err := os.ReadFile(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file %s: %w", settingsPath, err)
	}

	settings, err := parseDefaultSettings()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings YAML: %w", err)
	}

	if settings.Content.MinLogLines < settings.Content.MinChapterLines {
		log.Printf("Warning: content.min_log_lines is %d, raising to min_chapter_lines (%d)",
			settings.Content.MinLogLines, settings.Content.MinChapterLines)
		settings.Content.MinLogLines = settings.Content.MinChapterLines
	}

	return settings, nil
}

func validateSettings(settings *Settings) error {
	validate := validator.New()
	if err := validate.Struct(settings); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid settings: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// getConfigPath returns the path to a config file in the .logqwest directory
func getConfigPath(filename string) string {
	return filepath.Join(defaultConfigDir, filename)
}

// ensureConfigExists creates the config directory and writes the default
// settings.yaml if it doesn't exist
func ensureConfigExists(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	settingsFile := filepath.Join(configDir, "settings.yaml")
	if _, err := os.Stat(settingsFile); os.IsNotExist(err) {
		if err := os.WriteFile(settingsFile, []byte(defaultSettings), 0644); err != nil {
			return fmt.Errorf("writing settings.yaml: %w", err)
		}
		log.Printf("✓ Wrote default settings to %s", settingsFile)
	}

	return nil
}
