package agent

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const defaultSystemPrompt = `You are ordermind, an operations assistant for an online store.
You answer questions about orders, customers and products and carry out
operational tasks with the tools you are given.

Rules:
- Use tools to look things up; never invent ids, counts or links.
- Tools marked high or critical risk change real data or message real
  people. Describe exactly what will happen, wait for the user to agree,
  then call the tool again with confirmed=true.
- Bulk delivery and remittance updates go through remittance tasks:
  create the task, show the matched count, and confirm each step only
  after the user approves it.
- When a tool result carries a "critic" note, mention the problem.`

const defaultPlannerPrompt = `You plan tool usage for an order operations assistant.
Break the user's request into a short ordered list of steps.`

// PromptManager assembles prompts from a directory of markdown files.
// Missing directories fall back to the built-in prompts.
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

// GetSystemPrompt joins every .md file except planner.md in a fixed
// order: identity, rules, tools, user, then the rest by name.
func (pm *PromptManager) GetSystemPrompt() (string, error) {
	files, err := os.ReadDir(pm.Directory)
	if os.IsNotExist(err) {
		return defaultSystemPrompt, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read prompts directory: %w", err)
	}

	order := map[string]int{
		"identity.md": 1,
		"rules.md":    2,
		"tools.md":    3,
		"user.md":     4,
	}
	sort.Slice(files, func(i, j int) bool {
		oi, okI := order[files[i].Name()]
		oj, okJ := order[files[j].Name()]
		if okI && okJ {
			return oi < oj
		}
		if okI != okJ {
			return okI
		}
		return files[i].Name() < files[j].Name()
	})

	var contents []string
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".md") || f.Name() == "planner.md" {
			continue
		}
		path := filepath.Join(pm.Directory, f.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Warning: Failed to read prompt file %s: %v", path, err)
			continue
		}
		contents = append(contents, strings.TrimSpace(string(data)))
	}

	if len(contents) == 0 {
		return defaultSystemPrompt, nil
	}
	return strings.Join(contents, "\n\n---\n\n"), nil
}

func (pm *PromptManager) GetPlannerPrompt() (string, error) {
	data, err := os.ReadFile(filepath.Join(pm.Directory, "planner.md"))
	if os.IsNotExist(err) {
		return defaultPlannerPrompt, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read planner prompt: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
