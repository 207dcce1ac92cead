package planner

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/chatsync/internal/domain/catalog"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/providers/jobs"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/chatsync/internal/shared/types"
)

const (
	minSteps = 2
	maxSteps = 5

	plannerSystemPrompt = "You are an expert AI project manager. Always respond in valid JSON format only."
)

//go:embed templates/*.yaml
var templateFS embed.FS

var (
	ErrEmptyGoal       = errors.New("goal is empty")
	ErrInvalidPlan     = errors.New("invalid project plan")
	ErrUnknownTemplate = errors.New("unknown folder template")
)

// Completer runs a synchronous text completion
type Completer interface {
	Complete(ctx context.Context, req jobs.CompletionRequest) (string, error)
}

// Folders is the remote folder storage
type Folders interface {
	CreateFolder(ctx context.Context, name string, kind types.FolderType) (*types.Folder, error)
	DeleteFolder(ctx context.Context, id string) error
}

// Sessions creates sessions in a folder
type Sessions interface {
	Create(ctx context.Context, req types.CreateSessionRequest) (*types.Session, error)
	Forget(folderID string)
}

// Step is one session of a planned folder
type Step struct {
	Title       string   `json:"title" yaml:"title"`
	ModelID     string   `json:"modelId" yaml:"model"`
	Instruction string   `json:"systemInstruction" yaml:"instruction"`
	Prompts     []string `json:"recommendedPrompts,omitempty" yaml:"prompts"`
}

// Plan is a project broken into sessions
type Plan struct {
	Name  string `json:"projectName" yaml:"name"`
	Steps []Step `json:"steps" yaml:"steps"`
}

// Result is the folder and sessions a plan produced
type Result struct {
	Folder   types.Folder    `json:"folder"`
	Sessions []types.Session `json:"sessions"`
}

// Planner turns a goal or a template into a folder of prepared sessions
type Planner struct {
	completer Completer
	folders   Folders
	sessions  Sessions
	catalog   *catalog.Catalog
	logger    *logging.Logger
	now       func() time.Time
}

// NewPlanner creates a planner
func NewPlanner(completer Completer, folders Folders, sessions Sessions, cat *catalog.Catalog, logger *logging.Logger) *Planner {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Planner{
		completer: completer,
		folders:   folders,
		sessions:  sessions,
		catalog:   cat,
		logger:    logger.Named("planner"),
		now:       time.Now,
	}
}

// Plan asks the completion model to design a project for goal and creates
// it as a folder with one session per step
func (p *Planner) Plan(ctx context.Context, goal string) (*Result, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, ErrEmptyGoal
	}

	model := p.catalog.DefaultModel(types.KindText)
	text, err := p.completer.Complete(ctx, jobs.CompletionRequest{
		Provider:        model.Provider,
		ModelID:         model.ID,
		InputText:       p.prompt(goal),
		SystemPrompt:    plannerSystemPrompt,
		MaxOutputTokens: 1024,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to plan project: %w", err)
	}

	plan, err := ParsePlan(text)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(plan); err != nil {
		return nil, err
	}

	p.logger.Info("Project planned", zap.String("name", plan.Name), zap.Int("steps", len(plan.Steps)))
	return p.build(ctx, plan)
}

// FromTemplate creates a folder from a built-in template
func (p *Planner) FromTemplate(ctx context.Context, name string) (*Result, error) {
	plan, err := LoadTemplate(name)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(plan); err != nil {
		return nil, err
	}
	return p.build(ctx, plan)
}

// Validate checks step count, titles and that every model is offered
func (p *Planner) Validate(plan *Plan) error {
	if strings.TrimSpace(plan.Name) == "" {
		return fmt.Errorf("%w: missing project name", ErrInvalidPlan)
	}
	if n := len(plan.Steps); n < minSteps || n > maxSteps {
		return fmt.Errorf("%w: %d steps, want %d to %d", ErrInvalidPlan, n, minSteps, maxSteps)
	}
	for i, s := range plan.Steps {
		if strings.TrimSpace(s.Title) == "" {
			return fmt.Errorf("%w: step %d has no title", ErrInvalidPlan, i+1)
		}
		if _, ok := p.catalog.Lookup(s.ModelID); !ok {
			return fmt.Errorf("%w: step %d uses unknown model %q", ErrInvalidPlan, i+1, s.ModelID)
		}
	}
	return nil
}

// build creates the folder and its sessions. If a session cannot be
// created the folder is removed again.
func (p *Planner) build(ctx context.Context, plan *Plan) (*Result, error) {
	folder, err := p.folders.CreateFolder(ctx, plan.Name, types.FolderShortsWorkflow)
	if err != nil {
		return nil, err
	}

	result := &Result{Folder: *folder}
	for i, step := range plan.Steps {
		model, _ := p.catalog.Lookup(step.ModelID)

		sess, err := p.sessions.Create(ctx, types.CreateSessionRequest{
			Title:              step.Title,
			FolderID:           folder.ID,
			Model:              model.ID,
			SystemInstruction:  instruction(plan, i),
			Messages:           []types.Message{p.welcome(plan.Name, step, model)},
			RecommendedPrompts: recommended(plan.Name, step, model),
		})
		if err != nil {
			p.rollback(folder.ID)
			return nil, fmt.Errorf("failed to create step %d of %q: %w", i+1, plan.Name, err)
		}
		result.Sessions = append(result.Sessions, *sess)
	}

	p.logger.Info("Folder created from plan",
		zap.String("folder_id", folder.ID),
		zap.Int("sessions", len(result.Sessions)),
	)
	return result, nil
}

func (p *Planner) rollback(folderID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p.sessions.Forget(folderID)
	if err := p.folders.DeleteFolder(ctx, folderID); err != nil {
		p.logger.Warn("Failed to remove partial folder", zap.String("folder_id", folderID), zap.Error(err))
	}
}

func (p *Planner) prompt(goal string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert AI project manager. The user wants to achieve the following goal: %q.\n\n", goal)
	b.WriteString("Design a project structure.\n\n")
	fmt.Fprintf(&b, "1. Use ONLY these model ids: %s\n", strings.Join(p.catalog.IDs(), ", "))
	fmt.Fprintf(&b, "2. Create only the steps the goal needs, at least %d and at most %d.\n\n", minSteps, maxSteps)
	b.WriteString(`Return ONLY raw JSON in this format:
{"projectName": "...", "steps": [{"title": "...", "modelId": "...", "systemInstruction": "..."}]}`)
	return b.String()
}

func (p *Planner) welcome(project string, step Step, model types.Model) types.Message {
	content := fmt.Sprintf("Welcome to **%s**, step **%s**.\n\nModel: %s\n\n%s\n\nPick a suggested prompt below to get started.",
		project, step.Title, model.Name, step.Instruction)
	return types.Message{
		ID:        id.NewMessageID().String(),
		Role:      types.RoleAssistant,
		Kind:      types.KindText,
		Content:   content,
		Timestamp: p.now(),
	}
}

// instruction tells each step where it sits in the project
func instruction(plan *Plan, i int) string {
	base := plan.Steps[i].Instruction
	if i == len(plan.Steps)-1 {
		return base + "\n\nThis is the final step of the project. Combine the results of the earlier steps into a finished deliverable."
	}
	next := plan.Steps[i+1].Title
	return base + fmt.Sprintf("\n\nThis project has %d steps; the next one is %q. Make your output easy to build on there.", len(plan.Steps), next)
}

func recommended(project string, step Step, model types.Model) []string {
	if len(step.Prompts) > 0 {
		return lo.Uniq(step.Prompts)
	}
	title := strings.ToLower(step.Title)
	switch model.Kind {
	case types.KindImage:
		return []string{
			fmt.Sprintf("Visualize the %s step of %s", title, project),
			fmt.Sprintf("Create a cover image for %s", project),
		}
	case types.KindVideo:
		return []string{
			fmt.Sprintf("Make a short clip for the %s step of %s", title, project),
			fmt.Sprintf("Turn the story of %s into a video", project),
		}
	}
	return []string{
		fmt.Sprintf("Give me a concrete plan for the %s step of %s", title, project),
		fmt.Sprintf("What should I watch out for in %s?", title),
		fmt.Sprintf("Draft the deliverable for %s", title),
	}
}

// ParsePlan decodes the model's answer, tolerating markdown code fences
func ParsePlan(text string) (*Plan, error) {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", ErrInvalidPlan)
	}

	var plan Plan
	if err := sonic.UnmarshalString(text, &plan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	return &plan, nil
}

// Templates lists the built-in template names
func Templates() []string {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil
	}
	return lo.Map(entries, func(e fs.DirEntry, _ int) string {
		return strings.TrimSuffix(e.Name(), path.Ext(e.Name()))
	})
}

// LoadTemplate reads a built-in template by name
func LoadTemplate(name string) (*Plan, error) {
	if name == "" || strings.ContainsAny(name, "/\\.") {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}
	data, err := templateFS.ReadFile("templates/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}

	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	return &plan, nil
}
